package environment

import (
	"os"
	"path/filepath"
	"strings"
)

// KeyEnv selects the runtime environment (e.g. "development").
const KeyEnv = "ENV"

// GetEnvPath returns the path made of the value of key, or fallback when unset, and elem.
func GetEnvPath(key, fallback string, elem ...string) (v string) {
	v = os.Getenv(key)
	if v == "" {
		v = fallback
	}

	return filepath.Join(append([]string{v}, elem...)...)
}

// Development reports whether the process runs in a development environment.
func Development() bool {
	return strings.EqualFold(os.Getenv(KeyEnv), "development")
}
