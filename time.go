package dryerd

import (
	"encoding/json"
	"fmt"
	"time"

	"go.yaml.in/yaml/v4"
)

// Duration is a time.Duration configured as "1m30s" or as a number of seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var str string
	err := json.Unmarshal(data, &str)
	if err != nil {
		return err
	}

	return d.parse(str)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.ShortTag() == "!!int" {
		var seconds int64
		if err := value.Decode(&seconds); err != nil {
			return err
		}

		d.Duration = time.Duration(seconds) * time.Second
		return nil
	}

	var str string
	err := value.Decode(&str)
	if err != nil {
		return err
	}

	return d.parse(str)
}

func (d *Duration) parse(str string) (err error) {
	if str == "" {
		return nil
	}

	d.Duration, err = time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return nil
}
