package dryerd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v4"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dryerd.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("dryerd.example.yml")
	require.NoError(t, err)

	assert.Equal(t, "/run/dryerd/dryerd.sock", cfg.Socket)
	assert.Equal(t, ChannelLocal, cfg.Channel.Mode)
	assert.Equal(t, 10*time.Minute, cfg.Autostop.Duration)
	assert.Equal(t, 300*time.Millisecond, cfg.Polling.State.Duration)
	assert.True(t, cfg.Parameters.DoorInterlock)
	assert.Equal(t, uint16(120), cfg.Parameters.SafetyTemperature)

	require.Len(t, cfg.Programs, 2)
	p, ok := cfg.Program(0)
	require.True(t, ok)
	assert.Equal(t, "Cotton", p.Name)
	assert.Equal(t, 47, p.Duration())

	_, ok = cfg.Program(2)
	assert.False(t, ok)

	assert.Equal(t, modbus.Config{Address: 1, Timeout: 100 * time.Millisecond, Backoff: 30 * time.Millisecond, Attempts: 5}, cfg.ModbusConfig())
	assert.Equal(t, "1A86", cfg.PortConfig().VID)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(KeyRuntimeDir, "/tmp/dryerd-test")

	cfg, err := Load(writeConfig(t, `
programs:
  - name: Quick
    steps:
      - type: cooling
        duration: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dryerd-test/dryerd.sock", cfg.Socket)
	assert.Equal(t, "/tmp/dryerd-test/request.sock", cfg.Channel.RequestPath)
	assert.Equal(t, "/tmp/dryerd-test/response.sock", cfg.Channel.ResponsePath)
	assert.Equal(t, 8, cfg.Channel.Depth)
	assert.Equal(t, machine.DefaultPoll, cfg.Channel.Poll.Duration)
	assert.Equal(t, modbus.DefaultTimeout, cfg.Serial.Timeout.Duration)
	assert.Equal(t, modbus.DefaultBackoff, cfg.Serial.Backoff.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Polling.Inbound.Duration)
	assert.Equal(t, 600*time.Millisecond, cfg.Polling.Sensors.Duration)
	assert.Zero(t, cfg.Autostop.Duration)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	tests := []struct {
		name    string
		content string
		err     error
	}{
		{
			name:    "no programs",
			content: "debug: true\n",
		},
		{
			name:    "empty program",
			content: "programs:\n  - name: Empty\n",
		},
		{
			name: "selected program",
			content: `
selected_program: 3
programs:
  - name: Quick
    steps:
      - type: cooling
        duration: 1
`,
			err: ErrNoProgram,
		},
		{
			name: "channel mode",
			content: `
channel:
  mode: tcp
programs:
  - name: Quick
    steps:
      - type: cooling
        duration: 1
`,
		},
		{
			name: "same paths",
			content: `
channel:
  request_path: /tmp/dryerd.sock
  response_path: /tmp/dryerd.sock
programs:
  - name: Quick
    steps:
      - type: cooling
        duration: 1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
		C Duration `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1m30s\nb: 45\nc: \"\"\n"), &v))
	assert.Equal(t, 90*time.Second, v.A.Duration)
	assert.Equal(t, 45*time.Second, v.B.Duration)
	assert.Zero(t, v.C.Duration)

	assert.Error(t, yaml.Unmarshal([]byte("a: soon\n"), &v))

	data, err := Duration{Duration: 2 * time.Second}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(data))

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"250ms"`)))
	assert.Equal(t, 250*time.Millisecond, d.Duration)
}
