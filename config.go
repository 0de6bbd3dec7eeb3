package dryerd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mdouchement/dryerd/environment"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/modbus"
	"github.com/mdouchement/dryerd/port"
	"github.com/mdouchement/dryerd/program"
	"go.yaml.in/yaml/v4"
)

const (
	ChannelLocal    = "local"
	ChannelUnixgram = "unixgram"

	KeyRuntimeDir = "DRYERD_RUNTIME_DIR"
)

type Config struct {
	Debug           bool               `yaml:"debug"`
	Socket          string             `yaml:"socket"`
	Serial          Serial             `yaml:"serial"`
	Channel         Channel            `yaml:"channel"`
	Polling         Polling            `yaml:"polling"`
	Autostop        Duration           `yaml:"autostop"`
	RestartInterval Duration           `yaml:"restart_interval"`
	Parameters      machine.Parameters `yaml:"parameters"`
	SelectedProgram int                `yaml:"selected_program"`
	Programs        []*program.Program `yaml:"programs"`
}

type Serial struct {
	Ports    []string `yaml:"ports"`
	VID      string   `yaml:"vid"`
	PID      string   `yaml:"pid"`
	BaudRate int      `yaml:"baudrate"`
	Address  uint8    `yaml:"address"`
	Timeout  Duration `yaml:"timeout"`
	Backoff  Duration `yaml:"backoff"`
	Attempts int      `yaml:"attempts"`
}

type Channel struct {
	Mode         string   `yaml:"mode"`
	RequestPath  string   `yaml:"request_path"`
	ResponsePath string   `yaml:"response_path"`
	Depth        int      `yaml:"depth"`
	SendTimeout  Duration `yaml:"send_timeout"`
	Poll         Duration `yaml:"poll"`
}

type Polling struct {
	Inbound Duration `yaml:"inbound"`
	State   Duration `yaml:"state"`
	Sensors Duration `yaml:"sensors"`
}

func Load(path string) (Config, error) {
	var c Config

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil {
		return c, err
	}

	return c, c.normalize()
}

func (c *Config) normalize() error {
	if c.Socket == "" {
		c.Socket = environment.GetEnvPath(KeyRuntimeDir, "/run/dryerd", "dryerd.sock")
	}

	//

	if c.Serial.Attempts < 0 {
		return errors.New("serial: attempts must be positive")
	}
	defaultDuration(&c.Serial.Timeout, modbus.DefaultTimeout)
	defaultDuration(&c.Serial.Backoff, modbus.DefaultBackoff)

	//

	switch c.Channel.Mode {
	case "":
		c.Channel.Mode = ChannelLocal
	case ChannelLocal, ChannelUnixgram:
	default:
		return fmt.Errorf("channel: invalid mode %q", c.Channel.Mode)
	}
	if c.Channel.RequestPath == "" {
		c.Channel.RequestPath = environment.GetEnvPath(KeyRuntimeDir, "/run/dryerd", "request.sock")
	}
	if c.Channel.ResponsePath == "" {
		c.Channel.ResponsePath = environment.GetEnvPath(KeyRuntimeDir, "/run/dryerd", "response.sock")
	}
	if c.Channel.RequestPath == c.Channel.ResponsePath {
		return errors.New("channel: request and response paths must differ")
	}
	if c.Channel.Depth <= 0 {
		c.Channel.Depth = 8
	}
	defaultDuration(&c.Channel.SendTimeout, 100*time.Millisecond)
	defaultDuration(&c.Channel.Poll, machine.DefaultPoll)

	//

	defaultDuration(&c.Polling.Inbound, 50*time.Millisecond)
	defaultDuration(&c.Polling.State, 300*time.Millisecond)
	defaultDuration(&c.Polling.Sensors, 600*time.Millisecond)

	if c.Autostop.Duration < 0 {
		return errors.New("autostop: must be positive")
	}

	//

	if len(c.Programs) == 0 {
		return errors.New("programs: none defined")
	}
	for i, p := range c.Programs {
		if p == nil {
			return fmt.Errorf("programs: %d: empty definition", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("programs: %d: %w", i, err)
		}
	}
	if _, ok := c.Program(c.SelectedProgram); !ok {
		return fmt.Errorf("selected_program: %w: %d", ErrNoProgram, c.SelectedProgram)
	}

	return nil
}

// Program implements ProgramStore.
func (c Config) Program(index int) (*program.Program, bool) {
	if index < 0 || index >= len(c.Programs) {
		return nil, false
	}

	return c.Programs[index], true
}

func (c Config) PortConfig() port.Config {
	return port.Config{
		Candidates: c.Serial.Ports,
		BaudRate:   c.Serial.BaudRate,
		VID:        c.Serial.VID,
		PID:        c.Serial.PID,
	}
}

func (c Config) ModbusConfig() modbus.Config {
	return modbus.Config{
		Address:  c.Serial.Address,
		Timeout:  c.Serial.Timeout.Duration,
		Backoff:  c.Serial.Backoff.Duration,
		Attempts: c.Serial.Attempts,
	}
}

func defaultDuration(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}
