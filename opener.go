package dryerd

import (
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/dryerd/port"
	"github.com/mdouchement/logger"
)

// SerialOpener returns an opener discovering the board on the serial ports.
func SerialOpener(cfg port.Config, log logger.Logger) machine.Opener {
	return func() (machine.Link, error) {
		p, err := port.Discover(cfg, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
