package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/mdouchement/dryerd"
	"github.com/mdouchement/dryerd/channel"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var dummy bool
	var speedup int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the serial worker of an unixgram channel",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := dryerd.Load(cpath)
			if err != nil {
				return err
			}
			if cfg.Channel.Mode != dryerd.ChannelUnixgram {
				return errors.New("the worker requires `channel.mode: unixgram`")
			}

			log := dryerd.NewLogger(cfg.Debug)
			ctx := logger.WithLogger(context.Background(), log)

			requests, err := channel.Listen[machine.Command](cfg.Channel.RequestPath, machine.CommandCodec{})
			if err != nil {
				return fmt.Errorf("channel: %w", err)
			}
			defer requests.Close()

			responses := channel.Dial[machine.Response](cfg.Channel.ResponsePath, machine.ResponseCodec{}, cfg.Channel.SendTimeout.Duration)
			defer responses.Close()

			open := dryerd.SerialOpener(cfg.PortConfig(), log.WithPrefix("[port]"))
			if dummy {
				board := dryerd.NewDummyMachine(speedup)
				board.SetLogger(log.WithPrefix("[dummy]"))
				open = board.Open
			}

			w := machine.NewWorker(requests, responses, open, cfg.ModbusConfig())
			w.SetPoll(cfg.Channel.Poll.Duration)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			log.Infof("Worker listening on %s", requests.Path())
			err = w.Run(ctx)

			m := w.Metrics()
			log.Infof("Worker stopped - attempts: %d - retries: %d - failures: %d - exceptions: %d",
				m.Attempts.Load(), m.Retries.Load(), m.Failures.Load(), m.Exceptions.Load())
			return err
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/dryerd/dryerd.yml", "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Drive a simulated board")
	cmd.Flags().IntVarP(&speedup, "speedup", "", 60, "Clock speedup of the simulated board")

	return cmd
}
