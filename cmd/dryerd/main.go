package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/mdouchement/dryerd"
	"github.com/mdouchement/dryerd/channel"
	showports "github.com/mdouchement/dryerd/cmd/dryerd/show_ports"
	showprogram "github.com/mdouchement/dryerd/cmd/dryerd/show_program"
	"github.com/mdouchement/dryerd/cmd/dryerd/worker"
	"github.com/mdouchement/dryerd/machine"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath   string
	dummy   bool
	speedup int
)

func main() {
	cmd := &cobra.Command{
		Use:     "dryerd",
		Short:   "A controller for industrial tumble dryer boards",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/dryerd/dryerd.yml", "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Start dryerd with a simulated board")
	cmd.Flags().IntVarP(&speedup, "speedup", "", 60, "Clock speedup of the simulated board")
	cmd.AddCommand(worker.Command())
	cmd.AddCommand(showports.Command())
	cmd.AddCommand(showprogram.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for dryerd",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := dryerd.Load(cpath)
	if err != nil {
		return err
	}

	log := dryerd.NewLogger(cfg.Debug)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("dryerd version %s", version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var send channel.Sender[machine.Command]
	var recv channel.Receiver[machine.Response]

	switch cfg.Channel.Mode {
	case dryerd.ChannelUnixgram:
		if dummy {
			return errors.New("--dummy must be given to `dryerd worker` with the unixgram channel")
		}

		listener, err := channel.Listen[machine.Response](cfg.Channel.ResponsePath, machine.ResponseCodec{})
		if err != nil {
			return fmt.Errorf("channel: %w", err)
		}
		defer listener.Close()

		dialer := channel.Dial[machine.Command](cfg.Channel.RequestPath, machine.CommandCodec{}, cfg.Channel.SendTimeout.Duration)
		defer dialer.Close()

		log.Infof("Waiting for `dryerd worker` on %s", cfg.Channel.RequestPath)
		send, recv = dialer, listener
	default:
		requests := channel.NewQueue[machine.Command](cfg.Channel.Depth, cfg.Channel.SendTimeout.Duration)
		defer requests.Close()
		responses := channel.NewQueue[machine.Response](cfg.Channel.Depth, cfg.Channel.SendTimeout.Duration)
		defer responses.Close()

		open := dryerd.SerialOpener(cfg.PortConfig(), log.WithPrefix("[port]"))
		if dummy {
			board := dryerd.NewDummyMachine(speedup)
			board.SetLogger(log.WithPrefix("[dummy]"))
			open = board.Open
		}

		w := machine.NewWorker(requests, responses, open, cfg.ModbusConfig())
		w.SetPoll(cfg.Channel.Poll.Duration)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.WithError(err).Error("Worker stopped")
			}
		}()

		send, recv = requests, responses
	}

	controller, err := dryerd.New(cfg, send, recv)
	if err != nil {
		return err
	}
	controller.Launch(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	<-ctx.Done()
	cancel()

	log.Info("Gracefully shutdown")
	return nil
}
