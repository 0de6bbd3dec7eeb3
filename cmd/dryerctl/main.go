package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mdouchement/dryerd"
	"github.com/mdouchement/dryerd/cmd/dryerctl/monitor"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v4"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

func main() {
	client := &http.Client{}

	cmd := &cobra.Command{
		Use:     "dryerctl",
		Short:   "A ctl use to interact with dryerd",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			socket, err := findSocket()
			if err != nil {
				return err
			}

			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
				DisableCompression: false,
			}
			return nil
		},
	}
	cmd.AddCommand(monitor.Command(client))
	cmd.AddCommand(intent(client, "start", "Start or resume the selected program", 0))
	cmd.AddCommand(intent(client, "stop", "Stop the running program", 0))
	cmd.AddCommand(intent(client, "pause", "Pause the running program", 0))
	cmd.AddCommand(intent(client, "restart", "Reopen the serial link to the board", 0))
	cmd.AddCommand(intent(client, "program", "Select the program run by the next start", 1, "index"))
	cmd.AddCommand(intent(client, "output", "Test an output relay (value 0 or 1)", 2, "channel", "value"))
	cmd.AddCommand(intent(client, "pwm", "Test a PWM output (speed in %)", 2, "channel", "speed"))
	cmd.AddCommand(statusCommand(client))
	cmd.AddCommand(statisticsCommand(client))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for dryerctl",
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

//
// Commands
//

func intent(client *http.Client, name, short string, nargs int, keys ...string) *cobra.Command {
	use := name
	for _, k := range keys {
		use += " <" + k + ">"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(_ *cobra.Command, args []string) error {
			query := url.Values{}
			for i, k := range keys {
				query.Set(k, args[i])
			}

			return post(client, name, query)
		},
	}
}

func statusCommand(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.Get("http://unix/status")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if err = checkStatus(resp); err != nil {
				return err
			}

			_, err = io.Copy(os.Stdout, resp.Body)
			fmt.Println()
			return err
		},
	}
}

func statisticsCommand(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "statistics",
		Short: "Read the statistics counters of the board",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			requested := time.Now()
			if err := post(client, "statistics", nil); err != nil {
				return err
			}

			// The counters are read asynchronously by the daemon.
			for range 20 {
				time.Sleep(100 * time.Millisecond)

				snapshot, err := status(client)
				if err != nil {
					return err
				}
				if snapshot.Statistics == nil || snapshot.StatisticsAt.Before(requested) {
					continue
				}

				s := snapshot.Statistics
				fmt.Printf("Cycles:            %d\n", s.Cycles)
				fmt.Printf("Partial cycles:    %d\n", s.PartialCycles)
				fmt.Printf("Active time:       %s\n", time.Duration(s.ActiveTime)*time.Second)
				fmt.Printf("Work time:         %s\n", time.Duration(s.WorkTime)*time.Second)
				fmt.Printf("Ventilation time:  %s\n", time.Duration(s.VentilationTime)*time.Second)
				return nil
			}

			return errors.New("statistics not received")
		},
	}
}

func post(client *http.Client, name string, query url.Values) error {
	u := url.URL{Scheme: "http", Host: "unix", Path: "/" + name, RawQuery: query.Encode()}
	resp, err := client.Post(u.String(), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func status(client *http.Client) (snapshot dryerd.Snapshot, err error) {
	resp, err := client.Get("http://unix/status")
	if err != nil {
		return snapshot, err
	}
	defer resp.Body.Close()

	if err = checkStatus(resp); err != nil {
		return snapshot, err
	}

	err = json.NewDecoder(resp.Body).Decode(&snapshot)
	return snapshot, err
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
}

//
//
//

type config struct {
	Socket string `yaml:"socket"`
}

func findSocket() (string, error) {
	socket := "/run/dryerd/dryerd.sock"
	if _, err := os.Stat(socket); err == nil {
		return socket, nil
	}

	u, err := user.Current()
	if err != nil {
		return "", err
	}

	var cfg config
	cpath := filepath.Join(u.HomeDir, ".config", "dryerctl", "dryerctl.yml") // Does not follow XDG..
	if p, err := os.ReadFile(cpath); err == nil {
		err = yaml.Unmarshal(p, &cfg)
		if err != nil {
			return "", err
		}

		if _, err = os.Stat(cfg.Socket); err == nil {
			return cfg.Socket, nil
		}

		fmt.Println("Invalid socket path:", cfg.Socket)
	}

	fmt.Print("Enter a socket path: ")
	r := bufio.NewReader(os.Stdin)
	socket, err = r.ReadString('\n')
	if err != nil {
		return "", err
	}

	socket = strings.TrimSpace(socket)

	if err = os.MkdirAll(filepath.Dir(cpath), 0o755); err != nil {
		return "", err
	}

	cfg.Socket = socket
	p, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	return socket, os.WriteFile(cpath, p, 0o600)
}
