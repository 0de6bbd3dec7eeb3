package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mdouchement/dryerd"
	"github.com/spf13/cobra"
)

var errStreamClosed = errors.New("monitor stream closed by dryerd")

func Command(client *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Start the TUI monitor display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://unix/monitor", nil)
			if err != nil {
				return err
			}

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
				return fmt.Errorf("monitor: %s: %q", resp.Status, string(b))
			}

			m := newTUI()
			tui := tea.NewProgram(m, tea.WithAltScreen())

			go func() {
				tui.Send(streamEnd{err: stream(resp.Body, func(s dryerd.Snapshot) { tui.Send(s) })})
			}()

			if _, err = tui.Run(); err != nil {
				return err
			}
			return m.err
		},
	}
}

// stream decodes the snapshots of the monitor events until the stream ends.
func stream(r io.Reader, fn func(dryerd.Snapshot)) error {
	events := dryerd.NewSSEReader(r)

	for {
		event, err := events.Next()
		if errors.Is(err, io.EOF) {
			return errStreamClosed
		}
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}

		var snapshot dryerd.Snapshot
		if err = json.Unmarshal(event, &snapshot); err != nil {
			return fmt.Errorf("monitor: snapshot: %w", err)
		}

		fn(snapshot)
	}
}
