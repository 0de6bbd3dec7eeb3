package showports

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mdouchement/dryerd/port"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func Command() *cobra.Command {
	var vid, pid string

	cmd := &cobra.Command{
		Use:   "show-ports",
		Short: "Show the serial ports that can be used to reach the board",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			ports, err := port.List(vid, pid)
			if err != nil {
				return err
			}

			slices.SortStableFunc(ports, func(a, b *enumerator.PortDetails) int {
				return strings.Compare(a.Name, b.Name)
			})

			for _, p := range ports {
				if !p.IsUSB {
					fmt.Printf("%-16s\n", p.Name)
					continue
				}
				fmt.Printf("%-16s %s:%s   \"%s\" (%s)\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&vid, "vid", "", "", "Filter on USB vendor ID")
	cmd.Flags().StringVarP(&pid, "pid", "", "", "Filter on USB product ID")

	return cmd
}
