package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/ratsnest/internal/engine"
	"github.com/papapumpkin/ratsnest/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats <board.toml>",
	Short: "Show per-net ratsnest counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.load(args[0]); err != nil {
		return err
	}
	rows, err := netStats(s.data)
	if err != nil {
		return err
	}
	s.printer.Stats(rows)
	s.printer.Conflicts(s.data.Conflicts(), s.data.NetName)
	return nil
}

// netStats collects one row per net that has copper.
func netStats(d *engine.Data) ([]ui.NetStats, error) {
	var rows []ui.NetStats
	for code := 1; code < d.NetCount(); code++ {
		n, err := d.Ratsnest(code)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		pads, err := d.PadCount(code)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ui.NetStats{
			Net:         code,
			Name:        d.NetName(code),
			Nodes:       n.NodeCount(),
			Pads:        pads,
			Unconnected: len(n.Unconnected()),
		})
	}
	return rows, nil
}
