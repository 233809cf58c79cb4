package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <board.toml>",
	Short: "Report missing connections",
	Long: `Loads a board, computes its connectivity and lists every pair of copper
islands that belong to the same net but are not joined. Exits non-zero when any
connection is missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.load(args[0]); err != nil {
		return err
	}
	report, err := s.data.CheckConnectivity()
	if err != nil {
		return err
	}
	s.printer.Conflicts(s.data.Conflicts(), s.data.NetName)
	s.printer.Disjoint(report)
	if len(report) > 0 {
		return fmt.Errorf("%s: %d missing connection(s)", args[0], len(report))
	}
	return nil
}
