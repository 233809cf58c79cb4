package cmd

import (
	"github.com/spf13/cobra"
)

var islandsCmd = &cobra.Command{
	Use:   "islands <board.toml>",
	Short: "List zone outlines cut off from their net",
	Args:  cobra.ExactArgs(1),
	RunE:  runIslands,
}

func init() {
	islandsCmd.Flags().String("zone", "", "ID of the zone to inspect")
	_ = islandsCmd.MarkFlagRequired("zone")
	rootCmd.AddCommand(islandsCmd)
}

func runIslands(cmd *cobra.Command, args []string) error {
	zone, _ := cmd.Flags().GetString("zone")

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.load(args[0]); err != nil {
		return err
	}
	islands, err := s.data.FindIsolatedCopperIslands(zone)
	if err != nil {
		return err
	}
	s.printer.Islands(zone, islands)
	return nil
}
