package cmd

import (
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List datasets and in-progress builds",
	Args:    cobra.NoArgs,
	RunE:    runLs,
}

func init() {
	lsCmd.Flags().Bool("ready", false, "only list finalized datasets")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	entries := s.app.ListDatasets()
	if ready, _ := cmd.Flags().GetBool("ready"); ready {
		entries = s.app.Snapshot().Ready()
	}
	s.printer.Datasets(entries)
	return nil
}
