package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Delete datasets",
	Long:  "Deletes the file of each named dataset. Datasets with a queued or running build cannot be deleted.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	for _, name := range args {
		if err := s.app.DeleteDataset(cmd.Context(), name); err != nil {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
		s.printer.Info("deleted " + name)
	}
	return nil
}
