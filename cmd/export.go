package cmd

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <name> <dest>",
	Short: "Copy a finalized dataset out of the dataset directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	dest, err := s.app.Export(args[0], args[1])
	if err != nil {
		return err
	}
	s.printer.Info("exported " + args[0] + " to " + dest)
	return nil
}
