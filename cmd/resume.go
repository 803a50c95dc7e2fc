package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <name>",
	Short: "Continue a failed build from the stage it stopped at",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	ctx, cancel := setupSignalContext(cmd.Context(), s.printer)
	defer cancel()

	start := time.Now()
	job, err := s.app.Resume(ctx, args[0])
	if err != nil {
		return err
	}
	s.printer.JobQueued(job)
	if err := job.Wait(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	s.printer.JobFinished(job, time.Since(start))
	return job.Err()
}
