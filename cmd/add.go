package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/osmpoi/internal/pipeline"
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Import .poi datasets or build them from OpenStreetMap extracts",
	Long: `Adds each path to the dataset directory. A finalized .poi file is copied in;
an extract (*.osm.pbf) is queued for building. Builds run one at a time and the
command waits for all of them. Interrupting cancels builds that have not started
and waits for the running one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	ctx, cancel := setupSignalContext(cmd.Context(), s.printer)
	defer cancel()

	start := time.Now()
	var jobs []*pipeline.Job
	var errs []error
	for _, path := range args {
		job, err := s.app.AddSource(ctx, path)
		if err != nil {
			s.printer.Error(fmt.Sprintf("%s: %v", path, err))
			errs = append(errs, err)
			continue
		}
		if job == nil {
			s.printer.Info("imported " + path)
			continue
		}
		s.printer.JobQueued(job)
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		if err := job.Wait(ctx); err != nil && ctx.Err() != nil {
			break
		}
		s.printer.JobFinished(job, time.Since(start))
		if job.State() == pipeline.JobFailed {
			errs = append(errs, job.Err())
		}
	}
	if ctx.Err() != nil {
		// Queued builds are cancelled by cleanup; report what is left.
		s.printer.Jobs(s.app.Jobs())
	}
	return errors.Join(errs...)
}
