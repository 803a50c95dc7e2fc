package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/pipeline"
	"github.com/papapumpkin/osmpoi/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the dataset listing every time it changes",
	Long: `Watches the dataset directory and prints a summary line for every published
listing until interrupted. With --build, extracts copied into the directory are
queued for building as they appear.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("build", false, "build extracts that appear in the dataset directory")
	watchCmd.Flags().Bool("full", false, "print the full listing instead of a summary")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	ctx, cancel := setupSignalContext(cmd.Context(), s.printer)
	defer cancel()

	build, _ := cmd.Flags().GetBool("build")
	full, _ := cmd.Flags().GetBool("full")

	snaps, unsubscribe := s.app.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if full {
				s.printer.Datasets(snap.Entries)
			} else {
				s.printer.Snapshot(snap.Version, snap.Entries)
			}
			if build {
				buildNewSources(ctx, s, snap)
			}
		}
	}
}

// buildNewSources queues every extract in the snapshot whose dataset has no
// other file yet. A failed build keeps its intermediate file and is left alone.
func buildNewSources(ctx context.Context, s *session, snap *store.Snapshot) {
	built := make(map[string]bool)
	for _, e := range snap.Entries {
		if e.Stage != dataset.StageSource {
			built[e.Name] = true
		}
	}
	for _, e := range snap.Entries {
		if e.Stage != dataset.StageSource || built[e.Name] {
			continue
		}
		job, err := s.app.AddSource(ctx, e.Path)
		switch {
		case err == nil:
			s.printer.JobQueued(job)
		case errors.Is(err, pipeline.ErrDuplicateJob), errors.Is(err, pipeline.ErrDatasetExists):
		default:
			s.printer.Warn(e.Path + ": " + err.Error())
		}
	}
}
