package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/osmpoi/internal/config"
	"github.com/papapumpkin/osmpoi/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "View the JSONL build event stream",
	Long: `Reads and formats the telemetry file configured by telemetry_file.

With --follow (-f), watches the file for new events (like tail -f).`,
	Args: cobra.NoArgs,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	telemetryCmd.Flags().String("dataset", "", "only show events for this dataset")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.TelemetryFile == "" {
		return fmt.Errorf("telemetry: telemetry_file is not configured")
	}
	follow, _ := cmd.Flags().GetBool("follow")
	only, _ := cmd.Flags().GetString("dataset")

	f, err := os.Open(cfg.TelemetryFile)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", cfg.TelemetryFile, err)
	}
	defer f.Close()

	w := cmd.OutOrStdout()
	reader := bufio.NewReader(f)
	if err := drainEvents(w, reader, only); err != nil {
		return fmt.Errorf("telemetry: read %s: %w", cfg.TelemetryFile, err)
	}
	if !follow {
		return nil
	}

	ctx, cancel := setupSignalContext(cmd.Context(), nil)
	defer cancel()
	return tailFollow(ctx, w, reader, cfg.TelemetryFile, only)
}

// drainEvents prints every complete line currently available from r.
func drainEvents(w io.Writer, r *bufio.Reader, only string) error {
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			printEvent(w, line, only)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// tailFollow watches the file for new data using fsnotify and prints new events.
func tailFollow(ctx context.Context, w io.Writer, r *bufio.Reader, path, only string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := drainEvents(w, r, only); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("telemetry: watch %s: %w", path, err)
		}
	}
}

// printEvent decodes a JSONL line and prints a human-readable representation.
func printEvent(w io.Writer, line, only string) {
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		fmt.Fprintf(w, "??? %s\n", line)
		return
	}
	if only != "" && evt.Dataset != only {
		return
	}

	ts := evt.Timestamp.Local().Format(time.TimeOnly)
	parts := []string{fmt.Sprintf("[%s]", ts), evt.Kind}

	if evt.Dataset != "" {
		parts = append(parts, fmt.Sprintf("dataset=%s", evt.Dataset))
	}
	if evt.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", evt.Stage))
	}
	if evt.Code != 0 {
		parts = append(parts, fmt.Sprintf("code=%d", evt.Code))
	}
	if evt.JobID != "" {
		parts = append(parts, fmt.Sprintf("job=%s", evt.JobID))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}

	fmt.Fprintln(w, strings.Join(parts, " "))
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
