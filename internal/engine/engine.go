// Package engine drives the external osmpoi binary that performs the heavy
// build and query work. Every call maps to one subcommand and returns the
// process exit status.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/papapumpkin/osmpoi/internal/query"
)

// LaunchFailed is returned when the binary could not be started at all.
const LaunchFailed = -1

// Exec runs build stages and queries by invoking the binary at Path.
type Exec struct {
	Path   string
	Logger *slog.Logger
}

// New returns an Exec for the binary at path.
func New(path string, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{Path: path, Logger: logger}
}

// Dump loads the raw extract at sourcePath into the work file.
func (e *Exec) Dump(ctx context.Context, sourcePath, workPath string) int {
	return e.run(ctx, "dump", sourcePath, workPath)
}

// ParseWays computes way extents in the work file.
func (e *Exec) ParseWays(ctx context.Context, workPath string) int {
	return e.run(ctx, "parse-ways", workPath)
}

// ParseRelations computes relation extents in the work file.
func (e *Exec) ParseRelations(ctx context.Context, workPath string) int {
	return e.run(ctx, "parse-relations", workPath)
}

// Refine reduces the work file to the final poi table.
func (e *Exec) Refine(ctx context.Context, workPath string) int {
	return e.run(ctx, "refine", workPath)
}

// Query runs a proximity query through the binary.
func (e *Exec) Query(ctx context.Context, inputPath, outputPath, datasetPath string, opts query.Options) int {
	return e.run(ctx, buildQueryArgs(inputPath, outputPath, datasetPath, opts)...)
}

// buildQueryArgs constructs the arguments of the query subcommand.
func buildQueryArgs(inputPath, outputPath, datasetPath string, opts query.Options) []string {
	args := []string{"query", inputPath, outputPath, datasetPath,
		"--distance", strconv.FormatFloat(opts.DistanceKm, 'f', -1, 64)}
	if opts.Strict {
		args = append(args, "--strict")
	}
	return args
}

func (e *Exec) run(ctx context.Context, args ...string) int {
	e.Logger.Debug("running engine", "path", e.Path, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.SysProcAttr = sessionAttr()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		e.Logger.Warn("engine exited with error",
			"command", args[0], "code", exitErr.ExitCode(), "stderr", strings.TrimSpace(stderr.String()))
		return exitErr.ExitCode()
	}
	e.Logger.Error("engine launch failed", "path", e.Path, "command", args[0], "error", err)
	return LaunchFailed
}

// Validate checks that the binary exists and responds to --version.
func (e *Exec) Validate() error {
	out, err := exec.Command(e.Path, "--version").Output()
	if err != nil {
		return fmt.Errorf("osmpoi engine not found at %q: %w", e.Path, err)
	}
	e.Logger.Debug("engine version", "version", strings.TrimSpace(string(out)))
	return nil
}
