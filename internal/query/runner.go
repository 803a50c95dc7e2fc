// Package query runs proximity queries against finalized POI datasets on a
// bounded pool of background goroutines.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/telemetry"
)

// DefaultDistanceKm is the search radius used when none is given.
const DefaultDistanceKm = 1.0

// Options tune a single query.
type Options struct {
	// DistanceKm is the search radius around each input point.
	DistanceKm float64
	// Strict keeps only POIs whose centre lies within DistanceKm; otherwise any
	// POI whose extent touches the search box is reported.
	Strict bool
}

// Engine executes a query and returns a status code; zero means success.
type Engine interface {
	Query(ctx context.Context, inputPath, outputPath, datasetPath string, opts Options) int
}

// Request names the files a query reads and writes.
type Request struct {
	DatasetPath string
	InputPath   string
	OutputPath  string
	Options     Options
}

// Result describes a finished query.
type Result struct {
	Request  Request
	Duration time.Duration
}

// Future is the pending outcome of a submitted query.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

// Done is closed once the query has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the query finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds the number of queries running at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEmitter records finished queries to a telemetry stream.
func WithEmitter(e *telemetry.Emitter) RunnerOption {
	return func(r *Runner) { r.emitter = e }
}

// Runner dispatches queries. Queries share no state and may run concurrently
// with each other and with a build.
type Runner struct {
	engine  Engine
	workers int
	sem     *semaphore.Weighted
	logger  *slog.Logger
	emitter *telemetry.Emitter
}

// NewRunner creates a runner backed by engine.
func NewRunner(engine Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:  engine,
		workers: 2,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sem = semaphore.NewWeighted(int64(r.workers))
	return r
}

// Submit starts the query on a background goroutine.
func (r *Runner) Submit(ctx context.Context, req Request) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = r.execute(ctx, req)
	}()
	return f
}

// Run submits the query and waits for it.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	return r.Submit(ctx, req).Wait(ctx)
}

func (r *Runner) execute(ctx context.Context, req Request) (Result, error) {
	if req.Options.DistanceKm <= 0 {
		req.Options.DistanceKm = DefaultDistanceKm
	}
	if err := Validate(req); err != nil {
		return Result{Request: req}, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{Request: req}, err
	}
	defer r.sem.Release(1)

	start := time.Now()
	code := r.engine.Query(ctx, req.InputPath, req.OutputPath, req.DatasetPath, req.Options)
	res := Result{Request: req, Duration: time.Since(start)}

	r.emit(req, code)
	if code != 0 {
		r.logger.Error("query failed", "dataset", req.DatasetPath, "code", code)
		return res, &EngineError{Code: code}
	}
	r.logger.Info("query done", "dataset", req.DatasetPath, "output", req.OutputPath, "duration", res.Duration)
	return res, nil
}

func (r *Runner) emit(req Request, code int) {
	evt := telemetry.Event{
		Kind:    telemetry.KindQueryDone,
		Dataset: dataset.LogicalName(req.DatasetPath),
		Code:    code,
	}
	if err := r.emitter.Emit(evt); err != nil {
		r.logger.Warn("telemetry emit failed", "error", err)
	}
}

// Validate checks the preconditions of a query without writing anything to
// the output path.
func Validate(req Request) error {
	if !strings.HasSuffix(req.DatasetPath, dataset.ReadyExt) {
		return fmt.Errorf("%w: %s", ErrDatasetNotReady, req.DatasetPath)
	}
	info, err := os.Stat(req.DatasetPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrDatasetNotReady, req.DatasetPath)
	}

	in, err := os.Open(req.InputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	in.Close()

	return checkWritableDir(filepath.Dir(req.OutputPath))
}

// checkWritableDir probes dir with a temp file that is removed straight away.
func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputUnwritable, dir)
	}
	probe, err := os.CreateTemp(dir, ".osmpoi-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
