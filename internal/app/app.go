// Package app wires the dataset store, build pipeline and query runners for
// one dataset directory behind a single facade used by the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/papapumpkin/osmpoi/internal/config"
	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/engine"
	"github.com/papapumpkin/osmpoi/internal/monitor"
	"github.com/papapumpkin/osmpoi/internal/pipeline"
	"github.com/papapumpkin/osmpoi/internal/query"
	"github.com/papapumpkin/osmpoi/internal/store"
	"github.com/papapumpkin/osmpoi/internal/telemetry"
)

// Option overrides a collaborator of the App.
type Option func(*App)

// WithBuildEngine replaces the external engine used for build stages.
func WithBuildEngine(e pipeline.Engine) Option {
	return func(a *App) { a.buildEngine = e }
}

// WithQueryEngine replaces the external engine used for queries.
func WithQueryEngine(e query.Engine) Option {
	return func(a *App) { a.queryEngine = e }
}

// QueryOptions tune RunQuery. Zero values fall back to the configured
// defaults.
type QueryOptions struct {
	DistanceKm float64
	Strict     bool
	// Native answers the query in-process instead of through the engine binary.
	Native bool
}

// App is an open dataset directory.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	buildEngine pipeline.Engine
	queryEngine query.Engine

	emitter  *telemetry.Emitter
	pipeline *pipeline.Pipeline
	store    *store.Store
	runner   *query.Runner
	native   *query.Runner
	cancel   context.CancelFunc
}

// Open prepares cfg.DataDir, publishes the first listing, starts watching the
// directory and starts the build worker.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.buildEngine == nil || a.queryEngine == nil {
		ex := engine.New(cfg.EnginePath, logger)
		if a.buildEngine == nil {
			a.buildEngine = ex
		}
		if a.queryEngine == nil {
			a.queryEngine = ex
		}
	}

	if cfg.TelemetryFile != "" {
		em, err := telemetry.NewEmitter(cfg.TelemetryFile)
		if err != nil {
			return nil, fmt.Errorf("opening telemetry: %w", err)
		}
		a.emitter = em
	}

	root, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		a.emitter.Close()
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.pipeline = pipeline.New(root, a.buildEngine,
		pipeline.WithLogger(logger),
		pipeline.WithEmitter(a.emitter),
		pipeline.WithOnComplete(a.onBuildComplete),
	)

	var monOpts []monitor.Option
	if cfg.Debounce > 0 {
		monOpts = append(monOpts, monitor.WithDebounce(cfg.Debounce))
	}
	st, err := store.New(root,
		store.WithLogger(logger),
		store.WithTracker(a.pipeline),
		store.WithBuilder(a.pipeline),
		store.WithIgnore(cfg.Ignore...),
		store.WithMonitorOptions(monOpts...),
	)
	if err != nil {
		cancel()
		a.emitter.Close()
		return nil, err
	}
	a.store = st
	if err := st.Initialize(ctx); err != nil {
		st.Close()
		cancel()
		a.emitter.Close()
		return nil, err
	}

	a.pipeline.Start(ctx)
	a.runner = query.NewRunner(a.queryEngine,
		query.WithWorkers(cfg.QueryWorkers),
		query.WithLogger(logger),
		query.WithEmitter(a.emitter),
	)
	a.native = query.NewRunner(&query.SQLiteEngine{Logger: logger},
		query.WithWorkers(cfg.QueryWorkers),
		query.WithLogger(logger),
		query.WithEmitter(a.emitter),
	)
	return a, nil
}

// onBuildComplete republishes the listing so a failed build shows up as
// failed even though its file did not change.
func (a *App) onBuildComplete(job *pipeline.Job) {
	if err := a.store.Refresh(context.Background()); err != nil {
		a.logger.Warn("refresh after build failed", "job", job.ID(), "error", err)
	}
}

// Root returns the absolute dataset directory.
func (a *App) Root() string {
	return a.store.Root()
}

// Config returns the configuration the App was opened with.
func (a *App) Config() config.Config {
	return a.cfg
}

// ListDatasets returns every entry of the current snapshot.
func (a *App) ListDatasets() []dataset.Entry {
	return a.store.Snapshot().Entries
}

// Snapshot returns the current published listing.
func (a *App) Snapshot() *store.Snapshot {
	return a.store.Snapshot()
}

// Subscribe streams published listings until the returned function is called.
func (a *App) Subscribe() (<-chan *store.Snapshot, func()) {
	return a.store.Subscribe()
}

// Refresh rescans the dataset directory.
func (a *App) Refresh(ctx context.Context) error {
	return a.store.Refresh(ctx)
}

// AddSource adds an extract or a finalized dataset. For an extract the
// returned job tracks the build; for a dataset it is nil.
func (a *App) AddSource(ctx context.Context, path string) (*pipeline.Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return a.store.Create(ctx, abs)
}

// DeleteDataset removes the dataset called name.
func (a *App) DeleteDataset(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	e, ok := a.store.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: dataset %s", ErrNotFound, name)
	}
	return a.store.Delete(ctx, e)
}

// RunQuery queries the finalized dataset called name, reading points from
// inputPath and writing matches to outputPath.
func (a *App) RunQuery(ctx context.Context, name, inputPath, outputPath string, opts QueryOptions) (query.Result, error) {
	if err := checkName(name); err != nil {
		return query.Result{}, err
	}
	req := query.Request{
		DatasetPath: dataset.PathFor(a.store.Root(), name, dataset.StageReady),
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Options: query.Options{
			DistanceKm: opts.DistanceKm,
			Strict:     opts.Strict || a.cfg.QueryStrict,
		},
	}
	if req.Options.DistanceKm <= 0 {
		req.Options.DistanceKm = a.cfg.QueryDistanceKm
	}
	if opts.Native {
		return a.native.Run(ctx, req)
	}
	return a.runner.Run(ctx, req)
}

// Export copies the finalized dataset called name to dest. When dest is a
// directory the file keeps its name.
func (a *App) Export(name, dest string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	e, ok := a.store.Lookup(name)
	if !ok || !e.IsReady() {
		return "", fmt.Errorf("%w: %s", query.ErrDatasetNotReady, name)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, filepath.Base(e.Path))
	}
	if err := copyFile(e.Path, dest); err != nil {
		return "", fmt.Errorf("exporting %s: %w", name, err)
	}
	a.logger.Info("dataset exported", "dataset", name, "to", dest)
	return dest, nil
}

// copyFile writes src to a temp file next to dst and renames it into place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Resume continues a failed build from the stage its file is at.
func (a *App) Resume(ctx context.Context, name string) (*pipeline.Job, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	job, err := a.pipeline.Resume(name)
	if err != nil {
		return nil, err
	}
	if err := a.store.Refresh(ctx); err != nil {
		a.logger.Warn("refresh after resume failed", "error", err)
	}
	return job, nil
}

// Jobs returns the running build followed by queued ones.
func (a *App) Jobs() []*pipeline.Job {
	return a.pipeline.Pending()
}

// Cancel removes the queued build with the given ID.
func (a *App) Cancel(ctx context.Context, id string) error {
	job, ok := a.pipeline.Find(id)
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err := a.pipeline.Cancel(job); err != nil {
		return err
	}
	if err := a.store.Refresh(ctx); err != nil {
		a.logger.Warn("refresh after cancel failed", "error", err)
	}
	return nil
}

// Close stops the build worker after the running job, stops watching and
// flushes telemetry.
func (a *App) Close() error {
	a.pipeline.Close()
	err := a.store.Close()
	a.cancel()
	if cerr := a.emitter.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
