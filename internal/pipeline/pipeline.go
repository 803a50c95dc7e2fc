// Package pipeline builds POI datasets from OpenStreetMap extracts. Jobs run
// one at a time on a single worker in FIFO order. The work file is renamed to
// the extension of each stage before that stage runs, and the finished file is
// renamed to the .poi extension in one step, so a crash at any point leaves a
// file whose name says how far the build got.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/telemetry"
)

// Engine runs the external build stages. Each call returns a status code;
// zero means success. Stages are safe to re-run against the same work file
// after a failure.
type Engine interface {
	Dump(ctx context.Context, sourcePath, workPath string) int
	ParseWays(ctx context.Context, workPath string) int
	ParseRelations(ctx context.Context, workPath string) int
	Refine(ctx context.Context, workPath string) int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEmitter records build events to a telemetry stream.
func WithEmitter(e *telemetry.Emitter) Option {
	return func(p *Pipeline) { p.emitter = e }
}

// WithOnComplete registers a callback invoked on the worker goroutine after
// every job reaches a terminal state.
func WithOnComplete(fn func(*Job)) Option {
	return func(p *Pipeline) { p.onComplete = fn }
}

// Pipeline owns the build queue for one dataset root.
type Pipeline struct {
	root       string
	engine     Engine
	logger     *slog.Logger
	emitter    *telemetry.Emitter
	onComplete func(*Job)

	mu      sync.Mutex
	queue   []*Job
	active  map[string]*Job // queued or running, by dataset name
	running *Job
	started bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a pipeline writing into root. Jobs may be enqueued before
// Start but do not run until it is called.
func New(root string, engine Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		root:   root,
		engine: engine,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		active: make(map[string]*Job),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker. Stages run with a context detached from ctx's
// cancellation: a running stage is never interrupted, the worker only stops
// picking up new jobs once ctx ends.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.wg.Add(1)
	go p.work(ctx)
}

// Close stops accepting jobs, cancels queued ones and waits for the running
// job to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	pending := p.queue
	p.queue = nil
	for _, job := range pending {
		delete(p.active, job.name)
	}
	p.mu.Unlock()

	for _, job := range pending {
		job.finish(JobCancelled, nil)
		p.emit(job, telemetry.KindJobCancelled, 0)
	}
	p.wg.Wait()
}

// Enqueue schedules a build of the extract at sourcePath. The dataset name is
// derived from the file name.
func (p *Pipeline) Enqueue(sourcePath string) (*Job, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, sourcePath, err)
	}
	name := dataset.LogicalName(sourcePath)
	if _, err := os.Stat(dataset.PathFor(p.root, name, dataset.StageReady)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetExists, name)
	}
	return p.schedule(newJob(name, sourcePath, dataset.StageDumping))
}

// Resume schedules a failed build to continue from the stage its
// intermediate file is at. A build that failed while dumping has no usable
// work file and must be re-added from its source.
func (p *Pipeline) Resume(name string) (*Job, error) {
	for s := dataset.StageRefining; s >= dataset.StageDumping; s-- {
		if _, err := os.Stat(dataset.PathFor(p.root, name, s)); err != nil {
			continue
		}
		if s == dataset.StageDumping {
			return nil, fmt.Errorf("%w: %s failed while dumping, add the source again", ErrNotResumable, name)
		}
		return p.schedule(newJob(name, "", s))
	}
	return nil, fmt.Errorf("%w: no intermediate file for %s", ErrNotResumable, name)
}

func (p *Pipeline) schedule(job *Job) (*Job, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := p.active[job.name]; dup {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.name)
	}
	p.active[job.name] = job
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}

	p.logger.Info("build queued", "job", job.id, "dataset", job.name, "from", job.from)
	p.emit(job, telemetry.KindJobQueued, 0)
	return job, nil
}

// Cancel removes a queued job without touching the filesystem. Jobs that have
// started or finished cannot be cancelled and return ErrJobStarted.
func (p *Pipeline) Cancel(job *Job) error {
	p.mu.Lock()
	idx := -1
	for i, q := range p.queue {
		if q == job {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobStarted, job.id)
	}
	p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
	delete(p.active, job.name)
	p.mu.Unlock()

	job.finish(JobCancelled, nil)
	p.logger.Info("build cancelled", "job", job.id, "dataset", job.name)
	p.emit(job, telemetry.KindJobCancelled, 0)
	return nil
}

// Active reports whether a job for name is queued or running.
func (p *Pipeline) Active(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[name]
	return ok
}

// Find returns the queued or running job with the given ID.
func (p *Pipeline) Find(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, job := range p.active {
		if job.id == id {
			return job, true
		}
	}
	return nil, false
}

// Pending returns the running job (if any) followed by queued jobs in order.
func (p *Pipeline) Pending() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	jobs := make([]*Job, 0, len(p.queue)+1)
	if p.running != nil {
		jobs = append(jobs, p.running)
	}
	return append(jobs, p.queue...)
}

func (p *Pipeline) work(ctx context.Context) {
	defer p.wg.Done()
	stageCtx := context.WithoutCancel(ctx)

	for {
		job := p.next()
		if job == nil {
			select {
			case <-p.wake:
				continue
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}

		err := p.build(stageCtx, job)

		p.mu.Lock()
		p.running = nil
		delete(p.active, job.name)
		p.mu.Unlock()

		if err != nil {
			p.logger.Error("build failed", "job", job.id, "dataset", job.name, "stage", job.Stage(), "error", err)
			var se *StageError
			code := 0
			if errors.As(err, &se) {
				code = se.Code
			}
			p.emit(job, telemetry.KindJobFailed, code)
			job.finish(JobFailed, err)
		} else {
			p.logger.Info("build finalized", "job", job.id, "dataset", job.name)
			p.emit(job, telemetry.KindJobFinalized, 0)
			job.finish(JobSucceeded, nil)
		}

		if p.onComplete != nil {
			p.onComplete(job)
		}
	}
}

func (p *Pipeline) next() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.queue) == 0 {
		return nil
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	p.running = job
	job.setRunning()
	return job
}

// build runs the stages of one job from its starting stage through finalize.
func (p *Pipeline) build(ctx context.Context, job *Job) error {
	ready := dataset.PathFor(p.root, job.name, dataset.StageReady)
	if _, err := os.Stat(ready); err == nil {
		return fmt.Errorf("%w: %s", ErrDatasetExists, job.name)
	}
	if job.from == dataset.StageDumping {
		if err := p.clearStale(job.name); err != nil {
			return err
		}
	}

	work := dataset.PathFor(p.root, job.name, job.from)
	for stage := job.from; stage <= dataset.StageRefining; stage = stage.Next() {
		if stage != job.from {
			next := dataset.PathFor(p.root, job.name, stage)
			if err := os.Rename(work, next); err != nil {
				return fmt.Errorf("advancing %s to %s: %w", job.name, stage, err)
			}
			work = next
		}
		job.setStage(stage)

		p.logger.Debug("stage start", "job", job.id, "dataset", job.name, "stage", stage)
		p.emit(job, telemetry.KindStageStart, 0)
		if code := p.invoke(ctx, stage, job.source, work); code != 0 {
			return &StageError{Stage: stage, Code: code}
		}
		p.emit(job, telemetry.KindStageDone, 0)
	}

	if err := os.Rename(work, ready); err != nil {
		return fmt.Errorf("finalizing %s: %w", job.name, err)
	}
	job.setStage(dataset.StageReady)
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, stage dataset.Stage, source, work string) int {
	switch stage {
	case dataset.StageDumping:
		return p.engine.Dump(ctx, source, work)
	case dataset.StageParsingWays:
		return p.engine.ParseWays(ctx, work)
	case dataset.StageParsingRelations:
		return p.engine.ParseRelations(ctx, work)
	case dataset.StageRefining:
		return p.engine.Refine(ctx, work)
	}
	return -1
}

// clearStale removes intermediate files left by an earlier failed build of
// name so the dataset keeps a single file on disk.
func (p *Pipeline) clearStale(name string) error {
	for s := dataset.StageDumping; s <= dataset.StageRefining; s++ {
		path := dataset.PathFor(p.root, name, s)
		err := os.Remove(path)
		if err == nil {
			p.logger.Info("removed stale intermediate", "path", path)
			continue
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("removing stale %s: %w", path, err)
		}
	}
	return nil
}

func (p *Pipeline) emit(job *Job, kind string, code int) {
	evt := telemetry.Event{
		Kind:    kind,
		JobID:   job.id,
		Dataset: job.name,
		Stage:   job.Stage().String(),
		Code:    code,
	}
	if err := p.emitter.Emit(evt); err != nil {
		p.logger.Warn("telemetry emit failed", "error", err)
	}
}
