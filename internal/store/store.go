// Package store keeps the published view of the dataset directory. Scans run
// on the caller's goroutine; the resulting snapshot is published on a Loop so
// consumers always see snapshots in order, and a scan that started before a
// newer published one is discarded.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/papapumpkin/osmpoi/internal/catalog"
	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/monitor"
	"github.com/papapumpkin/osmpoi/internal/pipeline"
)

// BuildTracker reports whether a dataset currently has a build queued or running.
// *pipeline.Pipeline satisfies this interface.
type BuildTracker interface {
	Active(name string) bool
}

// Builder schedules builds of raw extracts.
// *pipeline.Pipeline satisfies this interface.
type Builder interface {
	Enqueue(sourcePath string) (*pipeline.Job, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger; it is also passed to the change monitor.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracker lets the store tell in-progress builds from failed ones.
func WithTracker(t BuildTracker) Option {
	return func(s *Store) { s.tracker = t }
}

// WithBuilder routes added extracts to a build pipeline.
func WithBuilder(b Builder) Option {
	return func(s *Store) { s.builder = b }
}

// WithIgnore sets the catalog ignore patterns.
func WithIgnore(patterns ...string) Option {
	return func(s *Store) { s.ignore = patterns }
}

// WithMonitorOptions passes options to the change monitor.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(s *Store) { s.monitorOpts = append(s.monitorOpts, opts...) }
}

// WithLoop publishes on a caller-owned loop instead of a private one. The
// store does not close a loop it did not create.
func WithLoop(l *Loop) Option {
	return func(s *Store) { s.loop = l }
}

// Store owns the dataset collection for one root directory.
type Store struct {
	root        string
	ignore      []string
	logger      *slog.Logger
	tracker     BuildTracker
	builder     Builder
	monitorOpts []monitor.Option

	catalog  *catalog.Catalog
	monitor  *monitor.Monitor
	loop     *Loop
	ownsLoop bool

	current   atomic.Pointer[Snapshot]
	seq       atomic.Uint64
	published uint64 // last published scan sequence; loop goroutine only

	subsMu  sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// New creates a store for root. Nothing touches the filesystem until Initialize.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:   root,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:   make(map[int]chan *Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	cat, err := catalog.New(root, s.ignore...)
	if err != nil {
		return nil, err
	}
	s.catalog = cat
	if s.loop == nil {
		s.loop = NewLoop()
		s.ownsLoop = true
	}
	s.current.Store(&Snapshot{Root: root})
	return s, nil
}

// Root returns the dataset directory.
func (s *Store) Root() string {
	return s.root
}

// Loop returns the loop snapshots are published on.
func (s *Store) Loop() *Loop {
	return s.loop
}

// Initialize creates the root if needed, publishes the first listing and
// starts watching the root for changes.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating dataset root: %w", err)
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	opts := append([]monitor.Option{monitor.WithLogger(s.logger)}, s.monitorOpts...)
	s.monitor = monitor.New(s.root, s.onChange, opts...)
	return s.monitor.Start()
}

func (s *Store) onChange() {
	if err := s.Refresh(context.Background()); err != nil {
		s.logger.Warn("refresh after change failed", "root", s.root, "error", err)
	}
}

// Refresh rescans the root and publishes the listing on the loop. On a scan
// failure the previous snapshot stays published and the error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	seq := s.seq.Add(1)
	entries, err := s.catalog.Scan()
	if err != nil {
		s.logger.Warn("scan failed, keeping previous snapshot", "root", s.root, "error", err)
		return err
	}
	entries = s.classify(entries)
	return s.loop.Do(ctx, func() { s.publish(seq, entries) })
}

// classify marks intermediate files that no job is building as failed.
func (s *Store) classify(entries []dataset.Entry) []dataset.Entry {
	for i, e := range entries {
		if !e.Stage.Intermediate() {
			continue
		}
		if s.tracker != nil && s.tracker.Active(e.Name) {
			continue
		}
		entries[i].FailedAt = e.Stage
		entries[i].Stage = dataset.StageFailed
	}
	return entries
}

func (s *Store) publish(seq uint64, entries []dataset.Entry) {
	if seq <= s.published {
		s.logger.Debug("dropping stale scan", "seq", seq, "published", s.published)
		return
	}
	s.published = seq
	prev := s.current.Load()
	snap := &Snapshot{
		Version: prev.Version + 1,
		Root:    s.root,
		Entries: entries,
	}
	s.current.Store(snap)

	s.subsMu.Lock()
	for _, ch := range s.subs {
		offer(ch, snap)
	}
	s.subsMu.Unlock()
}

// offer replaces any undelivered snapshot in ch with snap.
func offer(ch chan *Snapshot, snap *Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns the most recently published snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Ready returns the finalized datasets of the current snapshot.
func (s *Store) Ready() []dataset.Entry {
	return s.Snapshot().Ready()
}

// Lookup finds a dataset by logical name in the current snapshot.
func (s *Store) Lookup(name string) (dataset.Entry, bool) {
	return s.Snapshot().Lookup(name)
}

// Subscribe returns a channel that always holds the latest snapshot not yet
// received. The current snapshot is delivered immediately. The returned
// function ends the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	offer(ch, s.current.Load())
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.subsMu.Unlock()
		})
	}
}

// Create adds a file to the collection. A finalized .poi dataset is copied
// into the root; an OpenStreetMap extract is handed to the build pipeline and
// the returned job tracks it.
func (s *Store) Create(ctx context.Context, sourcePath string) (*pipeline.Job, error) {
	var job *pipeline.Job
	switch {
	case strings.HasSuffix(sourcePath, dataset.ReadyExt):
		if err := s.importDataset(sourcePath); err != nil {
			return nil, err
		}
	case dataset.IsSource(sourcePath):
		if s.builder == nil {
			return nil, ErrNoBuilder
		}
		j, err := s.builder.Enqueue(sourcePath)
		if err != nil {
			return nil, err
		}
		job = j
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, sourcePath)
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after create failed", "error", err)
	}
	return job, nil
}

// importDataset copies a finalized dataset into the root through a hidden
// temp file so the .poi name only ever refers to a complete copy.
func (s *Store) importDataset(src string) error {
	name := dataset.LogicalName(src)
	if s.tracker != nil && s.tracker.Active(name) {
		return fmt.Errorf("%w: %s", ErrBuildActive, name)
	}
	dst := dataset.PathFor(s.root, name, dataset.StageReady)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", pipeline.ErrDatasetExists, name)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp := filepath.Join(s.root, "."+name+dataset.ReadyExt+".import")
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp import file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing import: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing import: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming import: %w", err)
	}
	s.logger.Info("dataset imported", "dataset", name, "from", src)
	return nil
}

// Delete removes the entry's file and republishes the listing.
func (s *Store) Delete(ctx context.Context, e dataset.Entry) error {
	if s.tracker != nil && e.Stage != dataset.StageReady && s.tracker.Active(e.Name) {
		return &DeleteError{Path: e.Path, Err: ErrBuildActive}
	}
	if err := os.Remove(e.Path); err != nil {
		return &DeleteError{Path: e.Path, Err: err}
	}
	s.logger.Info("dataset deleted", "path", e.Path)

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after delete failed", "error", err)
	}
	return nil
}

// Close stops the change monitor, ends all subscriptions and stops the loop
// if the store created it.
func (s *Store) Close() error {
	var err error
	if s.monitor != nil {
		err = s.monitor.Stop()
	}
	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
	if s.ownsLoop {
		s.loop.Close()
	}
	return err
}
