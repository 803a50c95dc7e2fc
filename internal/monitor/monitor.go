// Package monitor watches the dataset root for filesystem changes and turns
// bursts of events into a single coalesced callback.
package monitor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchUnavailable indicates the OS watch on the root could not be acquired.
var ErrWatchUnavailable = errors.New("watch unavailable")

// DefaultDebounce is the quiet period after the last event before the
// callback fires.
const DefaultDebounce = 100 * time.Millisecond

// DefaultMaxLatency bounds how long a continuous stream of events can hold
// back the callback.
const DefaultMaxLatency = time.Second

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets the coalescing window. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithMaxLatency sets the longest time between the first event of a burst and
// the callback, however busy the directory stays. Non-positive values keep
// the default.
func WithMaxLatency(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.maxLatency = d
		}
	}
}

// WithLogger sets the logger used for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor watches a single directory. The callback runs on a dedicated
// notification goroutine, never on the event loop, so a slow callback only
// delays (and coalesces) later signals.
type Monitor struct {
	root       string
	callback   func()
	debounce   time.Duration
	maxLatency time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	signal  chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a stopped monitor for root.
func New(root string, callback func(), opts ...Option) *Monitor {
	m := &Monitor{
		root:       root,
		callback:   callback,
		debounce:   DefaultDebounce,
		maxLatency: DefaultMaxLatency,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start acquires the watch and begins delivering notifications. Calling
// Start on a running monitor does nothing.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	info, err := os.Stat(m.root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWatchUnavailable, m.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWatchUnavailable, m.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatchUnavailable, err)
	}
	if err := fsw.Add(m.root); err != nil {
		fsw.Close()
		return fmt.Errorf("%w: %s: %v", ErrWatchUnavailable, m.root, err)
	}

	m.fsw = fsw
	m.signal = make(chan struct{}, 1)
	m.stop = make(chan struct{})
	m.running = true

	m.wg.Add(2)
	go m.loop(fsw, m.signal, m.stop)
	go m.deliver(m.signal, m.stop)
	return nil
}

// Stop releases the watch and waits for the monitor goroutines to exit.
// Calling Stop on a stopped monitor does nothing.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stop)
	err := m.fsw.Close()
	m.fsw = nil
	m.mu.Unlock()

	m.wg.Wait()
	return err
}

// Running reports whether the monitor currently holds a watch.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(fsw *fsnotify.Watcher, signal chan<- struct{}, stop <-chan struct{}) {
	defer m.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	var burstStart time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if burstStart.IsZero() {
				burstStart = time.Now()
			}
			wait := m.debounce
			if left := m.maxLatency - time.Since(burstStart); left < wait {
				wait = max(left, 0)
			}
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			burstStart = time.Time{}
			// A pending signal already covers this burst.
			select {
			case signal <- struct{}{}:
			default:
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watch error", "root", m.root, "error", err)
		}
	}
}

func (m *Monitor) deliver(signal <-chan struct{}, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-signal:
			if m.callback != nil {
				m.callback()
			}
		}
	}
}
