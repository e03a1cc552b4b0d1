// Package watcher polls the inbox directory and dispatches newly arrived
// fragments to the worker pool.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seqscribe/seqscribe/internal/diskspace"
	"github.com/seqscribe/seqscribe/internal/fragment"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// Dispatcher receives fragments discovered by the watcher. Submit may block
// to apply backpressure.
type Dispatcher interface {
	Submit(ctx context.Context, frag *fragment.Fragment) error
}

// Config represents the watcher configuration
type Config struct {
	InboxDir     string
	Extensions   []string
	PollInterval time.Duration
	MinFreeDisk  uint64
}

// Stats is a point-in-time snapshot of watcher state
type Stats struct {
	Dispatched int  `json:"dispatched"`
	Skipped    int  `json:"skipped"`
	DiskLow    bool `json:"disk_low"`
}

// Watcher polls the inbox on a fixed interval. Polling is used instead of
// OS file events to stay portable; the seen-set guarantees a fragment name
// is never dispatched twice within a process lifetime.
type Watcher struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	seen       map[string]struct{}
	dispatched int
	skipped    int
	diskLow    bool
}

// New creates a watcher over the configured inbox
func New(ctx context.Context, cfg Config, dispatcher Dispatcher, log *logger.Logger) *Watcher {
	wctx, cancel := context.WithCancel(ctx)
	return &Watcher{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     log.Named("watcher"),
		ctx:        wctx,
		cancel:     cancel,
		seen:       make(map[string]struct{}),
	}
}

// Start starts the polling loop
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.cfg.InboxDir, 0o755); err != nil {
		return err
	}

	w.logger.Info("Starting inbox watcher",
		logger.String("inbox", w.cfg.InboxDir),
		logger.Duration("poll_interval", w.cfg.PollInterval))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				w.logger.Info("Watcher stopped")
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}

// Stop stops the polling loop
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

// Stats returns a snapshot of watcher counters
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Dispatched: w.dispatched,
		Skipped:    w.skipped,
		DiskLow:    w.diskLow,
	}
}

// poll scans the inbox once and dispatches every fragment not yet seen.
// Errors are logged and retried on the next tick, never fatal.
func (w *Watcher) poll() {
	if err := diskspace.Check(w.cfg.InboxDir, w.cfg.MinFreeDisk); err != nil {
		if errors.Is(err, diskspace.ErrDiskLow) {
			w.setDiskLow(true)
			return
		}
	}
	w.setDiskLow(false)

	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		w.logger.Error("Failed to read inbox directory, will retry",
			logger.String("inbox", w.cfg.InboxDir),
			logger.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !w.matchesExtension(entry.Name()) {
			continue
		}
		if w.alreadySeen(entry.Name()) {
			continue
		}

		frag, err := fragment.New(filepath.Join(w.cfg.InboxDir, entry.Name()))
		if err != nil {
			w.logger.Warn("Skipping fragment with unparsable name",
				logger.String("file", entry.Name()),
				logger.Error(err))
			w.markSkipped(entry.Name())
			continue
		}

		// Blocks under backpressure; shutdown cancels the context.
		if err := w.dispatcher.Submit(w.ctx, frag); err != nil {
			w.logger.Debug("Dispatch interrupted", logger.Error(err))
			return
		}
		w.markDispatched(entry.Name())

		w.logger.Debug("Fragment dispatched",
			logger.Int64("seq", frag.Seq),
			logger.String("file", frag.Name))
	}
}

func (w *Watcher) matchesExtension(name string) bool {
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (w *Watcher) alreadySeen(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[name]
	return ok
}

func (w *Watcher) markDispatched(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[name] = struct{}{}
	w.dispatched++
}

func (w *Watcher) markSkipped(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[name] = struct{}{}
	w.skipped++
}

func (w *Watcher) setDiskLow(low bool) {
	w.mu.Lock()
	was := w.diskLow
	w.diskLow = low
	w.mu.Unlock()

	// Log on transitions only; a stalled disk would otherwise flood the
	// log every tick.
	if low && !was {
		w.logger.Warn("Free disk below threshold, refusing new dispatch",
			logger.Uint64("min_free_bytes", w.cfg.MinFreeDisk))
	} else if !low && was {
		w.logger.Info("Free disk recovered, resuming dispatch")
	}
}
