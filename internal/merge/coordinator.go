// Package merge reassembles buffered transcription results into ordered,
// gap-free archived transcripts.
//
// Fragments are joined with a single newline, so each line of an archived
// transcript corresponds to one fragment in sequence order. Archive files
// are named full_<start>_to_<end>.txt over the covered sequence range and
// are never rewritten after creation.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seqscribe/seqscribe/internal/buffer"
	"github.com/seqscribe/seqscribe/internal/diskspace"
	"github.com/seqscribe/seqscribe/internal/storage/sqlite"
	"github.com/seqscribe/seqscribe/internal/websocket"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// Config represents the merge coordinator configuration
type Config struct {
	ArchiveDir  string
	Interval    time.Duration
	StartSeq    int64
	MinFreeDisk uint64
}

// Range describes one archived transcript's covered sequence range
type Range struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Path  string `json:"path"`
}

// Stats is a point-in-time snapshot of coordinator state
type Stats struct {
	Cursor   int64   `json:"cursor"`
	Archived []Range `json:"archived"`
}

// Coordinator periodically drains the contiguous prefix of the result
// buffer and writes it out as one archived transcript. Drains are strictly
// sequential, keeping the cursor monotonic and archive ranges disjoint.
type Coordinator struct {
	cfg      Config
	results  *buffer.Buffer
	history  *sqlite.HistoryStorage // optional
	wsServer *websocket.Server      // optional
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cursor   int64
	archived []Range
}

// New creates a merge coordinator
func New(
	ctx context.Context,
	cfg Config,
	results *buffer.Buffer,
	history *sqlite.HistoryStorage,
	wsServer *websocket.Server,
	log *logger.Logger,
) *Coordinator {
	mctx, cancel := context.WithCancel(ctx)
	return &Coordinator{
		cfg:      cfg,
		results:  results,
		history:  history,
		wsServer: wsServer,
		logger:   log.Named("merge"),
		ctx:      mctx,
		cancel:   cancel,
		cursor:   cfg.StartSeq,
	}
}

// Start starts the merge loop
func (c *Coordinator) Start() error {
	if err := os.MkdirAll(c.cfg.ArchiveDir, 0o755); err != nil {
		return err
	}

	c.logger.Info("Starting merge coordinator",
		logger.String("archive_dir", c.cfg.ArchiveDir),
		logger.Duration("interval", c.cfg.Interval),
		logger.Int64("start_seq", c.cfg.StartSeq))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.ctx.Done():
				c.logger.Info("Merge loop stopped")
				return
			case <-ticker.C:
				if _, err := c.MergeOnce(); err != nil {
					c.logger.Error("Merge tick failed", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop stops the merge loop and performs one final drain so results
// completed just before shutdown still reach the archive
func (c *Coordinator) Stop() error {
	c.cancel()
	c.wg.Wait()

	if _, err := c.MergeOnce(); err != nil {
		c.logger.Error("Final merge on stop failed", logger.Error(err))
		return err
	}
	return nil
}

// MergeOnce drains the contiguous run at the cursor and, if non-empty,
// writes one archived transcript and advances the cursor. Returns the path
// of the written archive, or "" when there was nothing contiguous to merge.
func (c *Coordinator) MergeOnce() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, next := c.results.DrainContiguousFrom(c.cursor)
	if len(run) == 0 {
		return "", nil
	}

	// An archive write needs disk; put the run back and retry next tick
	// rather than losing transcribed text.
	if err := diskspace.Check(c.cfg.ArchiveDir, c.cfg.MinFreeDisk); err != nil {
		c.results.Restore(run)
		return "", fmt.Errorf("refusing to write archive: %w", err)
	}

	start, end := run[0].Seq, run[len(run)-1].Seq
	texts := make([]string, len(run))
	for i, res := range run {
		texts[i] = res.Text
	}
	merged := strings.Join(texts, "\n")

	path := filepath.Join(c.cfg.ArchiveDir, fmt.Sprintf("full_%03d_to_%03d.txt", start, end))
	if err := os.WriteFile(path, []byte(merged), 0o644); err != nil {
		c.results.Restore(run)
		return "", fmt.Errorf("failed to write archive %s: %w", path, err)
	}

	c.cursor = next
	c.archived = append(c.archived, Range{Start: start, End: end, Path: path})

	c.logger.Info("Archived transcript written",
		logger.Int64("start_seq", start),
		logger.Int64("end_seq", end),
		logger.Int("fragments", len(run)),
		logger.String("path", path))

	if c.history != nil {
		if _, err := c.history.StoreArchive(&sqlite.ArchiveRecord{
			StartSeq:  start,
			EndSeq:    end,
			Path:      path,
			Fragments: len(run),
			Bytes:     int64(len(merged)),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			c.logger.Error("Failed to store archive record", logger.Error(err))
		}
	}

	if c.wsServer != nil {
		c.wsServer.Broadcast(&websocket.Message{
			Type: "transcript_archived",
			Data: map[string]interface{}{
				"start_seq": start,
				"end_seq":   end,
				"fragments": len(run),
				"path":      path,
			},
		})
	}

	return path, nil
}

// Cursor returns the next sequence number expected by the coordinator
func (c *Coordinator) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// SkipTo advances the cursor past a permanent gap. Buffered results below
// the new cursor are discarded; the skipped slots stay missing in the
// archive, as recorded by the failed-fragment history.
func (c *Coordinator) SkipTo(seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.cursor {
		return fmt.Errorf("cannot skip backwards: cursor is %d, requested %d", c.cursor, seq)
	}
	dropped := c.results.DiscardBelow(seq)
	c.logger.Warn("Cursor skipped past gap",
		logger.Int64("from", c.cursor),
		logger.Int64("to", seq),
		logger.Int("dropped_results", dropped))
	c.cursor = seq
	return nil
}

// Stats returns a snapshot of the cursor and archived ranges
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	archived := make([]Range, len(c.archived))
	copy(archived, c.archived)
	return Stats{Cursor: c.cursor, Archived: archived}
}

// IsDiskLow reports whether the archive directory is below the free-space
// threshold
func (c *Coordinator) IsDiskLow() bool {
	return errors.Is(diskspace.Check(c.cfg.ArchiveDir, c.cfg.MinFreeDisk), diskspace.ErrDiskLow)
}
