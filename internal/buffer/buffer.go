// Package buffer holds completed transcription results in memory until the
// merge coordinator drains them as a contiguous run.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateSequence is returned when a result for an already-buffered
// sequence number is inserted. The original insertion wins.
var ErrDuplicateSequence = errors.New("duplicate sequence number")

// Result represents one fragment's transcribed text
type Result struct {
	Seq        int64
	Text       string
	ProducedAt time.Time
}

// Buffer is a thread-safe mapping from sequence number to transcription
// result. Entries leave the buffer only as a contiguous prefix drain, never
// individually, so drains always observe a consistent multi-key view.
type Buffer struct {
	mu      sync.Mutex
	results map[int64]Result
}

// New creates an empty result buffer
func New() *Buffer {
	return &Buffer{
		results: make(map[int64]Result),
	}
}

// Insert adds a transcription result keyed by its sequence number. If the
// sequence number is already present the buffer is left unchanged and
// ErrDuplicateSequence is returned.
func (b *Buffer) Insert(seq int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.results[seq]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
	}
	b.results[seq] = Result{
		Seq:        seq,
		Text:       text,
		ProducedAt: time.Now().UTC(),
	}
	return nil
}

// DrainContiguousFrom atomically removes and returns the maximal contiguous
// run of results starting at cursor, in ascending sequence order, together
// with the advanced cursor. If no result exists at cursor the run is empty
// and the cursor is returned unchanged: a gap blocks everything after it.
func (b *Buffer) DrainContiguousFrom(cursor int64) ([]Result, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var run []Result
	next := cursor
	for {
		res, ok := b.results[next]
		if !ok {
			break
		}
		run = append(run, res)
		delete(b.results, next)
		next++
	}
	return run, next
}

// Restore puts previously drained results back, e.g. after an archive write
// failed. Sequence numbers that reappeared in the meantime keep their
// existing entry.
func (b *Buffer) Restore(results []Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, res := range results {
		if _, exists := b.results[res.Seq]; !exists {
			b.results[res.Seq] = res
		}
	}
}

// DiscardBelow removes buffered results with sequence numbers below seq and
// returns how many were dropped. Used when an operator skips the cursor past
// a permanent gap.
func (b *Buffer) DiscardBelow(seq int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for s := range b.results {
		if s < seq {
			delete(b.results, s)
			dropped++
		}
	}
	return dropped
}

// Size returns the number of buffered results
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Sequences returns the currently buffered sequence numbers, unordered
func (b *Buffer) Sequences() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seqs := make([]int64, 0, len(b.results))
	for seq := range b.results {
		seqs = append(seqs, seq)
	}
	return seqs
}
