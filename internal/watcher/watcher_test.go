package watcher

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/seqscribe/seqscribe/internal/fragment"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// collectingDispatcher records submitted fragments.
type collectingDispatcher struct {
	mu    sync.Mutex
	frags []*fragment.Fragment
}

func (d *collectingDispatcher) Submit(ctx context.Context, frag *fragment.Fragment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frags = append(d.frags, frag)
	return nil
}

func (d *collectingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for _, f := range d.frags {
		names = append(names, f.Name)
	}
	return names
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestWatcher(t *testing.T, inbox string, minFree uint64) (*Watcher, *collectingDispatcher) {
	t.Helper()
	d := &collectingDispatcher{}
	w := New(context.Background(), Config{
		InboxDir:     inbox,
		Extensions:   []string{".wav"},
		PollInterval: 10 * time.Millisecond,
		MinFreeDisk:  minFree,
	}, d, logger.Nop())
	return w, d
}

func TestPollDispatchesNewFragmentsOnce(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "chunk_000.wav")
	writeFile(t, inbox, "chunk_001.wav")
	writeFile(t, inbox, "notes.txt") // wrong extension, ignored

	w, d := newTestWatcher(t, inbox, 0)
	w.poll()
	w.poll() // second poll must not re-dispatch

	names := d.names()
	if len(names) != 2 {
		t.Fatalf("dispatched %d fragments (%v), want 2", len(names), names)
	}

	writeFile(t, inbox, "chunk_002.wav")
	w.poll()
	if got := len(d.names()); got != 3 {
		t.Fatalf("dispatched %d fragments after new arrival, want 3", got)
	}

	stats := w.Stats()
	if stats.Dispatched != 3 {
		t.Errorf("Stats.Dispatched = %d, want 3", stats.Dispatched)
	}
}

func TestPollSkipsUnparsableNames(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "nodigits.wav")
	writeFile(t, inbox, "chunk_004.wav")

	w, d := newTestWatcher(t, inbox, 0)
	w.poll()

	names := d.names()
	if len(names) != 1 || names[0] != "chunk_004.wav" {
		t.Fatalf("dispatched %v, want only chunk_004.wav", names)
	}
	if stats := w.Stats(); stats.Skipped != 1 {
		t.Errorf("Stats.Skipped = %d, want 1", stats.Skipped)
	}
}

func TestPollRefusesDispatchWhenDiskLow(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "chunk_000.wav")

	w, d := newTestWatcher(t, inbox, math.MaxUint64)
	w.poll()

	if got := len(d.names()); got != 0 {
		t.Fatalf("dispatched %d fragments under disk-low, want 0", got)
	}
	if stats := w.Stats(); !stats.DiskLow {
		t.Error("Stats.DiskLow = false, want true")
	}
}

func TestPollSurvivesMissingInbox(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "does-not-exist")
	w, d := newTestWatcher(t, inbox, 0)

	w.poll() // must not panic; retried next tick

	if err := os.MkdirAll(inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, inbox, "chunk_001.wav")
	w.poll()
	if got := len(d.names()); got != 1 {
		t.Fatalf("dispatched %d after inbox appeared, want 1", got)
	}
}

func TestStartStopLoop(t *testing.T) {
	inbox := t.TempDir()
	w, d := newTestWatcher(t, inbox, 0)

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		writeFile(t, inbox, fmt.Sprintf("chunk_%03d.wav", i))
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(d.names()) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: dispatched %v", d.names())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
