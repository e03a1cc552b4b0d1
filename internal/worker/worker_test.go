package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seqscribe/seqscribe/internal/buffer"
	"github.com/seqscribe/seqscribe/internal/fragment"
	"github.com/seqscribe/seqscribe/internal/transcriber"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// testWAV builds a minimal PCM WAV payload with one second of silence.
func testWAV() []byte {
	const dataBytes = 16000 * 2
	data := make([]byte, 0, 44+dataBytes)
	data = append(data, []byte("RIFF")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(36+dataBytes))
	data = append(data, []byte("WAVE")...)
	data = append(data, []byte("fmt ")...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint32(data, 16000)
	data = binary.LittleEndian.AppendUint32(data, 32000)
	data = binary.LittleEndian.AppendUint16(data, 2)
	data = binary.LittleEndian.AppendUint16(data, 16)
	data = append(data, []byte("data")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(dataBytes))
	data = append(data, make([]byte, dataBytes)...)
	return data
}

func writeFragment(t *testing.T, dir string, seq int) *fragment.Fragment {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("chunk_%03d.wav", seq))
	if err := os.WriteFile(path, testWAV(), 0o644); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	frag, err := fragment.New(path)
	if err != nil {
		t.Fatalf("fragment.New: %v", err)
	}
	return frag
}

// recordingTranscriber counts how many times each sequence is transcribed
// and can be told to fail specific sequences.
type recordingTranscriber struct {
	mu    sync.Mutex
	seen  map[string]int
	fails map[string]error
}

func newRecordingTranscriber() *recordingTranscriber {
	return &recordingTranscriber{
		seen:  make(map[string]int),
		fails: make(map[string]error),
	}
}

func (r *recordingTranscriber) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	r.mu.Lock()
	r.seen[name]++
	err := r.fails[name]
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "text for " + name, nil
}

func (r *recordingTranscriber) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[name]
}

// blockingTranscriber holds every call until release is closed, signalling
// entry on started.
type blockingTranscriber struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return "text for " + name, nil
}

type panickyTranscriber struct{}

func (panickyTranscriber) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	panic("transcriber exploded")
}

func newTestJob(t *testing.T, tr transcriber.Transcriber, results *buffer.Buffer) (*Job, JobConfig) {
	t.Helper()
	cfg := JobConfig{
		ProcessedDir:     filepath.Join(t.TempDir(), "processed"),
		FailedDir:        filepath.Join(t.TempDir(), "failed"),
		ArchiveOriginals: true,
	}
	return NewJob(tr, results, nil, nil, cfg, logger.Nop()), cfg
}

func TestJobSuccessMovesToProcessed(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, cfg := newTestJob(t, tr, results)

	inbox := t.TempDir()
	frag := writeFragment(t, inbox, 5)

	outcome := job.Run(context.Background(), frag)
	if outcome.Status != fragment.StatusSucceeded {
		t.Fatalf("status = %q, err = %v; want succeeded", outcome.Status, outcome.Err)
	}
	if results.Size() != 1 {
		t.Errorf("buffer size = %d, want 1", results.Size())
	}
	if _, err := os.Stat(frag.Path); !os.IsNotExist(err) {
		t.Error("fragment still in inbox after success")
	}
	if _, err := os.Stat(filepath.Join(cfg.ProcessedDir, frag.Name)); err != nil {
		t.Errorf("fragment not in processed dir: %v", err)
	}
}

func TestJobFailureMovesToFailed(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, cfg := newTestJob(t, tr, results)

	inbox := t.TempDir()
	frag := writeFragment(t, inbox, 9)
	tr.fails[frag.Name] = fmt.Errorf("model exploded")

	outcome := job.Run(context.Background(), frag)
	if outcome.Status != fragment.StatusFailed {
		t.Fatalf("status = %q, want failed", outcome.Status)
	}
	if results.Size() != 0 {
		t.Errorf("buffer size = %d after failure, want 0", results.Size())
	}
	if _, err := os.Stat(filepath.Join(cfg.FailedDir, frag.Name)); err != nil {
		t.Errorf("fragment not in failed dir: %v", err)
	}
}

func TestJobRejectsInvalidAudio(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, cfg := newTestJob(t, tr, results)

	inbox := t.TempDir()
	path := filepath.Join(inbox, "chunk_002.wav")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	frag, err := fragment.New(path)
	if err != nil {
		t.Fatal(err)
	}

	outcome := job.Run(context.Background(), frag)
	if outcome.Status != fragment.StatusFailed {
		t.Fatalf("status = %q, want failed", outcome.Status)
	}
	if tr.count(frag.Name) != 0 {
		t.Error("transcriber called for invalid audio")
	}
	if _, err := os.Stat(filepath.Join(cfg.FailedDir, frag.Name)); err != nil {
		t.Errorf("fragment not in failed dir: %v", err)
	}
}

func TestJobDuplicateSequenceKeepsOriginal(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, _ := newTestJob(t, tr, results)

	inbox := t.TempDir()
	first := writeFragment(t, inbox, 3)
	if outcome := job.Run(context.Background(), first); outcome.Status != fragment.StatusSucceeded {
		t.Fatalf("first run failed: %v", outcome.Err)
	}

	// Same sequence number under a different file name.
	path := filepath.Join(inbox, "resubmitted_003.wav")
	if err := os.WriteFile(path, testWAV(), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := fragment.New(path)
	if err != nil {
		t.Fatal(err)
	}
	if outcome := job.Run(context.Background(), second); outcome.Status != fragment.StatusSucceeded {
		t.Fatalf("second run: status %q, err %v", outcome.Status, outcome.Err)
	}

	run, _ := results.DrainContiguousFrom(3)
	if len(run) != 1 {
		t.Fatalf("got %d results, want 1", len(run))
	}
	if !strings.Contains(run[0].Text, first.Name) {
		t.Errorf("buffer kept %q, want the first fragment's text", run[0].Text)
	}
}

func TestPoolProcessesEachFragmentOnce(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, _ := newTestJob(t, tr, results)

	pool := NewPool(4, 10, job, logger.Nop())
	pool.Start()

	inbox := t.TempDir()
	const total = 100
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		frag := writeFragment(t, inbox, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Submit(context.Background(), frag); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()

	// All submissions are in; wait for the queue to drain.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if results.Size() == total {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %d of %d results buffered", results.Size(), total)
		}
		time.Sleep(10 * time.Millisecond)
	}
	pool.Stop()

	for i := 0; i < total; i++ {
		name := fmt.Sprintf("chunk_%03d.wav", i)
		if n := tr.count(name); n != 1 {
			t.Errorf("%s transcribed %d times, want exactly 1", name, n)
		}
	}

	stats := pool.Stats()
	if stats.Succeeded != total || stats.Failed != 0 {
		t.Errorf("stats = %+v, want %d succeeded, 0 failed", stats, total)
	}

	run, cursor := results.DrainContiguousFrom(0)
	if len(run) != total || cursor != total {
		t.Errorf("drain: %d results, cursor %d; want %d, %d", len(run), cursor, total, total)
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	tr := newRecordingTranscriber()
	frag := writeFragment(t, t.TempDir(), 1)

	// A free queue slot must never win over the stopped state, so repeat
	// enough times to catch a select ordering that favors the enqueue.
	for i := 0; i < 200; i++ {
		job, _ := newTestJob(t, tr, buffer.New())
		pool := NewPool(1, 1, job, logger.Nop())
		pool.Start()
		pool.Stop()

		if err := pool.Submit(context.Background(), frag); err != ErrPoolStopped {
			t.Fatalf("iteration %d: Submit after stop returned %v, want ErrPoolStopped", i, err)
		}
	}
}

func TestPoolSubmitCancelledWhenQueueFull(t *testing.T) {
	tr := &blockingTranscriber{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	job, _ := newTestJob(t, tr, buffer.New())
	pool := NewPool(1, 1, job, logger.Nop())
	pool.Start()

	inbox := t.TempDir()
	first := writeFragment(t, inbox, 0)
	if err := pool.Submit(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	// The executor is now inside the first job and the queue is empty.
	<-tr.started

	second := writeFragment(t, inbox, 1)
	if err := pool.Submit(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	third := writeFragment(t, inbox, 2)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Submit(ctx, third)
	}()

	// Let the submission block on the full queue before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("blocked Submit: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Submit did not return after cancellation")
	}

	close(tr.release)
	pool.Stop()
}

func TestPoolPanicMovesFragmentToFailed(t *testing.T) {
	results := buffer.New()
	job, cfg := newTestJob(t, panickyTranscriber{}, results)
	pool := NewPool(1, 2, job, logger.Nop())
	pool.Start()
	defer pool.Stop()

	inbox := t.TempDir()
	frag := writeFragment(t, inbox, 7)
	if err := pool.Submit(context.Background(), frag); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats := pool.Stats()
		if stats.Failed == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the panic outcome: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(frag.Path); !os.IsNotExist(err) {
		t.Error("fragment still in inbox after panic")
	}
	if _, err := os.Stat(filepath.Join(cfg.FailedDir, frag.Name)); err != nil {
		t.Errorf("fragment not in failed dir: %v", err)
	}
}

func TestPoolSurvivesJobFailures(t *testing.T) {
	tr := newRecordingTranscriber()
	results := buffer.New()
	job, _ := newTestJob(t, tr, results)
	pool := NewPool(2, 4, job, logger.Nop())
	pool.Start()
	defer pool.Stop()

	inbox := t.TempDir()
	fail := writeFragment(t, inbox, 0)
	tr.fails[fail.Name] = fmt.Errorf("boom")
	ok := writeFragment(t, inbox, 1)

	if err := pool.Submit(context.Background(), fail); err != nil {
		t.Fatal(err)
	}
	if err := pool.Submit(context.Background(), ok); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats := pool.Stats()
		if stats.Succeeded == 1 && stats.Failed == 1 {
			if len(stats.FailedSeqs) != 1 || stats.FailedSeqs[0] != 0 {
				t.Errorf("FailedSeqs = %v, want [0]", stats.FailedSeqs)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for outcomes: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
