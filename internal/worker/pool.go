// Package worker runs transcription jobs over a bounded work queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seqscribe/seqscribe/internal/fragment"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// ErrPoolStopped is returned by Submit after the pool has shut down
var ErrPoolStopped = errors.New("worker pool stopped")

// Stats is a point-in-time snapshot of pool activity
type Stats struct {
	Succeeded  int64   `json:"succeeded"`
	Failed     int64   `json:"failed"`
	QueueLen   int     `json:"queue_len"`
	FailedSeqs []int64 `json:"failed_seqs"`
}

// Pool is a fixed-size set of executors pulling fragments from a bounded
// queue. Submit blocks when the queue is full, applying backpressure to the
// dispatcher instead of dropping work.
type Pool struct {
	queue chan *fragment.Fragment
	size  int
	job   *Job
	quit  chan struct{}
	wg    sync.WaitGroup
	log   *logger.Logger

	mu         sync.Mutex
	succeeded  int64
	failed     int64
	failedSeqs []int64
	stopped    bool
}

// NewPool creates a worker pool with the given executor count and queue
// capacity
func NewPool(size, queueCapacity int, job *Job, log *logger.Logger) *Pool {
	return &Pool{
		queue: make(chan *fragment.Fragment, queueCapacity),
		size:  size,
		job:   job,
		quit:  make(chan struct{}),
		log:   log.Named("worker-pool"),
	}
}

// Start launches the executors
func (p *Pool) Start() {
	p.log.Info("Starting worker pool",
		logger.Int("workers", p.size),
		logger.Int("queue_capacity", cap(p.queue)))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.executor(i)
	}
}

// Submit enqueues a fragment for transcription, blocking while the queue is
// full. It returns an error only when the context is cancelled or the pool
// has stopped.
func (p *Pool) Submit(ctx context.Context, frag *fragment.Fragment) error {
	// A free queue slot must not win over an already-stopped pool: the
	// executors are gone and an enqueued fragment would never run.
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- frag:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return fmt.Errorf("submit cancelled: %w", ctx.Err())
	}
}

// Stop shuts the pool down: no new submissions are accepted and executors
// finish their in-flight job before exiting. Fragments still queued are
// abandoned; their files remain in the inbox for the next run.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()
	p.log.Info("Worker pool stopped")
}

// Stats returns a snapshot of pool counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	seqs := make([]int64, len(p.failedSeqs))
	copy(seqs, p.failedSeqs)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	return Stats{
		Succeeded:  p.succeeded,
		Failed:     p.failed,
		QueueLen:   len(p.queue),
		FailedSeqs: seqs,
	}
}

// executor pulls fragments and runs jobs until the pool stops. A panic
// inside one job is contained and the executor keeps running.
func (p *Pool) executor(id int) {
	defer p.wg.Done()
	log := p.log.With(logger.Int("executor", id))

	for {
		select {
		case <-p.quit:
			return
		case frag := <-p.queue:
			p.runOne(log, frag)
		}
	}
}

func (p *Pool) runOne(log *logger.Logger, frag *fragment.Fragment) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked",
				logger.Int64("seq", frag.Seq),
				logger.Any("panic", r))
			// The file must still leave the inbox and show up in the
			// failure record, same as any other failed job.
			p.job.fail(frag, start, 0, fmt.Errorf("job panicked: %v", r))
			p.mu.Lock()
			p.failed++
			p.failedSeqs = append(p.failedSeqs, frag.Seq)
			p.mu.Unlock()
		}
	}()

	outcome := p.job.Run(context.Background(), frag)

	p.mu.Lock()
	if outcome.Status == fragment.StatusSucceeded {
		p.succeeded++
	} else {
		p.failed++
		p.failedSeqs = append(p.failedSeqs, frag.Seq)
	}
	p.mu.Unlock()
}
