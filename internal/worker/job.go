package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seqscribe/seqscribe/internal/audio"
	"github.com/seqscribe/seqscribe/internal/buffer"
	"github.com/seqscribe/seqscribe/internal/fragment"
	"github.com/seqscribe/seqscribe/internal/storage/sqlite"
	"github.com/seqscribe/seqscribe/internal/transcriber"
	"github.com/seqscribe/seqscribe/internal/websocket"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// Outcome represents the terminal state of one transcription job
type Outcome struct {
	Seq      int64
	Status   fragment.Status
	TextLen  int
	AudioMs  int64
	Duration time.Duration
	Err      error
}

// JobConfig represents the per-job file handling configuration
type JobConfig struct {
	ProcessedDir     string
	FailedDir        string
	ArchiveOriginals bool
}

// Job wraps one fragment's end-to-end processing: read, probe, transcribe,
// buffer the result, and move the source file out of the inbox. A Job
// instance is shared by all executors and holds no per-fragment state.
type Job struct {
	transcriber transcriber.Transcriber
	results     *buffer.Buffer
	history     *sqlite.HistoryStorage // optional
	wsServer    *websocket.Server      // optional
	cfg         JobConfig
	logger      *logger.Logger
}

// NewJob creates the shared transcription job
func NewJob(
	t transcriber.Transcriber,
	results *buffer.Buffer,
	history *sqlite.HistoryStorage,
	wsServer *websocket.Server,
	cfg JobConfig,
	log *logger.Logger,
) *Job {
	return &Job{
		transcriber: t,
		results:     results,
		history:     history,
		wsServer:    wsServer,
		cfg:         cfg,
		logger:      log.Named("job"),
	}
}

// Run processes a single fragment to completion. Errors are contained in
// the returned outcome; the fragment file always leaves the inbox.
func (j *Job) Run(ctx context.Context, frag *fragment.Fragment) Outcome {
	start := time.Now()
	frag.Status = fragment.StatusInProgress

	data, err := os.ReadFile(frag.Path)
	if err != nil {
		return j.fail(frag, start, 0, fmt.Errorf("failed to read fragment: %w", err))
	}

	info, err := audio.Probe(data)
	if err != nil {
		return j.fail(frag, start, 0, fmt.Errorf("rejected fragment audio: %w", err))
	}
	audioMs := info.Duration().Milliseconds()

	text, err := j.transcriber.Transcribe(ctx, frag.Name, data)
	if err != nil {
		return j.fail(frag, start, audioMs, err)
	}

	if err := j.results.Insert(frag.Seq, text); err != nil {
		if errors.Is(err, buffer.ErrDuplicateSequence) {
			// Reprocessing anomaly: the original insertion wins and this
			// file is treated as already handled.
			j.logger.Warn("Duplicate sequence number, keeping original result",
				logger.Int64("seq", frag.Seq),
				logger.String("file", frag.Name))
		} else {
			return j.fail(frag, start, audioMs, err)
		}
	}

	if err := j.archiveOriginal(frag); err != nil {
		j.logger.Error("Failed to move processed fragment out of inbox",
			logger.Int64("seq", frag.Seq),
			logger.Error(err))
	}

	frag.Status = fragment.StatusSucceeded
	outcome := Outcome{
		Seq:      frag.Seq,
		Status:   fragment.StatusSucceeded,
		TextLen:  len(text),
		AudioMs:  audioMs,
		Duration: time.Since(start),
	}
	j.record(frag, outcome)

	j.logger.Info("Fragment transcribed",
		logger.Int64("seq", frag.Seq),
		logger.String("file", frag.Name),
		logger.Int("text_len", len(text)),
		logger.Duration("duration", outcome.Duration))

	return outcome
}

// fail moves the fragment to the failed directory and records the failure.
// The fragment's slot in the sequence remains a permanent gap unless the
// file is reprocessed externally.
func (j *Job) fail(frag *fragment.Fragment, start time.Time, audioMs int64, cause error) Outcome {
	frag.Status = fragment.StatusFailed

	if err := j.moveToFailed(frag); err != nil {
		j.logger.Error("Failed to move fragment to failed directory",
			logger.Int64("seq", frag.Seq),
			logger.Error(err))
	}

	outcome := Outcome{
		Seq:      frag.Seq,
		Status:   fragment.StatusFailed,
		AudioMs:  audioMs,
		Duration: time.Since(start),
		Err:      cause,
	}
	j.record(frag, outcome)

	j.logger.Error("Fragment transcription failed",
		logger.Int64("seq", frag.Seq),
		logger.String("file", frag.Name),
		logger.Error(cause))

	return outcome
}

// archiveOriginal moves a successfully transcribed fragment to the
// processed directory, or removes it when archiving is disabled
func (j *Job) archiveOriginal(frag *fragment.Fragment) error {
	if !j.cfg.ArchiveOriginals {
		return os.Remove(frag.Path)
	}
	if err := os.MkdirAll(j.cfg.ProcessedDir, 0o755); err != nil {
		return err
	}
	return moveFile(frag.Path, filepath.Join(j.cfg.ProcessedDir, frag.Name))
}

// moveToFailed moves the source file to the failed directory, suffixing the
// name when a previous attempt already left a file there
func (j *Job) moveToFailed(frag *fragment.Fragment) error {
	if err := os.MkdirAll(j.cfg.FailedDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(j.cfg.FailedDir, frag.Name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "_failed" + ext
	}
	return moveFile(frag.Path, dest)
}

// record writes the outcome to the history store and broadcasts it
func (j *Job) record(frag *fragment.Fragment, outcome Outcome) {
	if j.history != nil {
		record := &sqlite.JobRecord{
			Seq:        frag.Seq,
			FileName:   frag.Name,
			Status:     string(outcome.Status),
			TextLen:    outcome.TextLen,
			AudioMs:    outcome.AudioMs,
			DurationMs: outcome.Duration.Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		if outcome.Err != nil {
			record.Error = outcome.Err.Error()
		}
		if _, err := j.history.StoreJob(record); err != nil {
			j.logger.Error("Failed to store job record", logger.Error(err))
		}
	}

	if j.wsServer != nil {
		msgType := "fragment_transcribed"
		data := map[string]interface{}{
			"seq":      frag.Seq,
			"file":     frag.Name,
			"text_len": outcome.TextLen,
		}
		if outcome.Status == fragment.StatusFailed {
			msgType = "fragment_failed"
			if outcome.Err != nil {
				data["error"] = outcome.Err.Error()
			}
		}
		j.wsServer.Broadcast(&websocket.Message{Type: msgType, Data: data})
	}
}

// moveFile renames src to dest, falling back to copy+remove across
// filesystem boundaries
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
