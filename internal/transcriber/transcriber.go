// Package transcriber defines the pluggable speech-recognition boundary.
//
// Supported backends:
//   - openai: OpenAI audio transcription API (default)
//   - static: fixed-text backend for tests and dry runs
package transcriber

import (
	"context"
	"errors"
	"fmt"

	"github.com/seqscribe/seqscribe/internal/config"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

var (
	// ErrModelUnavailable indicates the backend could not be reached or is
	// refusing work; the fragment fails like any other job failure
	ErrModelUnavailable = errors.New("transcription model unavailable")
	// ErrTranscription indicates the backend accepted the audio but could
	// not produce a transcript
	ErrTranscription = errors.New("transcription failed")
)

// Transcriber converts one fragment's audio bytes to text. Implementations
// must be safe for concurrent use across worker executors.
type Transcriber interface {
	// Transcribe returns the transcript for the given audio payload.
	// name is the fragment file name, used for content-type hints and logs.
	Transcribe(ctx context.Context, name string, audio []byte) (string, error)
}

// New creates a Transcriber for the configured backend
func New(cfg config.TranscriberConfig, log *logger.Logger) (Transcriber, error) {
	switch cfg.Backend {
	case "openai", "":
		return NewOpenAI(cfg, log)
	case "static":
		return NewStatic(cfg.StaticText), nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q (supported: openai, static)", cfg.Backend)
	}
}
