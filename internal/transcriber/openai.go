package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/seqscribe/seqscribe/internal/config"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// OpenAI transcribes audio via the OpenAI audio transcriptions API
type OpenAI struct {
	client   openai.Client
	model    string
	language string
	prompt   string
	logger   *logger.Logger
}

// NewOpenAI creates an OpenAI-backed transcriber
func NewOpenAI(cfg config.TranscriberConfig, log *logger.Logger) (*OpenAI, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai transcriber requires an API key")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	return &OpenAI{
		client: openai.NewClient(
			option.WithAPIKey(cfg.OpenAIAPIKey),
			option.WithRequestTimeout(timeout),
		),
		model:    model,
		language: cfg.Language,
		prompt:   cfg.Prompt,
		logger:   log.Named("openai-stt"),
	}, nil
}

// Transcribe sends the audio payload to the transcription endpoint
func (o *OpenAI) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(o.model),
		File:  openai.File(bytes.NewReader(audio), name, contentTypeFor(name)),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}
	if o.prompt != "" {
		params.Prompt = openai.String(o.prompt)
	}

	start := time.Now()
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	o.logger.Debug("Transcription request completed",
		logger.String("file", name),
		logger.Int("audio_bytes", len(audio)),
		logger.Int("text_len", len(resp.Text)),
		logger.Duration("duration", time.Since(start)))

	return resp.Text, nil
}

// classifyError maps transport and API errors onto the job-level taxonomy
func classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		// 429 and 5xx mean the model itself is the problem, not the audio.
		if apierr.StatusCode == 429 || apierr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	// Connection-level failures surface as plain transport errors.
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(strings.ToLower(name), ".ogg"):
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}
