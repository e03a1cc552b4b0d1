package transcriber

import "context"

// Static is a no-model backend that returns a fixed text for every
// fragment. It keeps the pipeline runnable without credentials and gives
// tests a deterministic transcript.
type Static struct {
	text string
}

// NewStatic creates a static transcriber
func NewStatic(text string) *Static {
	if text == "" {
		text = "[no transcript]"
	}
	return &Static{text: text}
}

// Transcribe returns the configured text
func (s *Static) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.text, nil
}
