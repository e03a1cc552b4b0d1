package sqlite

import "time"

// JobRecord represents the outcome of one transcription job
type JobRecord struct {
	ID         int64     `json:"id"`
	Seq        int64     `json:"seq"`
	FileName   string    `json:"file_name"`
	Status     string    `json:"status"` // "succeeded" or "failed"
	TextLen    int       `json:"text_len"`
	AudioMs    int64     `json:"audio_ms"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveRecord represents one archived transcript written by the merge
// coordinator
type ArchiveRecord struct {
	ID        int64     `json:"id"`
	StartSeq  int64     `json:"start_seq"`
	EndSeq    int64     `json:"end_seq"`
	Path      string    `json:"path"`
	Fragments int       `json:"fragments"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}
