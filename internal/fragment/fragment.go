package fragment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Status represents the lifecycle stage of a fragment
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Fragment represents one audio fragment awaiting transcription, identified
// by the sequence number encoded in its file name
type Fragment struct {
	Seq       int64
	Path      string
	Name      string
	ArrivedAt time.Time
	Status    Status
}

// New creates a pending fragment for the given file path, parsing the
// sequence number from the file name
func New(path string) (*Fragment, error) {
	name := filepath.Base(path)
	seq, err := ParseSequence(name)
	if err != nil {
		return nil, err
	}
	return &Fragment{
		Seq:       seq,
		Path:      path,
		Name:      name,
		ArrivedAt: time.Now().UTC(),
		Status:    StatusPending,
	}, nil
}

var (
	trailingDigits = regexp.MustCompile(`(\d+)$`)
	anyDigits      = regexp.MustCompile(`(\d+)`)
)

// ParseSequence extracts the sequence number from a fragment file name.
// The trailing digit run of the base name (extension stripped) wins; if the
// name has no trailing digits the first digit run is used instead, so names
// like "rec_2025_045.wav" still parse as 45 while "chunk7b.wav" parses as 7.
func ParseSequence(name string) (int64, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	m := trailingDigits.FindString(base)
	if m == "" {
		m = anyDigits.FindString(base)
	}
	if m == "" {
		return 0, fmt.Errorf("no sequence number in file name %q", name)
	}

	seq, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sequence number in %q out of range: %w", name, err)
	}
	return seq, nil
}
