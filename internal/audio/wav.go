// Package audio provides lightweight WAV inspection for incoming fragments.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotWAV indicates the payload is not a RIFF/WAVE file
	ErrNotWAV = errors.New("not a WAV file")
	// ErrEmptyAudio indicates a WAV file with no audio samples
	ErrEmptyAudio = errors.New("WAV file contains no audio data")
)

// Info describes the format of a WAV payload
type Info struct {
	AudioFormat   uint16 // 1 for PCM
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

// Duration returns the play time of the audio data
func (i Info) Duration() time.Duration {
	bytesPerSec := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(float64(i.DataBytes) / float64(bytesPerSec) * float64(time.Second))
}

// Probe parses the RIFF header and chunk list of a WAV payload and returns
// its format. It rejects non-WAV payloads and files whose data chunk is
// empty, so a fragment can be failed before spending a transcription call.
func Probe(data []byte) (Info, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, ErrNotWAV
	}

	var info Info
	sawFmt := false
	sawData := false

	// Walk the chunk list; "fmt " and "data" may be separated by other
	// chunks (LIST, fact) depending on the encoder.
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(data) {
				return Info{}, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			sawFmt = true
		case "data":
			// Streamed writers may leave the declared size larger than
			// the bytes actually present; trust what is on disk.
			avail := len(data) - body
			if chunkSize > avail {
				chunkSize = avail
			}
			info.DataBytes = chunkSize
			sawData = true
		}

		if sawFmt && sawData {
			break
		}
		// Chunks are word-aligned.
		pos = body + chunkSize + (chunkSize & 1)
	}

	if !sawFmt || !sawData {
		return Info{}, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	if info.DataBytes == 0 {
		return Info{}, ErrEmptyAudio
	}
	return info, nil
}
