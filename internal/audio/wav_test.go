package audio

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// buildWAV assembles a minimal PCM WAV payload for tests.
func buildWAV(sampleRate, channels, bitsPerSample, dataBytes int) []byte {
	data := make([]byte, 0, 44+dataBytes)
	data = append(data, []byte("RIFF")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(36+dataBytes))
	data = append(data, []byte("WAVE")...)

	data = append(data, []byte("fmt ")...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1) // PCM
	data = binary.LittleEndian.AppendUint16(data, uint16(channels))
	data = binary.LittleEndian.AppendUint32(data, uint32(sampleRate))
	data = binary.LittleEndian.AppendUint32(data, uint32(sampleRate*channels*bitsPerSample/8))
	data = binary.LittleEndian.AppendUint16(data, uint16(channels*bitsPerSample/8))
	data = binary.LittleEndian.AppendUint16(data, uint16(bitsPerSample))

	data = append(data, []byte("data")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(dataBytes))
	data = append(data, make([]byte, dataBytes)...)
	return data
}

func TestProbe(t *testing.T) {
	// One second of 16kHz mono 16-bit PCM.
	payload := buildWAV(16000, 1, 16, 32000)

	info, err := Probe(payload)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit; want 16000/1/16",
			info.SampleRate, info.Channels, info.BitsPerSample)
	}
	if info.DataBytes != 32000 {
		t.Errorf("DataBytes = %d, want 32000", info.DataBytes)
	}
	if d := info.Duration(); d != time.Second {
		t.Errorf("Duration = %v, want 1s", d)
	}
}

func TestProbeRejectsNonWAV(t *testing.T) {
	if _, err := Probe([]byte("this is not audio at all, sorry")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("got %v, want ErrNotWAV", err)
	}
	if _, err := Probe(nil); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("nil payload: got %v, want ErrNotWAV", err)
	}
}

func TestProbeRejectsEmptyData(t *testing.T) {
	payload := buildWAV(8000, 1, 16, 0)
	if _, err := Probe(payload); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("got %v, want ErrEmptyAudio", err)
	}
}

func TestProbeTruncatedData(t *testing.T) {
	// Declared data size larger than what is present on disk.
	payload := buildWAV(8000, 1, 16, 1000)
	payload = payload[:len(payload)-500]

	info, err := Probe(payload)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.DataBytes != 500 {
		t.Errorf("DataBytes = %d, want 500 (clamped to available bytes)", info.DataBytes)
	}
}
