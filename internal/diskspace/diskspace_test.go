package diskspace

import (
	"errors"
	"math"
	"testing"
)

func TestCheckZeroThresholdAlwaysPasses(t *testing.T) {
	if err := Check(t.TempDir(), 0); err != nil {
		t.Fatalf("Check with zero threshold: %v", err)
	}
}

func TestCheckHugeThresholdReportsDiskLow(t *testing.T) {
	err := Check(t.TempDir(), math.MaxUint64)
	if !errors.Is(err, ErrDiskLow) {
		t.Fatalf("Check with max threshold: got %v, want ErrDiskLow", err)
	}
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Error("FreeBytes returned 0 for a writable temp dir")
	}
}
