// Package diskspace reports free disk space for the dispatch gate.
package diskspace

import "errors"

// ErrDiskLow indicates free space under the configured threshold. While the
// condition holds, new dispatch is refused; in-flight work still completes.
var ErrDiskLow = errors.New("free disk space below threshold")

// Check returns ErrDiskLow when the filesystem holding path has fewer than
// minFree bytes available. A zero threshold disables the gate. If free space
// cannot be determined the check passes rather than stalling the pipeline.
func Check(path string, minFree uint64) error {
	if minFree == 0 {
		return nil
	}
	free, err := freeBytes(path)
	if err != nil {
		return nil
	}
	if free < minFree {
		return ErrDiskLow
	}
	return nil
}

// FreeBytes returns the available bytes on the filesystem holding path
func FreeBytes(path string) (uint64, error) {
	return freeBytes(path)
}
