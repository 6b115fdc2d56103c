//go:build !linux && !darwin

package shmem

type segmentFile = struct{}

// Create is unavailable on this platform.
func Create(name string, size int) (*Segment, error) {
	return nil, ErrUnsupported
}

// Open is unavailable on this platform.
func Open(name string) (*Segment, error) {
	return nil, ErrUnsupported
}

// OpenReadOnly is unavailable on this platform.
func OpenReadOnly(name string) (*Segment, error) {
	return nil, ErrUnsupported
}

// Close is a no-op on this platform.
func (s *Segment) Close() error { return nil }

// Unlink is a no-op on this platform.
func (s *Segment) Unlink() error { return nil }
