//go:build linux || darwin

package shmem

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type segmentFile = *os.File

// Create makes a fresh shared memory object of the given size, replacing
// any stale object left behind by a previous run, and maps it read/write.
// The creating side owns the object name and should Unlink it on teardown.
func Create(name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmem: invalid segment size %d", size)
	}
	path := segmentPath(name)

	// A crashed producer leaves the object behind; remove it so the new
	// region starts from a clean, zeroed file.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("shmem: remove stale segment %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shmem: create segment %s: %w", path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmem: size segment to %d bytes: %w", size, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmem: mmap segment: %w", err)
	}

	return &Segment{name: name, path: path, mem: mem, file: file}, nil
}

// Open maps an existing shared memory object read/write, sized by the
// object itself.
func Open(name string) (*Segment, error) {
	return open(name, os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE)
}

// OpenReadOnly maps an existing object for inspection only. Writing
// through the returned bytes faults; use Open for a consuming Reader,
// which advances the shared read index.
func OpenReadOnly(name string) (*Segment, error) {
	return open(name, os.O_RDONLY, unix.PROT_READ)
}

func open(name string, flag int, prot int) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("shmem: open segment %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmem: stat segment: %w", err)
	}
	size := int(info.Size())
	if size == 0 {
		file.Close()
		return nil, fmt.Errorf("shmem: segment %s has zero size", path)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmem: mmap segment: %w", err)
	}

	return &Segment{name: name, path: path, mem: mem, file: file}, nil
}

// Close unmaps the region and releases the descriptor. The object itself
// stays alive for other processes until the creator Unlinks it. Close is
// safe to call more than once.
func (s *Segment) Close() error {
	if s.file == nil {
		return nil
	}
	var first error
	if err := unix.Munmap(s.mem); err != nil {
		first = fmt.Errorf("shmem: munmap segment: %w", err)
	}
	s.mem = nil
	if err := s.file.Close(); err != nil && first == nil {
		first = fmt.Errorf("shmem: close segment file: %w", err)
	}
	s.file = nil
	return first
}

// Unlink removes the named object. Only the creating side should call it;
// mappings held by other processes survive until they unmap.
func (s *Segment) Unlink() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shmem: unlink segment %s: %w", s.path, err)
	}
	return nil
}

// segmentPath places the backing object under /dev/shm when available so
// the region never touches disk, falling back to the temp directory.
func segmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}
