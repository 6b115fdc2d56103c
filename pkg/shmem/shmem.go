// Package shmem creates, opens and maps the named shared memory regions
// that back the virtual microphone transport.
//
// A Segment is an owned handle over the backing object and its mapping:
// closing it always unmaps and releases the descriptor, so callers hold it
// in a defer instead of stashing raw pointers in globals. The protocol
// package never performs OS calls itself; it only ever receives the byte
// slice a Segment exposes.
package shmem

import "errors"

// ErrUnsupported is returned on platforms without a shared memory
// implementation.
var ErrUnsupported = errors.New("shmem: shared memory segments are not supported on this platform")

// Segment is an owned handle to a mapped shared memory object. One process
// creates it (and is responsible for Unlink); any number of processes may
// open it, though the transport protocol on top assumes a single reader.
type Segment struct {
	name string
	path string
	mem  []byte
	file segmentFile
}

// Name returns the object name the segment was created or opened with.
func (s *Segment) Name() string { return s.name }

// Bytes returns the mapped region. The slice stays valid until Close.
func (s *Segment) Bytes() []byte { return s.mem }

// Size returns the mapped region size in bytes.
func (s *Segment) Size() int { return len(s.mem) }
