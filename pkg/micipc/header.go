// Package micipc implements the shared-memory protocol that carries audio
// from the capture app to the virtual microphone plugin.
//
// The protocol is a strict single-producer/single-consumer ring of
// interleaved 32-bit float frames living in one contiguous memory region
// shared by two independently compiled processes. A fixed-layout header at
// the start of the region identifies the protocol and holds the two ring
// indices plus diagnostic counters; the sample store follows immediately
// after. Neither side ever blocks, sleeps or allocates inside Write or
// Read, which makes both safe to call from real-time audio callbacks.
//
// Synchronization rests entirely on the indices: write_index is stored only
// by the Writer and loaded by the Reader, read_index the other way around.
// Go's sync/atomic operations are sequentially consistent, which subsumes
// the release/acquire pairing the layout requires, so the reader can never
// observe an advanced index before the samples behind it are visible.
package micipc

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// Magic identifies a virtual microphone region ("CRSP").
	Magic uint32 = 0x43525350

	// Version is the protocol version. Bump on any layout change.
	Version uint32 = 1

	// FormatFloat32 is the only sample format currently defined.
	FormatFloat32 uint32 = 0

	// DefaultSampleRate is the rate the shipped plugin runs at.
	DefaultSampleRate uint32 = 48000

	// DefaultChannels is mono; the producer downmixes before writing.
	DefaultChannels uint32 = 1

	// DefaultCapacityFrames buffers 200ms at 48kHz to absorb scheduling
	// jitter between the two processes.
	DefaultCapacityFrames uint32 = 9600

	// DefaultName is the well-known shared memory object name both sides
	// open.
	DefaultName = "crispy_virtual_mic"

	// HeaderSize is the size of the control block preceding the sample
	// store. The header layout is the wire format between independently
	// compiled binaries and must stay byte-for-byte stable within a
	// protocol version.
	HeaderSize = 56
)

var (
	// ErrProtocolMismatch reports a region whose magic or version does not
	// match this implementation. Callers must treat it as "no compatible
	// virtual device present" and abort the attachment.
	ErrProtocolMismatch = errors.New("micipc: region magic or version mismatch")

	// ErrRegionTooSmall reports a byte buffer shorter than the layout the
	// header describes.
	ErrRegionTooSmall = errors.New("micipc: region too small for declared layout")

	// ErrBadGeometry reports an unusable channel count or capacity.
	ErrBadGeometry = errors.New("micipc: invalid channel count or capacity")
)

// Header is the control block at the start of a shared region.
//
// Plain uint fields accessed through sync/atomic keep the struct layout
// identical to the C side's _Atomic fields. The first six fields are
// stamped once by Init and are immutable afterwards; everything below
// writeIndex is mutated at runtime, each field by exactly one side.
type Header struct {
	magic          uint32
	version        uint32
	sampleRate     uint32
	channels       uint32
	format         uint32
	capacityFrames uint32
	writeIndex     uint32
	readIndex      uint32
	underrunCount  uint64
	overrunCount   uint64
	sequence       uint64
}

// SharedMemorySize returns the total region size for the given geometry:
// the header plus capacityFrames interleaved float32 frames.
func SharedMemorySize(capacityFrames, channels uint32) int {
	return HeaderSize + int(capacityFrames)*int(channels)*4
}

// Init stamps a freshly allocated region with the protocol constants and
// zeroed synchronization state. Only the creating (producer) side calls
// Init, exactly once, before any Writer or Reader is constructed.
func Init(mem []byte, sampleRate, channels, capacityFrames uint32) error {
	if channels == 0 || capacityFrames < 2 {
		return ErrBadGeometry
	}
	if need := SharedMemorySize(capacityFrames, channels); len(mem) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrRegionTooSmall, len(mem), need)
	}
	h := headerAt(mem)
	h.magic = Magic
	h.version = Version
	h.sampleRate = sampleRate
	h.channels = channels
	h.format = FormatFloat32
	h.capacityFrames = capacityFrames
	atomic.StoreUint32(&h.writeIndex, 0)
	atomic.StoreUint32(&h.readIndex, 0)
	atomic.StoreUint64(&h.underrunCount, 0)
	atomic.StoreUint64(&h.overrunCount, 0)
	atomic.StoreUint64(&h.sequence, 0)
	return nil
}

// Attach maps a Header view over an already initialized region without
// touching its state. It fails if the region does not carry a compatible
// header or is shorter than the geometry the header declares.
func Attach(mem []byte) (*Header, error) {
	if len(mem) < HeaderSize {
		return nil, fmt.Errorf("%w: have %d bytes, need at least %d", ErrRegionTooSmall, len(mem), HeaderSize)
	}
	h := headerAt(mem)
	if !h.Validate() {
		return nil, ErrProtocolMismatch
	}
	if h.channels == 0 || h.capacityFrames < 2 {
		return nil, ErrBadGeometry
	}
	if need := SharedMemorySize(h.capacityFrames, h.channels); len(mem) < need {
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d", ErrRegionTooSmall, len(mem), need)
	}
	return h, nil
}

func headerAt(mem []byte) *Header {
	return (*Header)(unsafe.Pointer(&mem[0]))
}

// Validate reports whether the region carries the expected magic and
// protocol version. A false result means the region was produced by an
// incompatible (or absent) counterpart and must not be used.
func (h *Header) Validate() bool {
	return h.magic == Magic && h.version == Version
}

// SampleRate returns the stream sample rate in Hz.
func (h *Header) SampleRate() uint32 { return h.sampleRate }

// Channels returns the number of interleaved channels per frame.
func (h *Header) Channels() uint32 { return h.channels }

// Format returns the sample format code (FormatFloat32).
func (h *Header) Format() uint32 { return h.format }

// CapacityFrames returns the ring capacity in frames. One frame is always
// kept empty, so at most CapacityFrames()-1 frames are ever buffered.
func (h *Header) CapacityFrames() uint32 { return h.capacityFrames }

func (h *Header) loadWriteIndex() uint32 { return atomic.LoadUint32(&h.writeIndex) }

func (h *Header) storeWriteIndex(v uint32) { atomic.StoreUint32(&h.writeIndex, v) }

func (h *Header) loadReadIndex() uint32 { return atomic.LoadUint32(&h.readIndex) }

func (h *Header) storeReadIndex(v uint32) { atomic.StoreUint32(&h.readIndex, v) }

func (h *Header) loadUnderruns() uint64 { return atomic.LoadUint64(&h.underrunCount) }

func (h *Header) addUnderrun() { atomic.AddUint64(&h.underrunCount, 1) }

func (h *Header) loadOverruns() uint64 { return atomic.LoadUint64(&h.overrunCount) }

func (h *Header) addOverrun() { atomic.AddUint64(&h.overrunCount, 1) }

func (h *Header) loadSequence() uint64 { return atomic.LoadUint64(&h.sequence) }

func (h *Header) addSequence(frames uint64) { atomic.AddUint64(&h.sequence, frames) }

// occupied computes the frame count between the two indices on a ring of
// the given capacity. Both indices are always < capacity.
func occupied(widx, ridx, capacity uint32) uint32 {
	return (widx + capacity - ridx) % capacity
}

// sampleStore returns the typed float32 view of the ring data following
// the header. Computed once at Writer/Reader construction; the hot paths
// only ever index into this slice.
func sampleStore(mem []byte, h *Header) []float32 {
	n := int(h.capacityFrames) * int(h.channels)
	return unsafe.Slice((*float32)(unsafe.Pointer(&mem[HeaderSize])), n)
}
