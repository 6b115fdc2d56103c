package micipc

// Writer is the producer-side facade over a shared region. It exposes only
// the operations the producer is permitted to perform; read_index and the
// underrun counter stay out of reach.
//
// Exactly one logical Writer may be live per region, and Write must only
// be called from one goroutine at a time (normally the capture callback).
// Constructing a Writer is cheap; the typed sample-store view is computed
// once here and reused on every call.
type Writer struct {
	h        *Header
	store    []float32
	capacity uint32
	channels uint32
}

// NewWriter attaches a Writer to an initialized region. The region must
// have been stamped by Init; an incompatible header yields
// ErrProtocolMismatch.
func NewWriter(mem []byte) (*Writer, error) {
	h, err := Attach(mem)
	if err != nil {
		return nil, err
	}
	return &Writer{
		h:        h,
		store:    sampleStore(mem, h),
		capacity: h.capacityFrames,
		channels: h.channels,
	}, nil
}

// Write copies whole frames from samples into the ring and returns the
// number of frames accepted. len(samples) must be a multiple of the
// channel count; trailing samples short of a frame are ignored.
//
// Write never blocks. When the ring is full the input is dropped, the
// overrun counter is bumped and 0 is returned; a short count on a partly
// full ring is the normal backpressure signal, not an error. Callers on a
// live stream must not retry dropped frames, that would only desync the
// timeline.
func (w *Writer) Write(samples []float32) int {
	frames := uint32(len(samples)) / w.channels
	if frames == 0 {
		return 0
	}

	widx := w.h.loadWriteIndex()
	ridx := w.h.loadReadIndex()
	// One frame stays reserved so a full ring is distinguishable from an
	// empty one.
	available := w.capacity - occupied(widx, ridx, w.capacity) - 1
	if available == 0 {
		w.h.addOverrun()
		return 0
	}

	toWrite := frames
	if toWrite > available {
		toWrite = available
	}

	start := int(widx) * int(w.channels)
	n := int(toWrite) * int(w.channels)
	if first := len(w.store) - start; first >= n {
		copy(w.store[start:start+n], samples[:n])
	} else {
		copy(w.store[start:], samples[:first])
		copy(w.store[:n-first], samples[first:n])
	}

	// The index store publishes the copy above; it must come last.
	w.h.storeWriteIndex((widx + toWrite) % w.capacity)
	w.h.addSequence(uint64(toWrite))
	return int(toWrite)
}

// FillLevel returns the number of frames currently buffered, always in
// [0, CapacityFrames()-1].
func (w *Writer) FillLevel() uint32 {
	return occupied(w.h.loadWriteIndex(), w.h.loadReadIndex(), w.capacity)
}

// Sequence returns the total frames ever accepted by Write, independent of
// the wrapping ring index. Advisory telemetry for rate monitoring only; it
// wraps silently at 64 bits.
func (w *Writer) Sequence() uint64 {
	return w.h.loadSequence()
}

// CapacityFrames returns the ring capacity in frames.
func (w *Writer) CapacityFrames() uint32 {
	return w.capacity
}
