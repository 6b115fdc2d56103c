package micipc

// Reader is the consumer-side facade over a shared region, the mirror of
// Writer: it may advance read_index and count underruns but never touches
// the producer's fields.
//
// Exactly one logical Reader may be live per region; Read must only be
// called from one goroutine at a time (normally the render callback of the
// audio plugin).
type Reader struct {
	h        *Header
	store    []float32
	capacity uint32
	channels uint32
}

// NewReader attaches a Reader to an initialized region.
func NewReader(mem []byte) (*Reader, error) {
	h, err := Attach(mem)
	if err != nil {
		return nil, err
	}
	return &Reader{
		h:        h,
		store:    sampleStore(mem, h),
		capacity: h.capacityFrames,
		channels: h.channels,
	}, nil
}

// Read fills out with buffered frames and returns the number of real
// frames delivered. len(out) must be a multiple of the channel count.
//
// Read never blocks. When fewer frames are buffered than requested the
// remainder of out is zero-filled and the underrun counter is bumped
// once: silence is the defined fallback, and stale or uninitialized data
// is never exposed past the data horizon.
func (r *Reader) Read(out []float32) int {
	frames := uint32(len(out)) / r.channels
	if frames == 0 {
		return 0
	}

	widx := r.h.loadWriteIndex()
	ridx := r.h.loadReadIndex()

	toRead := occupied(widx, ridx, r.capacity)
	if toRead > frames {
		toRead = frames
	}
	if toRead < frames {
		r.h.addUnderrun()
		tail := out[int(toRead)*int(r.channels) : int(frames)*int(r.channels)]
		for i := range tail {
			tail[i] = 0
		}
	}
	if toRead == 0 {
		return 0
	}

	start := int(ridx) * int(r.channels)
	n := int(toRead) * int(r.channels)
	if first := len(r.store) - start; first >= n {
		copy(out[:n], r.store[start:start+n])
	} else {
		copy(out[:first], r.store[start:])
		copy(out[first:n], r.store[:n-first])
	}

	// Publishing the new read index releases the slots just consumed back
	// to the producer; it must come after the copy.
	r.h.storeReadIndex((ridx + toRead) % r.capacity)
	return int(toRead)
}

// FillLevel returns the number of frames currently buffered, always in
// [0, CapacityFrames()-1].
func (r *Reader) FillLevel() uint32 {
	return occupied(r.h.loadWriteIndex(), r.h.loadReadIndex(), r.capacity)
}

// UnderrunCount returns the cumulative number of short reads. There is no
// reset; callers interested in rates track deltas.
func (r *Reader) UnderrunCount() uint64 {
	return r.h.loadUnderruns()
}

// OverrunCount returns the cumulative number of dropped writes observed by
// the producer side.
func (r *Reader) OverrunCount() uint64 {
	return r.h.loadOverruns()
}

// Sequence returns the total frames ever accepted by the producer.
func (r *Reader) Sequence() uint64 {
	return r.h.loadSequence()
}

// CapacityFrames returns the ring capacity in frames.
func (r *Reader) CapacityFrames() uint32 {
	return r.capacity
}
