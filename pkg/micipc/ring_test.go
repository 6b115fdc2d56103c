package micipc

import (
	"math/rand"
	"sync"
	"testing"
)

func newPair(t *testing.T, capacityFrames uint32) (*Writer, *Reader) {
	t.Helper()
	mem := newRegion(t, DefaultSampleRate, 1, capacityFrames)
	w, err := NewWriter(mem)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	r, err := NewReader(mem)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	return w, r
}

func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	w, r := newPair(t, 64)

	in := ramp(1, 48)
	if n := w.Write(in); n != len(in) {
		t.Fatalf("Write = %d, want %d", n, len(in))
	}
	if fill := w.FillLevel(); fill != 48 {
		t.Fatalf("fill = %d, want 48", fill)
	}

	out := make([]float32, 48)
	if n := r.Read(out); n != len(out) {
		t.Fatalf("Read = %d, want %d", n, len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if fill := r.FillLevel(); fill != 0 {
		t.Fatalf("fill after drain = %d, want 0", fill)
	}
	if r.UnderrunCount() != 0 || r.OverrunCount() != 0 {
		t.Fatalf("clean round trip bumped counters: underruns=%d overruns=%d",
			r.UnderrunCount(), r.OverrunCount())
	}
}

// Capacity 4 leaves three usable slots: the fourth frame is the reserved
// empty slot that disambiguates full from empty.
func TestFullDropAndSilenceFill(t *testing.T) {
	w, r := newPair(t, 4)

	if n := w.Write([]float32{1, 2, 3}); n != 3 {
		t.Fatalf("Write = %d, want 3", n)
	}
	if fill := w.FillLevel(); fill != 3 {
		t.Fatalf("fill = %d, want 3", fill)
	}

	// Ring saturated: the whole input is dropped and counted once.
	if n := w.Write([]float32{4, 5}); n != 0 {
		t.Fatalf("Write on full ring = %d, want 0", n)
	}
	if r.OverrunCount() != 1 {
		t.Fatalf("overruns = %d, want 1", r.OverrunCount())
	}
	if fill := w.FillLevel(); fill != 3 {
		t.Fatalf("fill after drop = %d, want 3", fill)
	}

	// Asking for more than is buffered yields the real frames plus
	// silence, counted as one underrun.
	out := []float32{9, 9, 9, 9}
	if n := r.Read(out); n != 3 {
		t.Fatalf("Read = %d, want 3", n)
	}
	want := []float32{1, 2, 3, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
	if r.UnderrunCount() != 1 {
		t.Fatalf("underruns = %d, want 1", r.UnderrunCount())
	}
	if fill := r.FillLevel(); fill != 0 {
		t.Fatalf("fill = %d, want 0", fill)
	}
}

func TestOverrunAccountingSaturates(t *testing.T) {
	w, r := newPair(t, 8)

	if n := w.Write(ramp(0, 7)); n != 7 {
		t.Fatalf("Write = %d, want 7", n)
	}
	for i := 1; i <= 5; i++ {
		if n := w.Write([]float32{1}); n != 0 {
			t.Fatalf("Write on full ring = %d, want 0", n)
		}
		if got := r.OverrunCount(); got != uint64(i) {
			t.Fatalf("overruns = %d, want %d", got, i)
		}
		if fill := w.FillLevel(); fill != 7 {
			t.Fatalf("fill = %d, want 7", fill)
		}
	}
}

func TestReadEmptyRingIsAllSilence(t *testing.T) {
	_, r := newPair(t, 16)

	out := []float32{5, 5, 5, 5}
	if n := r.Read(out); n != 0 {
		t.Fatalf("Read = %d, want 0", n)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
	if r.UnderrunCount() != 1 {
		t.Fatalf("underruns = %d, want 1", r.UnderrunCount())
	}
}

func TestEmptyCallsAreNoops(t *testing.T) {
	w, r := newPair(t, 16)

	if n := w.Write(nil); n != 0 {
		t.Fatalf("Write(nil) = %d, want 0", n)
	}
	if n := r.Read(nil); n != 0 {
		t.Fatalf("Read(nil) = %d, want 0", n)
	}
	if r.OverrunCount() != 0 || r.UnderrunCount() != 0 {
		t.Fatalf("empty calls bumped counters: underruns=%d overruns=%d",
			r.UnderrunCount(), r.OverrunCount())
	}
}

func TestPartialWriteClamps(t *testing.T) {
	w, r := newPair(t, 8)

	if n := w.Write(ramp(0, 5)); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}
	// Only two slots left; the rest of the input is dropped silently.
	if n := w.Write(ramp(5, 6)); n != 2 {
		t.Fatalf("Write = %d, want 2", n)
	}
	if r.OverrunCount() != 0 {
		t.Fatalf("partial write counted as overrun")
	}

	out := make([]float32, 7)
	if n := r.Read(out); n != 7 {
		t.Fatalf("Read = %d, want 7", n)
	}
	for i := 0; i < 7; i++ {
		if out[i] != float32(i) {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], float32(i))
		}
	}
}

func TestWraparoundPreservesOrder(t *testing.T) {
	const capacity = 16
	w, r := newPair(t, capacity)

	chunkSizes := []int{1, 3, 7, 2, 11, 5, 4, 9}
	next := 0
	expect := 0
	out := make([]float32, capacity)

	// Push several times the capacity through the ring in uneven chunks so
	// both copies regularly split across the wrap boundary.
	for round := 0; round < 40; round++ {
		size := chunkSizes[round%len(chunkSizes)]
		written := w.Write(ramp(next, size))
		next += written

		got := r.Read(out[:size])
		for i := 0; i < got; i++ {
			if out[i] != float32(expect) {
				t.Fatalf("round %d: out[%d] = %v, want %v", round, i, out[i], float32(expect))
			}
			expect++
		}
	}

	if expect != next {
		t.Fatalf("drained %d frames, accepted %d", expect, next)
	}
	if next <= capacity {
		t.Fatalf("test never wrapped: only %d frames accepted", next)
	}
}

func TestFillLevelStaysInBounds(t *testing.T) {
	const capacity = 32
	w, r := newPair(t, capacity)

	rng := rand.New(rand.NewSource(7))
	out := make([]float32, capacity)
	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			w.Write(ramp(0, rng.Intn(capacity)))
		} else {
			r.Read(out[:rng.Intn(capacity)])
		}
		if fill := w.FillLevel(); fill > capacity-1 {
			t.Fatalf("fill = %d exceeds usable capacity %d", fill, capacity-1)
		}
	}
}

func TestSequenceCountsAcceptedFrames(t *testing.T) {
	w, r := newPair(t, 8)

	if w.Sequence() != 0 {
		t.Fatalf("initial sequence = %d, want 0", w.Sequence())
	}
	w.Write(ramp(0, 5)) // accepted 5
	w.Write(ramp(0, 6)) // clamped to 2
	w.Write(ramp(0, 1)) // dropped
	if got := w.Sequence(); got != 7 {
		t.Fatalf("sequence = %d, want 7", got)
	}
	if got := r.Sequence(); got != 7 {
		t.Fatalf("reader sequence = %d, want 7", got)
	}

	out := make([]float32, 8)
	r.Read(out)
	if got := w.Sequence(); got != 7 {
		t.Fatalf("sequence changed on read: %d", got)
	}
}

// One writer goroutine and one reader goroutine hammer the ring with
// random-length chunks. Every frame carries the next value of a ramp, so
// the reader can verify that exactly the accepted frames come out, in
// order, with nothing stale or uninitialized in between.
func TestConcurrentWriterReader(t *testing.T) {
	const (
		capacity    = 256
		totalFrames = 200000
	)
	w, r := newPair(t, capacity)

	var wg sync.WaitGroup
	wg.Add(2)

	var accepted uint64
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		next := 0
		for next < totalFrames {
			size := 1 + rng.Intn(capacity/2)
			if next+size > totalFrames {
				size = totalFrames - next
			}
			n := w.Write(ramp(next+1, size))
			next += n
		}
		accepted = uint64(next)
	}()

	var drained uint64
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		out := make([]float32, capacity)
		expect := float32(1)
		for drained < totalFrames {
			n := r.Read(out[:1+rng.Intn(capacity/2)])
			for i := 0; i < n; i++ {
				if out[i] != expect {
					t.Errorf("frame %d: got %v, want %v", drained+uint64(i), out[i], expect)
					return
				}
				expect++
			}
			drained += uint64(n)
		}
	}()

	wg.Wait()

	if accepted != totalFrames {
		t.Fatalf("writer accepted %d frames, want %d", accepted, totalFrames)
	}
	if drained != totalFrames {
		t.Fatalf("reader drained %d frames, want %d", drained, totalFrames)
	}
	if got := w.Sequence(); got != totalFrames {
		t.Fatalf("sequence = %d, want %d", got, totalFrames)
	}
}

func TestStereoInterleavedFrames(t *testing.T) {
	mem := newRegion(t, DefaultSampleRate, 2, 8)
	w, err := NewWriter(mem)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	r, err := NewReader(mem)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	in := []float32{1, -1, 2, -2, 3, -3} // three stereo frames
	if n := w.Write(in); n != 3 {
		t.Fatalf("Write = %d frames, want 3", n)
	}
	if fill := w.FillLevel(); fill != 3 {
		t.Fatalf("fill = %d, want 3", fill)
	}

	out := make([]float32, 8) // four frames requested
	if n := r.Read(out); n != 3 {
		t.Fatalf("Read = %d frames, want 3", n)
	}
	want := []float32{1, -1, 2, -2, 3, -3, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func BenchmarkWriteRead10ms(b *testing.B) {
	mem := make([]byte, SharedMemorySize(DefaultCapacityFrames, 1))
	if err := Init(mem, DefaultSampleRate, 1, DefaultCapacityFrames); err != nil {
		b.Fatal(err)
	}
	w, _ := NewWriter(mem)
	r, _ := NewReader(mem)

	block := ramp(0, 480) // 10ms at 48kHz
	out := make([]float32, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Write(block)
		r.Read(out)
	}
}
