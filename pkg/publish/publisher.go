// Package publish pumps captured audio chunks into the shared ring that
// the virtual microphone plugin reads from.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"

	"github.com/crispy-audio/virtualmic/internal/logging"
	"github.com/crispy-audio/virtualmic/pkg/micipc"
)

var logger = logging.NewLogger("virtualmic/publish")

const statsInterval = 5 * time.Second

// Publisher bridges an audio.Reader to a micipc.Writer, downmixing every
// chunk to the mono float32 frames the ring carries. Overruns are the
// ring's normal drop-newest backpressure and are only surfaced through
// the shared counters; Run never retries a dropped chunk.
type Publisher struct {
	w       *micipc.Writer
	scratch []float32
}

// New returns a Publisher writing into w.
func New(w *micipc.Writer) *Publisher {
	return &Publisher{w: w}
}

// Run pulls chunks from r until ctx is canceled or r is exhausted. A
// blocked r.Read is only interrupted by whatever ends the reader itself
// (normally closing the capture device), so callers tie the two together.
func (p *Publisher) Run(ctx context.Context, r audio.Reader) error {
	lastStats := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, release, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("publish: read capture chunk: %w", err)
		}

		p.w.Write(p.downmix(chunk))
		release()

		if time.Since(lastStats) >= statsInterval {
			logger.Debugf("fill=%d/%d frames, sequence=%d",
				p.w.FillLevel(), p.w.CapacityFrames(), p.w.Sequence())
			lastStats = time.Now()
		}
	}
}

// downmix flattens a chunk to mono by averaging channels. Mono float32
// chunks pass through without copying; everything else goes through the
// scratch buffer, which is reused across calls so the steady-state path
// does not allocate.
func (p *Publisher) downmix(chunk wave.Audio) []float32 {
	info := chunk.ChunkInfo()
	if f32, ok := chunk.(*wave.Float32Interleaved); ok && info.Channels == 1 {
		return f32.Data
	}

	if cap(p.scratch) < info.Len {
		p.scratch = make([]float32, info.Len)
	}
	out := p.scratch[:info.Len]
	for i := 0; i < info.Len; i++ {
		var sum float32
		for ch := 0; ch < info.Channels; ch++ {
			sample := wave.Float32SampleFormat.Convert(chunk.At(i, ch))
			sum += float32(sample.(wave.Float32Sample))
		}
		out[i] = sum / float32(info.Channels)
	}
	return out
}
