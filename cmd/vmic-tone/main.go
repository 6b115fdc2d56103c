// vmic-tone writes a test tone into the shared memory region so the
// virtual microphone can be verified without any capture hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crispy-audio/virtualmic/internal/logging"
	"github.com/crispy-audio/virtualmic/pkg/micipc"
	"github.com/crispy-audio/virtualmic/pkg/shmem"
)

var logger = logging.NewLogger("virtualmic/tone")

func main() {
	name := flag.String("name", micipc.DefaultName, "shared memory object name")
	freq := flag.Float64("freq", 440, "tone frequency in Hz")
	amp := flag.Float64("amp", 0.5, "amplitude in [0, 1]")
	capacity := flag.Uint("capacity", uint(micipc.DefaultCapacityFrames), "ring capacity in frames")
	flag.Parse()

	if err := run(*name, *freq, *amp, uint32(*capacity)); err != nil {
		fmt.Fprintf(os.Stderr, "vmic-tone: %v\n", err)
		os.Exit(1)
	}
}

func run(name string, freq, amp float64, capacity uint32) error {
	const sampleRate = micipc.DefaultSampleRate

	seg, err := shmem.Create(name, micipc.SharedMemorySize(capacity, micipc.DefaultChannels))
	if err != nil {
		return err
	}
	defer seg.Close()
	defer seg.Unlink()

	if err := micipc.Init(seg.Bytes(), sampleRate, micipc.DefaultChannels, capacity); err != nil {
		return err
	}
	writer, err := micipc.NewWriter(seg.Bytes())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 10ms blocks, the cadence the plugin's render thread expects.
	block := make([]float32, sampleRate/100)
	phase := 0.0
	phaseDelta := 2 * math.Pi * freq / float64(sampleRate)

	logger.Infof("writing %.0f Hz tone into %s (%d frame ring)", freq, name, capacity)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("stopped after %d frames", writer.Sequence())
			return nil
		case <-ticker.C:
		}

		for i := range block {
			block[i] = float32(math.Sin(phase) * amp)
			phase += phaseDelta
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		writer.Write(block)

		if time.Since(lastStats) >= time.Second {
			fill := writer.FillLevel()
			logger.Infof("fill %d frames (%d ms)", fill, fill*1000/sampleRate)
			lastStats = time.Now()
		}
	}
}
