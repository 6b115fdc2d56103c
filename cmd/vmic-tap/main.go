// vmic-tap attaches to a live region as the consuming side and reports
// transport health: fill level, throughput and underrun/overrun deltas.
// It stands in for the audio plugin when debugging a producer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crispy-audio/virtualmic/internal/logging"
	"github.com/crispy-audio/virtualmic/pkg/micipc"
	"github.com/crispy-audio/virtualmic/pkg/shmem"
)

var logger = logging.NewLogger("virtualmic/tap")

func main() {
	name := flag.String("name", micipc.DefaultName, "shared memory object name")
	interval := flag.Duration("interval", time.Second, "stats reporting interval")
	flag.Parse()

	if err := run(*name, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "vmic-tap: %v\n", err)
		os.Exit(1)
	}
}

func run(name string, interval time.Duration) error {
	if err := inspect(name); err != nil {
		return err
	}

	// Draining advances the shared read index, so the consuming side
	// needs a writable mapping.
	seg, err := shmem.Open(name)
	if err != nil {
		return err
	}
	defer seg.Close()

	reader, err := micipc.NewReader(seg.Bytes())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sampleRate := int(micipc.DefaultSampleRate)
	if h, err := micipc.Attach(seg.Bytes()); err == nil {
		sampleRate = int(h.SampleRate())
	}

	// Pull 10ms blocks at wall-clock rate, the same cadence a render
	// thread would.
	block := make([]float32, sampleRate/100)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var (
		drained       uint64
		lastDrained   uint64
		lastSequence  = reader.Sequence()
		lastUnderruns = reader.UnderrunCount()
		lastOverruns  = reader.OverrunCount()
		lastReport    = time.Now()
	)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("detached after draining %d frames", drained)
			return nil
		case <-ticker.C:
		}

		drained += uint64(reader.Read(block))

		if time.Since(lastReport) < interval {
			continue
		}
		elapsed := time.Since(lastReport).Seconds()
		sequence := reader.Sequence()
		underruns := reader.UnderrunCount()
		overruns := reader.OverrunCount()

		logger.Infof("fill=%d/%d produced=%.0f/s drained=%.0f/s underruns=+%d overruns=+%d",
			reader.FillLevel(), reader.CapacityFrames(),
			float64(sequence-lastSequence)/elapsed,
			float64(drained-lastDrained)/elapsed,
			underruns-lastUnderruns, overruns-lastOverruns)

		lastSequence = sequence
		lastUnderruns = underruns
		lastOverruns = overruns
		lastDrained = drained
		lastReport = time.Now()
	}
}

// inspect maps the region read-only first: validation and header geometry
// never need write access, and a mismatch should fail before we attach a
// consuming Reader.
func inspect(name string) error {
	seg, err := shmem.OpenReadOnly(name)
	if err != nil {
		return err
	}
	defer seg.Close()

	h, err := micipc.Attach(seg.Bytes())
	if err != nil {
		return err
	}
	logger.Infof("region %s: %d Hz, %d channel(s), format %d, %d frame ring",
		name, h.SampleRate(), h.Channels(), h.Format(), h.CapacityFrames())
	return nil
}
