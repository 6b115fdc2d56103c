// vmic-publish captures microphone audio and publishes it into the shared
// memory region the virtual microphone plugin reads from. It owns the
// region: it creates and stamps it on startup and unlinks it on shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crispy-audio/virtualmic/internal/config"
	"github.com/crispy-audio/virtualmic/internal/logging"
	"github.com/crispy-audio/virtualmic/pkg/capture"
	"github.com/crispy-audio/virtualmic/pkg/micipc"
	"github.com/crispy-audio/virtualmic/pkg/publish"
	"github.com/crispy-audio/virtualmic/pkg/shmem"
)

var logger = logging.NewLogger("virtualmic/publish-cmd")

func main() {
	configPath := flag.String("config", "", "path to TOML configuration (defaults apply if empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "vmic-publish: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	size := micipc.SharedMemorySize(cfg.Region.CapacityFrames, micipc.DefaultChannels)
	seg, err := shmem.Create(cfg.Region.Name, size)
	if err != nil {
		return err
	}
	defer seg.Close()
	defer seg.Unlink()

	if err := micipc.Init(seg.Bytes(), uint32(cfg.Capture.SampleRate), micipc.DefaultChannels, cfg.Region.CapacityFrames); err != nil {
		return err
	}
	writer, err := micipc.NewWriter(seg.Bytes())
	if err != nil {
		return err
	}
	logger.Infof("region %s ready: %d bytes, %d frames at %d Hz",
		cfg.Region.Name, size, cfg.Region.CapacityFrames, cfg.Capture.SampleRate)

	mic, err := capture.Open()
	if err != nil {
		return err
	}
	defer mic.Close()

	reader, err := mic.Start(capture.Config{
		SampleRate: cfg.Capture.SampleRate,
		Channels:   cfg.Capture.Channels,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// Closing the microphone ends the blocked chunk read so the
		// publisher can notice the cancellation.
		mic.Close()
	}()

	logger.Infof("publishing, stop with SIGINT/SIGTERM")
	if err := publish.New(writer).Run(ctx, reader); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("stopped after %d frames", writer.Sequence())
	return nil
}
