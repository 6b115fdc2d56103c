// Package capture acquires microphone audio through the miniaudio backend
// and exposes it as a stream of wave chunks ready to publish into the
// shared ring.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"

	"github.com/crispy-audio/virtualmic/internal/logging"
)

var logger = logging.NewLogger("virtualmic/capture")

// Config selects the capture format. The ring downstream is mono; any
// channel count captured here is downmixed by the publisher.
type Config struct {
	SampleRate int
	Channels   int
}

// Microphone owns a miniaudio context and, once started, the capture
// device feeding chunks to the reader returned by Start.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	chunks chan []byte
	closed bool
}

// Open initializes the audio backend. Callers must Close the microphone
// when done, including on error paths further into setup.
func Open() (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("%v", message)
	})
	if err != nil {
		return nil, fmt.Errorf("capture: init audio context: %w", err)
	}
	return &Microphone{ctx: ctx}, nil
}

// Start opens the default capture device in 32-bit float and returns a
// reader of decoded chunks. The reader yields io.EOF after Close.
func (m *Microphone) Start(cfg Config) (audio.Reader, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, errors.New("capture: sample rate and channels must be positive")
	}
	if m.device != nil {
		return nil, errors.New("capture: already started")
	}

	decoder, err := wave.NewDecoder(&wave.RawFormat{
		SampleSize:  4,
		IsFloat:     true,
		Interleaved: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: build decoder: %w", err)
	}

	var config malgo.DeviceConfig
	config.DeviceType = malgo.Capture
	config.PerformanceProfile = malgo.LowLatency
	config.SampleRate = uint32(cfg.SampleRate)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = uint32(cfg.Channels)

	m.chunks = make(chan []byte, 4)

	var callbacks malgo.DeviceCallbacks
	callbacks.Data = func(_, chunk []byte, _ uint32) {
		// The callback runs on the backend's real-time thread and the
		// chunk buffer is reused, so copy and never block: a slow
		// consumer loses chunks instead of stalling the device.
		owned := make([]byte, len(chunk))
		copy(owned, chunk)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return
		}
		select {
		case m.chunks <- owned:
		default:
			logger.Warnf("capture chunk dropped, consumer too slow")
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("capture: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("capture: start capture device: %w", err)
	}
	m.device = device

	return audio.ReaderFunc(func() (wave.Audio, func(), error) {
		chunk, ok := <-m.chunks
		if !ok {
			return nil, func() {}, io.EOF
		}
		decoded, err := decoder.Decode(binary.NativeEndian, chunk, cfg.Channels)
		if err != nil {
			return nil, func() {}, fmt.Errorf("capture: decode chunk: %w", err)
		}
		if f32, ok := decoded.(*wave.Float32Interleaved); ok {
			f32.Size.SamplingRate = cfg.SampleRate
		}
		return decoded, func() {}, nil
	}), nil
}

// Close stops the device, ends the reader with io.EOF and releases the
// backend context. Safe to call more than once and from a goroutine other
// than the reader's.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.chunks != nil {
		close(m.chunks)
	}

	err := m.ctx.Uninit()
	m.ctx.Free()
	if err != nil {
		return fmt.Errorf("capture: uninit audio context: %w", err)
	}
	return nil
}
