// Package config loads the publisher daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/crispy-audio/virtualmic/pkg/micipc"
)

// Config is the publisher daemon configuration. Zero values are filled
// from Default before validation, so a partial file is fine.
type Config struct {
	Region  Region  `toml:"region"`
	Capture Capture `toml:"capture"`
}

// Region describes the shared memory region to create.
type Region struct {
	// Name is the shared memory object name, without path separators.
	Name string `toml:"name"`
	// CapacityFrames sizes the ring; one frame stays reserved.
	CapacityFrames uint32 `toml:"capacity_frames"`
}

// Capture describes the microphone format to open. The published ring is
// always mono; multi-channel capture is downmixed.
type Capture struct {
	SampleRate int `toml:"sample_rate"`
	Channels   int `toml:"channels"`
}

// Default returns the configuration matching the shipped plugin.
func Default() Config {
	return Config{
		Region: Region{
			Name:           micipc.DefaultName,
			CapacityFrames: micipc.DefaultCapacityFrames,
		},
		Capture: Capture{
			SampleRate: int(micipc.DefaultSampleRate),
			Channels:   int(micipc.DefaultChannels),
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the transport cannot work
// with.
func (c Config) Validate() error {
	if c.Region.Name == "" {
		return errors.New("config: region.name must not be empty")
	}
	if strings.ContainsAny(c.Region.Name, "/\\") {
		return fmt.Errorf("config: region.name %q must not contain path separators", c.Region.Name)
	}
	if c.Region.CapacityFrames < 2 {
		return fmt.Errorf("config: region.capacity_frames %d is below the minimum of 2", c.Region.CapacityFrames)
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("config: capture.sample_rate %d must be positive", c.Capture.SampleRate)
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("config: capture.channels %d must be positive", c.Capture.Channels)
	}
	return nil
}
