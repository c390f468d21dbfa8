package gpuframe

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default startup parameters.
const (
	DefaultBufferCount = 3
	DefaultWidth       = 1280
	DefaultHeight      = 1080
)

// Duration is a time.Duration that reads and writes as a string ("250ms")
// in config files.
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds process startup parameters. None of them change at runtime.
type Config struct {
	// Backend names a registered driver; empty picks backend.Default.
	Backend string `toml:"backend"`

	// BufferCount is the swapchain depth N. The CPU runs at most N-1
	// frames ahead of the GPU.
	BufferCount int `toml:"buffer_count"`

	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// PreferSoftware selects the software rasterizer adapter.
	PreferSoftware bool `toml:"prefer_software"`

	VSync bool `toml:"vsync"`

	// WaitTimeout bounds per-frame and flush waits. Zero waits forever.
	WaitTimeout Duration `toml:"wait_timeout"`
}

// DefaultConfig returns the default parameters.
func DefaultConfig() Config {
	return Config{
		BufferCount: DefaultBufferCount,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		VSync:       true,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.BufferCount < 2 {
		return fmt.Errorf("%w: buffer_count %d, need at least 2", ErrInvalidConfig, c.BufferCount)
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("%w: negative wait_timeout %v", ErrInvalidConfig, time.Duration(c.WaitTimeout))
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig encodes cfg as TOML.
func WriteConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}
