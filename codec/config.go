package codec

import (
	"os"
	"strconv"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/opd-ai/framecodec/engine/refcodec"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
)

// Environment variables read by DefaultConfig.
const (
	EnvSpeed         = "FRAMECODEC_SPEED"
	EnvYUV444Quality = "FRAMECODEC_YUV444_QUALITY"
	EnvYUV422Quality = "FRAMECODEC_YUV422_QUALITY"
	EnvPoisonBuffers = "FRAMECODEC_POISON_BUFFERS"
)

// Config holds the settings shared by encoder and decoder contexts.
type Config struct {
	// Speed is the initial encoding speed, 0..100.
	Speed int
	// YUV444Quality is the initial quality at or above which an encoder
	// allowed to choose its colorspace picks YUV444P.
	YUV444Quality int
	// YUV422Quality is the initial quality at or above which such an
	// encoder picks YUV422P.
	YUV422Quality int
	// PoisonBuffers overwrites context-owned buffers with
	// memalign.PoisonByte when they are invalidated.
	PoisonBuffers bool
	// SourceFormat is the planar format a decoder assumes for YUVToRGB
	// until it has decoded its first stream.
	SourceFormat csc.PixelFormat

	Allocator      memalign.Allocator
	EncoderFactory engine.EncoderFactory
	DecoderFactory engine.DecoderFactory
}

// Option customises a Config.
type Option func(*Config)

// WithSpeed sets the initial encoding speed.
func WithSpeed(pct int) Option {
	return func(c *Config) {
		c.Speed = engine.ClampPercent(pct)
	}
}

// WithYUV444Quality sets the YUV444P selection threshold.
func WithYUV444Quality(q int) Option {
	return func(c *Config) {
		c.YUV444Quality = engine.ClampPercent(q)
	}
}

// WithYUV422Quality sets the YUV422P selection threshold.
func WithYUV422Quality(q int) Option {
	return func(c *Config) {
		c.YUV422Quality = engine.ClampPercent(q)
	}
}

// WithPoisonBuffers enables or disables poisoning of invalidated buffers.
func WithPoisonBuffers(enabled bool) Option {
	return func(c *Config) {
		c.PoisonBuffers = enabled
	}
}

// WithSourceFormat sets the decoder's initial source format. Formats other
// than the planar YUV ones are ignored.
func WithSourceFormat(f csc.PixelFormat) Option {
	return func(c *Config) {
		if f.IsPlanarYUV() {
			c.SourceFormat = f
		}
	}
}

// WithAllocator sets the allocator for pictures, converted images and
// context buffers.
func WithAllocator(a memalign.Allocator) Option {
	return func(c *Config) {
		if a != nil {
			c.Allocator = a
		}
	}
}

// WithEncoderFactory replaces the compression engine.
func WithEncoderFactory(f engine.EncoderFactory) Option {
	return func(c *Config) {
		if f != nil {
			c.EncoderFactory = f
		}
	}
}

// WithDecoderFactory replaces the decompression engine.
func WithDecoderFactory(f engine.DecoderFactory) Option {
	return func(c *Config) {
		if f != nil {
			c.DecoderFactory = f
		}
	}
}

// DefaultConfig returns the built-in defaults with FRAMECODEC_* environment
// overrides applied.
//
// Default Value Rationale:
//   - Speed: 70 - "veryfast" keeps per-frame latency low for screen updates
//   - YUV444Quality: 80 - full chroma only pays off at high quality
//   - YUV422Quality: 60 - halved horizontal chroma for medium quality
//   - PoisonBuffers: false - poisoning costs a memset per call
func DefaultConfig() *Config {
	cfg := &Config{
		Speed:          70,
		YUV444Quality:  80,
		YUV422Quality:  60,
		PoisonBuffers:  false,
		SourceFormat:   csc.YUV420P,
		Allocator:      memalign.Heap{},
		EncoderFactory: refcodec.NewEngineEncoder,
		DecoderFactory: refcodec.NewEngineDecoder,
	}
	applyEnvironmentOverrides(cfg)
	return cfg
}

func newConfig(opts []Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func applyEnvironmentOverrides(cfg *Config) {
	parsePercentSetting(EnvSpeed, &cfg.Speed)
	parsePercentSetting(EnvYUV444Quality, &cfg.YUV444Quality)
	parsePercentSetting(EnvYUV422Quality, &cfg.YUV422Quality)
	parseBoolSetting(EnvPoisonBuffers, &cfg.PoisonBuffers)
}

// parsePercentSetting updates dst from an environment variable holding an
// integer in 0..100. Invalid values are logged and ignored.
func parsePercentSetting(name string, dst *int) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parsePercentSetting",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": *dst,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if v < 0 || v > 100 {
		logrus.WithFields(logrus.Fields{
			"function":    "parsePercentSetting",
			"env_var":     name,
			"value":       v,
			"min":         0,
			"max":         100,
			"using_value": *dst,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*dst = v
}

func parseBoolSetting(name string, dst *bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoolSetting",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": *dst,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	*dst = v
}
