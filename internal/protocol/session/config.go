package session

import (
	"time"

	"github.com/danmuck/edgelink/internal/protocol/frame"
)

// Config defines transport session defaults.
type Config struct {
	Limits       frame.Limits
	AckTimeout   time.Duration
	MaxLineBytes int
}

func DefaultConfig() Config {
	return Config{
		Limits:       frame.DefaultLimits(),
		AckTimeout:   2 * time.Second,
		MaxLineBytes: 4096,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Limits = c.Limits.WithDefaults()
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	return c
}
