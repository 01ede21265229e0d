package syncer

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	ErrInvalidBackoffConfig = errors.New("invalid backoff configuration")
	ErrMaxRetriesExceeded   = errors.New("max retries exceeded")
)

// BackoffConfig shapes the delay between failed sync attempts
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxRetries      int     // 0 retries until the context ends
	JitterFactor    float64 // 0 disables jitter
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 5 * time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

func (bc BackoffConfig) Validate() error {
	if bc.InitialInterval <= 0 {
		return ErrInvalidBackoffConfig
	}
	if bc.MaxInterval < bc.InitialInterval {
		return ErrInvalidBackoffConfig
	}
	if bc.Multiplier < 1 {
		return ErrInvalidBackoffConfig
	}
	if bc.MaxRetries < 0 || bc.JitterFactor < 0 || bc.JitterFactor > 1 {
		return ErrInvalidBackoffConfig
	}
	return nil
}

// Backoff hands out growing retry delays. It is not safe for concurrent use.
type Backoff struct {
	config  BackoffConfig
	attempt int
}

func NewBackoff(config BackoffConfig) (*Backoff, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Backoff{config: config}, nil
}

// Next returns the delay before the next attempt, or false once MaxRetries
// delays were handed out
func (b *Backoff) Next() (time.Duration, bool) {
	if b.config.MaxRetries > 0 && b.attempt >= b.config.MaxRetries {
		return 0, false
	}

	interval := b.calculate()
	b.attempt++

	return interval, true
}

func (b *Backoff) calculate() time.Duration {
	interval := float64(b.config.InitialInterval) * math.Pow(b.config.Multiplier, float64(b.attempt))

	if interval > float64(b.config.MaxInterval) {
		interval = float64(b.config.MaxInterval)
	}

	if b.config.JitterFactor > 0 {
		jitter := interval * b.config.JitterFactor
		interval = interval - jitter + (rand.Float64() * 2 * jitter)
	}

	return time.Duration(interval)
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() int {
	return b.attempt
}
