package push

import (
	"context"
	"sync/atomic"
)

// Status is the outcome kind of a registration attempt
type Status byte

const (
	StatusRegistered Status = iota + 1
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once per Register call
type Result struct {
	Status Status
	Err    error
}

// Registered returns a successful result
func Registered() Result { return Result{Status: StatusRegistered} }

// Failed returns a failed result carrying err
func Failed(err error) Result { return Result{Status: StatusFailed, Err: err} }

// Cancelled returns a cancelled result carrying the context error
func Cancelled(err error) Result { return Result{Status: StatusCancelled, Err: err} }

// OK reports whether the registration succeeded
func (r Result) OK() bool { return r.Status == StatusRegistered }

// Registrar registers the device for push notifications
type Registrar interface {
	// IsRegistered reports whether a registration for the current sessions is known
	IsRegistered() bool

	// Register starts a registration and returns immediately; done receives
	// the result, possibly on another goroutine
	Register(ctx context.Context, done func(Result))

	// UseFallbackTransport switches event delivery to the alternate transport
	UseFallbackTransport(enabled bool)

	// FallbackTransport reports whether the alternate transport is in use
	FallbackTransport() bool
}

// DisabledRegistrar is used when push is turned off: registration always
// fails, so delivery runs on the fallback transport.
type DisabledRegistrar struct {
	fallback atomic.Bool
}

func (d *DisabledRegistrar) IsRegistered() bool { return false }

func (d *DisabledRegistrar) Register(_ context.Context, done func(Result)) {
	done(Failed(ErrDisabled))
}

func (d *DisabledRegistrar) UseFallbackTransport(enabled bool) { d.fallback.Store(enabled) }

func (d *DisabledRegistrar) FallbackTransport() bool { return d.fallback.Load() }
