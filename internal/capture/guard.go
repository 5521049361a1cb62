package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPermissionDenied means the host refused microphone access. It persists
// until the user grants access out of band and the session is recreated.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrUnsupported means the host has no usable capture primitive
var ErrUnsupported = fmt.Errorf("%w: audio capture unsupported", ErrPermissionDenied)

// Availability is the resolved microphone state
type Availability int

const (
	Available Availability = iota
	Denied
	Unsupported
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Denied:
		return "denied"
	case Unsupported:
		return "unsupported"
	}
	return "unknown"
}

// Err maps the availability to its sentinel error, nil when available
func (a Availability) Err() error {
	switch a {
	case Available:
		return nil
	case Unsupported:
		return ErrUnsupported
	default:
		return ErrPermissionDenied
	}
}

// Message is the user-facing notice for an unavailable microphone
func (a Availability) Message() string {
	switch a {
	case Denied:
		return "Microphone access denied. Please allow microphone access to use voice features."
	case Unsupported:
		return "Audio recording is not supported on this host."
	}
	return ""
}

// ProbeFunc asks the host for microphone access. It may prompt the user.
type ProbeFunc func(ctx context.Context) Availability

// Guard resolves microphone availability once and caches it for the
// lifetime of the session, so the host never re-prompts per turn.
type Guard struct {
	probe ProbeFunc

	once  sync.Once
	state Availability
}

// NewGuard creates a guard around a host probe
func NewGuard(probe ProbeFunc) *Guard {
	return &Guard{probe: probe}
}

// AlwaysAvailable is the probe for hosts where the client owns the permission prompt
func AlwaysAvailable(context.Context) Availability {
	return Available
}

// Check returns the cached availability, probing on first use
func (g *Guard) Check(ctx context.Context) Availability {
	g.once.Do(func() {
		if g.probe == nil {
			g.state = Unsupported
			return
		}
		g.state = g.probe(ctx)
	})
	return g.state
}
