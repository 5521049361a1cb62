package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
)

// Policy guards calls to one remote collaborator: a per-call timeout,
// retries on retryable errors and a circuit breaker shared by all calls.
type Policy struct {
	Timeout time.Duration
	Retry   *RetryConfig
	Breaker *CircuitBreaker
}

// NewPolicy builds the policy for the named collaborator from configuration
func NewPolicy(name string, cfg *config.Config) *Policy {
	breaker := NewCircuitBreaker(
		name,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange = func(service string, state CircuitState) {
		observability.UpdateCircuitBreakerState(service, int(state))
	}

	return &Policy{
		Timeout: cfg.CollaboratorCallTimeout(),
		Retry: &RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		Breaker: breaker,
	}
}

// Do runs fn under the policy. A nil policy runs fn once with ctx unchanged.
func (p *Policy) Do(ctx context.Context, fn RetryableFunc) error {
	if p == nil {
		return fn(ctx)
	}

	attempt := func(ctx context.Context) error {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		if p.Breaker == nil {
			return fn(callCtx)
		}
		return p.Breaker.Call(func() error { return fn(callCtx) })
	}

	err := Retry(ctx, attempt, p.Retry, func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			return false
		}
		return IsRetryableNetworkError(err)
	})
	if err != nil && p.Breaker != nil && !errors.Is(err, ErrCircuitOpen) {
		observability.IncrementCircuitBreakerFailures(p.Breaker.Name())
	}
	return err
}

// Healthy reports whether the circuit currently lets calls through
func (p *Policy) Healthy(context.Context) (bool, error) {
	if p == nil || p.Breaker == nil {
		return true, nil
	}
	if state := p.Breaker.GetState(); state == StateOpen {
		return false, ErrCircuitOpen
	}
	return true, nil
}
