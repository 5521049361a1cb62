package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(maxFailures int) *Policy {
	return &Policy{
		Timeout: 50 * time.Millisecond,
		Retry:   fastRetryConfig(3),
		Breaker: NewCircuitBreaker("test", maxFailures, time.Minute),
	}
}

func TestPolicy_RetriesTemporaryStatus(t *testing.T) {
	p := testPolicy(10)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{Service: "groq", StatusCode: http.StatusBadGateway}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicy_DoesNotRetryClientErrors(t *testing.T) {
	p := testPolicy(10)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Service: "groq", StatusCode: http.StatusBadRequest}
	})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 1, calls)
}

func TestPolicy_AppliesPerCallTimeout(t *testing.T) {
	p := testPolicy(10)
	p.Retry = fastRetryConfig(1)

	err := p.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicy_OpenCircuitShortCircuits(t *testing.T) {
	p := testPolicy(1)
	p.Retry = fastRetryConfig(1)

	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("boom") })

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	healthy, hErr := p.Healthy(context.Background())
	assert.False(t, healthy)
	assert.ErrorIs(t, hErr, ErrCircuitOpen)
}

func TestPolicy_Nil(t *testing.T) {
	var p *Policy
	calls := 0
	require.NoError(t, p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestReconnect(t *testing.T) {
	cfg := &ReconnectConfig{MaxAttempts: 3, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}

	attempts := 0
	err := Reconnect(context.Background(), zerolog.Nop(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("dial failed")
		}
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	err = Reconnect(context.Background(), zerolog.Nop(), func(context.Context) error {
		return errors.New("dial failed")
	}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}
