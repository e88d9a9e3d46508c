package transform

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted fails with errs in order, then succeeds.
type scripted struct {
	errs  []error
	calls atomic.Int32
}

func (s *scripted) Transform(_ context.Context, text string, _ Params) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return text, nil
}

var errUnavailable = &Error{Type: ErrorTypeProvider, Message: "upstream down", StatusCode: 503}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Second}, nil)
	b.now = func() time.Time { return now }

	next := &scripted{errs: []error{errUnavailable, errUnavailable}}
	tr := b.Middleware(next)
	ctx := context.Background()

	for range 2 {
		_, err := tr.Transform(ctx, "x", Params{})
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, b.State())

	_, err := tr.Transform(ctx, "x", Params{})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), next.calls.Load(), "open circuit fails fast")
	assert.Equal(t, ErrorTypeProvider, Classify(err).Type)

	now = now.Add(2 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	out, err := tr.Transform(ctx, "x", Params{})
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second}, nil)
	b.now = func() time.Time { return now }

	tr := b.Middleware(&scripted{errs: []error{errUnavailable, errUnavailable}})
	_, _ = tr.Transform(context.Background(), "x", Params{})
	require.Equal(t, BreakerOpen, b.State())

	now = now.Add(2 * time.Second)
	_, err := tr.Transform(context.Background(), "x", Params{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen, "the half-open call reached the provider")
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_IgnoresNonProviderFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1}, nil)
	tr := b.Middleware(&scripted{errs: []error{
		&Error{Type: ErrorTypeAuth, Message: "bad key"},
		context.Canceled,
		ErrEmptyResponse,
	}})
	for range 3 {
		_, err := tr.Transform(context.Background(), "x", Params{})
		require.Error(t, err)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_DisabledPassesThrough(t *testing.T) {
	next := &scripted{}
	tr := NewBreakerMiddleware(BreakerConfig{}, nil)(next)
	assert.Same(t, Transformer(next), tr)
}

func TestRetryMiddleware(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int32
	}{
		{"success first try", nil, false, 1},
		{"unavailable then ok", []error{errUnavailable}, false, 2},
		{"rate limited then ok", []error{&Error{Type: ErrorTypeRateLimit, Message: "slow down"}}, false, 2},
		{"gives up after max attempts", []error{errUnavailable, errUnavailable, errUnavailable}, true, 3},
		{"timeout is not retried", []error{&Error{Type: ErrorTypeTimeout, Message: "late"}}, true, 1},
		{"auth is not retried", []error{&Error{Type: ErrorTypeAuth, Message: "bad key"}}, true, 1},
		{"open circuit is not retried", []error{&Error{Type: ErrorTypeProvider, Message: "open", Cause: ErrCircuitOpen}}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scripted{errs: tt.errs}
			_, err := NewRetryMiddleware(cfg, nil)(next).Transform(context.Background(), "x", Params{})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, next.calls.Load())
		})
	}
}

func TestRetryMiddleware_StopsOnCancel(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialInterval: time.Hour, MaxInterval: time.Hour}
	next := &scripted{errs: []error{errUnavailable, errUnavailable}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewRetryMiddleware(cfg, nil)(next).Transform(ctx, "x", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialInterval: 100 * time.Millisecond, MaxInterval: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, time.Duration(0), cfg.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 350*time.Millisecond, cfg.Backoff(3), "capped at MaxInterval")

	cfg.UseJitter = true
	for range 20 {
		d := cfg.Backoff(2)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}
