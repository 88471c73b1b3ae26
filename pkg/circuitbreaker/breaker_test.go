package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(clock *fakeClock, isFailure func(error) bool) *CircuitBreaker {
	return New("test", Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		IsFailure:        isFailure,
		now:              clock.now,
	})
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock, nil)
	boom := errors.New("503")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not call through")
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock, nil)
	boom := errors.New("timeout")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	require.Equal(t, StateOpen, cb.State())

	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().ConsecutiveFailures)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock, nil)
	boom := errors.New("timeout")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	clock.t = clock.t.Add(2 * time.Minute)

	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_IgnoresNonFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	badKey := errors.New("401")
	cb := newTestBreaker(clock, func(err error) bool { return !errors.Is(err, badKey) })

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return badKey }), badKey)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
