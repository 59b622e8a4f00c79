package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(s Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", s)
	b.now = clock.Now
	return b, clock
}

var errUpstream = errors.New("upstream down")

func fail() error {
	return errUpstream
}

func succeed() error {
	return nil
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 2, Timeout: time.Minute})

	assert.ErrorIs(t, b.Execute(fail), errUpstream)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errUpstream)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 2})

	_ = b.Execute(fail)
	require.NoError(t, b.Execute(succeed))
	_ = b.Execute(fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Second})

	_ = b.Execute(fail)
	require.Equal(t, Open, b.State())

	clock.Advance(10 * time.Second)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Execute(succeed))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(succeed))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, Timeout: time.Second})

	_ = b.Execute(fail)
	clock.Advance(time.Second)
	_ = b.Execute(fail)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SingleTrialInHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, Timeout: time.Second})

	_ = b.Execute(fail)
	clock.Advance(time.Second)

	err := b.Execute(func() error {
		return b.Execute(succeed)
	})
	assert.ErrorIs(t, err, ErrTrialInFlight)
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 1})

	err := b.Execute(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(Settings{
		FailureThreshold: 1,
		Timeout:          time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(fail)
	clock.Advance(time.Second)
	_ = b.Execute(succeed)

	assert.Equal(t, []string{
		"test:closed->open",
		"test:open->half-open",
		"test:half-open->closed",
	}, transitions)
}
