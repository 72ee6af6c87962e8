package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDown     = errors.New("connection reset")
	errNotFound = errors.New("not found")
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	return newBreaker("test", settings, c.now), c
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func outcome(success bool) func() error {
	return func() error {
		if success {
			return nil
		}
		return errDown
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(7).String())
}

func TestBreakerTrips(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool
		want     State
	}{
		{"successes keep it closed", []bool{true, true, true}, StateClosed},
		{"too few failures", []bool{false, false}, StateClosed},
		{"interleaved success resets streak", []bool{false, false, true, false, false}, StateClosed},
		{"consecutive failures open it", []bool{true, false, false, false}, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(3)})
			for _, ok := range tt.outcomes {
				_ = b.Do(outcome(ok))
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestOpenBreakerRejects(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(1)})
	_ = b.Do(outcome(false))

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, called)
	assert.False(t, IsRejection(errDown))
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	b, clk := newTestBreaker(Settings{MaxRequests: 2, Timeout: 10 * time.Second, ReadyToTrip: tripAfter(1)})
	_ = b.Do(outcome(false))
	require.Equal(t, StateOpen, b.State())

	clk.advance(9 * time.Second)
	assert.Equal(t, StateOpen, b.State())
	clk.advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(outcome(true)))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(outcome(true)))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})
	_ = b.Do(outcome(false))
	clk.advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Do(outcome(false))
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenLimitsRequests(t *testing.T) {
	b, clk := newTestBreaker(Settings{MaxRequests: 1, Timeout: time.Second, ReadyToTrip: tripAfter(1)})
	_ = b.Do(outcome(false))
	clk.advance(time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(func() error { <-release; return nil })
	}()

	// Wait until the probe has been admitted.
	require.Eventually(t, func() bool { return b.Counts().Requests == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.Do(outcome(true)), ErrTooManyRequests)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestIntervalResetsCounts(t *testing.T) {
	b, clk := newTestBreaker(Settings{Interval: time.Minute, ReadyToTrip: tripAfter(3)})
	_ = b.Do(outcome(false))
	_ = b.Do(outcome(false))
	assert.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	clk.advance(time.Minute)
	_ = b.Do(outcome(false))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{Requests: 1, TotalFailures: 1, ConsecutiveFailures: 1}, b.Counts())
}

func TestStaleOutcomeIgnored(t *testing.T) {
	b, clk := newTestBreaker(Settings{Interval: time.Minute, ReadyToTrip: tripAfter(1)})

	// The interval rolls over while the call is in flight, so its failure
	// belongs to an old generation.
	err := b.Do(func() error {
		clk.advance(time.Minute)
		return errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().TotalFailures)
}

func TestStateChangeHook(t *testing.T) {
	var transitions []string
	b, clk := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(1),
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Do(outcome(false))
	clk.advance(time.Second)
	_ = b.Do(outcome(true))

	assert.Equal(t, []string{
		"test:closed->open",
		"test:open->half-open",
		"test:half-open->closed",
	}, transitions)
}

func TestIsSuccessful(t *testing.T) {
	b, _ := newTestBreaker(Settings{
		ReadyToTrip: tripAfter(1),
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
	})

	err := b.Do(func() error { return errNotFound })
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, StateClosed, b.State())

	_ = b.Do(outcome(false))
	assert.Equal(t, StateOpen, b.State())
}

func TestPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)
}

func TestExecute(t *testing.T) {
	b := New("typed", Settings{ReadyToTrip: tripAfter(1)})

	n, err := Execute(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, _ = Execute(b, func() (int, error) { return 0, errDown })
	n, err = Execute(b, func() (int, error) { return 7, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, n)
}

func TestGroupPerKey(t *testing.T) {
	group := NewGroup(Settings{ReadyToTrip: tripAfter(1)})

	assert.Same(t, group.For("a.example"), group.For("a.example"))

	_ = group.For("a.example").Do(outcome(false))
	require.NoError(t, group.For("b.example").Do(outcome(true)))

	states := group.States()
	assert.Equal(t, StateOpen, states["a.example"])
	assert.Equal(t, StateClosed, states["b.example"])
}
