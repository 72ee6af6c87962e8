package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{StateClosed: "closed", StateHalfOpen: "half-open", StateOpen: "open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings configures a breaker. Zero fields take the defaults applied by
// New.
type Settings struct {
	// MaxRequests admitted while half-open; that many successes close it.
	MaxRequests uint32
	// Interval clears the counts of a closed breaker periodically.
	Interval time.Duration
	// Timeout is how long a breaker stays open.
	Timeout time.Duration
	// ReadyToTrip decides, after each failure while closed, whether to open.
	ReadyToTrip func(Counts) bool
	// OnStateChange observes transitions. It runs with the breaker locked
	// and must not call back into it.
	OnStateChange func(name string, from, to State)
	// IsSuccessful classifies an error. Defaults to err == nil.
	IsSuccessful func(error) bool
}

func (s Settings) withDefaults() Settings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 {
		s.Timeout = time.Minute
	}
	if s.ReadyToTrip == nil {
		s.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	return s
}

// Counts are the outcomes seen in the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker guards calls to one upstream. Every state change or count reset
// starts a new generation; outcomes reported for an older generation are
// ignored.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	// deadline is when a closed breaker resets its counts or an open one
	// becomes half-open. Zero while half-open.
	deadline time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	return newBreaker(name, settings, time.Now)
}

func newBreaker(name string, settings Settings, now func() time.Time) *Breaker {
	b := &Breaker{name: name, settings: settings.withDefaults(), now: now}
	b.deadline = now().Add(b.settings.Interval)
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the state as of now.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.now())
	return b.state
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits it. A panic in fn counts as a failure
// and is re-raised.
func (b *Breaker) Do(fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			b.report(generation, false)
		}
	}()

	err = fn()
	completed = true
	b.report(generation, b.settings.IsSuccessful(err))
	return err
}

// Execute is Do for calls that return a value.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var result T
	err := b.Do(func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// IsRejection reports whether err came from the breaker rather than the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) report(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if generation != b.generation {
		return
	}

	if success {
		b.counts.success()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	if b.state == StateHalfOpen || (b.state == StateClosed && b.settings.ReadyToTrip(b.counts)) {
		b.transition(StateOpen, now)
	}
}

// advance applies time based changes: the closed interval reset and the
// open to half-open timeout.
func (b *Breaker) advance(now time.Time) {
	if b.deadline.IsZero() || now.Before(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.newGeneration()
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.transition(StateHalfOpen, now)
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.newGeneration()

	switch to {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) newGeneration() {
	b.generation++
	b.counts = Counts{}
}
