// Package timectrl drives periodic work, such as draining a coordinator's
// message queue, from a ticking clock.
package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnbounded is returned when an Accelerated controller is asked to run
// without a duration.
var ErrUnbounded = errors.New("timectrl: accelerated mode needs a positive duration")

// Clock reports the controller's current time.
type Clock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime waits one wall-clock Tick between steps.
	RealTime Mode = iota
	// Accelerated steps by Tick as fast as listeners return.
	Accelerated
)

// Listener is invoked once per tick with the controller's time after the
// step.
type Listener func(ctx context.Context, now time.Time)

// TimeController advances a clock by Tick and notifies listeners in
// registration order. Listeners run on the controller goroutine, so a slow
// listener delays the next tick rather than overlapping with it.
type TimeController struct {
	mu        sync.RWMutex
	start     time.Time
	tick      time.Duration
	mode      Mode
	now       time.Time
	ticks     int64
	listeners []Listener
}

var _ Clock = (*TimeController)(nil)

// NewTimeController constructs a controller. A non-positive tick is
// replaced by one second.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		start: start,
		tick:  tick,
		mode:  mode,
		now:   start,
	}
}

// Tick returns the step size.
func (tc *TimeController) Tick() time.Duration { return tc.tick }

// Now returns the controller's current time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.now
}

// SetTime moves the clock without firing listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.now = t
	tc.mu.Unlock()
}

// Ticks returns how many steps have completed.
func (tc *TimeController) Ticks() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers fn for every subsequent tick.
func (tc *TimeController) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Run steps the clock until duration has elapsed (duration <= 0 means
// forever) or ctx is cancelled. It returns nil when the duration is
// reached and ctx.Err() on cancellation.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	if tc.mode == Accelerated && duration <= 0 {
		return ErrUnbounded
	}

	tc.mu.Lock()
	tc.now = tc.start
	tc.ticks = 0
	tc.mu.Unlock()

	var wait <-chan time.Time
	if tc.mode == RealTime {
		ticker := time.NewTicker(tc.tick)
		defer ticker.Stop()
		wait = ticker.C
	}

	var elapsed time.Duration
	for duration <= 0 || elapsed < duration {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
		}

		elapsed += tc.tick
		tc.mu.Lock()
		tc.now = tc.now.Add(tc.tick)
		tc.ticks++
		now := tc.now
		listeners := tc.listeners
		tc.mu.Unlock()

		for _, fn := range listeners {
			fn(ctx, now)
		}
	}
	return nil
}

// Start runs the controller in a separate goroutine and returns a channel
// that receives Run's result and is then closed.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- tc.Run(ctx, duration)
	}()
	return done
}
