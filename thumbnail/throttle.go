package thumbnail

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultSingleInterval is the minimum spacing between ad-hoc generations.
const DefaultSingleInterval = time.Second

// Throttle spaces out ad-hoc thumbnail generations. A caller passing Wait
// holds the gate until its Reservation ends, so at most one ad-hoc
// generation runs at a time and the next one starts no earlier than interval
// after the last Generated outcome. Skipped work never restarts the window.
type Throttle struct {
	gate *semaphore.Weighted

	// mu guards the fields below; it is never held while sleeping.
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	busy     bool
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle with the given interval. A non-positive
// interval uses DefaultSingleInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultSingleInterval
	}
	return &Throttle{
		gate:     semaphore.NewWeighted(1),
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Interval returns the minimum spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Reservation is the right to run one ad-hoc generation. Exactly one of
// Generated or Release takes effect; later calls are no-ops.
type Reservation struct {
	t    *Throttle
	once sync.Once
}

// Generated restarts the window and lets the next waiter through.
func (r *Reservation) Generated() {
	r.once.Do(func() {
		r.t.mu.Lock()
		r.t.last = r.t.now()
		r.t.mu.Unlock()
		r.t.unlock()
	})
}

// Release lets the next waiter through without restarting the window.
func (r *Reservation) Release() {
	r.once.Do(r.t.unlock)
}

// Wait blocks until no other reservation is held and the interval since the
// last generation has elapsed. The caller must end the returned reservation.
func (t *Throttle) Wait(ctx context.Context) (*Reservation, error) {
	if err := t.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.busy = true
	remaining := t.remaining()
	t.mu.Unlock()

	err := ctx.Err()
	if remaining > 0 {
		err = t.sleep(ctx, remaining)
	}
	if err != nil {
		t.unlock()
		return nil, err
	}
	return &Reservation{t: t}, nil
}

// TryAcquire reports, without blocking, whether a generation could start now.
func (t *Throttle) TryAcquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.busy && t.remaining() <= 0
}

func (t *Throttle) unlock() {
	t.mu.Lock()
	t.busy = false
	t.mu.Unlock()
	t.gate.Release(1)
}

// remaining is called with t.mu held.
func (t *Throttle) remaining() time.Duration {
	if t.last.IsZero() {
		return 0
	}
	return t.interval - t.now().Sub(t.last)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
