package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultWindow is the trailing window the call budget applies to.
	DefaultWindow = 60 * time.Second
	// DefaultMargin is added to every computed wait so the oldest call has
	// surely left the window when the caller resumes.
	DefaultMargin = 500 * time.Millisecond
)

// Clock abstracts time so tests can run the limiter without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitFunc is called each time Admit has to suspend the caller.
type WaitFunc func(wait time.Duration, inWindow int)

// Limiter admits at most limit calls in any trailing window. It keeps the
// admission instants of the current window, oldest first.
//
// A Limiter is meant to be shared by everything that spends the same
// external quota; Admit serializes callers, so a caller suspended for the
// window also holds back the callers queued behind it.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	margin time.Duration
	clock  Clock
	onWait WaitFunc
	stamps []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithWindow overrides the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithMargin overrides the safety margin added to computed waits.
func WithMargin(d time.Duration) Option {
	return func(l *Limiter) { l.margin = d }
}

// WithWaitFunc registers a callback invoked before every suspension.
func WithWaitFunc(fn WaitFunc) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// New creates a Limiter allowing perWindow calls per window (one minute
// unless overridden). A non-positive perWindow disables limiting.
func New(perWindow int, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  perWindow,
		window: DefaultWindow,
		margin: DefaultMargin,
		clock:  realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit blocks until one more call would not exceed the budget, then
// records the admission. It only fails if ctx ends while waiting; with a
// background context it never returns an error.
func (l *Limiter) Admit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return nil
	}

	now := l.clock.Now()
	l.purge(now)

	if len(l.stamps) >= l.limit {
		wait := l.window - now.Sub(l.stamps[0]) + l.margin
		if wait > 0 {
			if l.onWait != nil {
				l.onWait(wait, len(l.stamps))
			}
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.stamps = append(l.stamps, l.clock.Now())
	return nil
}

// inWindow reports how many admissions fall inside the current window. It
// waits for the lock, so it blocks while Admit is suspended.
func (l *Limiter) inWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.clock.Now())
	return len(l.stamps)
}

// purge drops admissions at or before now-window. Stamps are appended in
// clock order, so the survivors are a suffix.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
