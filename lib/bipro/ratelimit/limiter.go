// Package ratelimit implements the per-carrier adaptive token bucket of
// spec §4.5: AIMD width adjustment driven by throttle/transient feedback
// from the transfer client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// Defaults per spec §4.5.
const (
	DefaultMin   = 0.5
	DefaultMax   = 10.0
	DefaultAdd   = 0.25
	DefaultProbe = 10 * time.Second
)

// Feedback is the outcome a caller reports after a request, used to drive
// the AIMD adjustment.
type Feedback int

const (
	// FeedbackOK means the request succeeded with no adverse signal.
	FeedbackOK Feedback = iota
	// FeedbackThrottled means the carrier returned 429 or an explicit
	// BiPRO throttle fault.
	FeedbackThrottled
	// FeedbackTransient means the carrier returned 5xx or a transport
	// error.
	FeedbackTransient
)

// Limiter is a single carrier's adaptive token bucket. Width (tokens per
// second) and burst are equal, per spec §4.5. Zero value is not usable;
// use New.
type Limiter struct {
	clock clockwork.Clock

	min, max, add float64
	probe         time.Duration

	mu          sync.Mutex
	width       float64
	tokens      float64
	lastRefill  time.Time
	resumeAt    time.Time // set on throttle; Acquire blocks until this instant
	lastProbeAt time.Time
	dirty       bool // true if any adverse feedback arrived since lastProbeAt
}

// Option configures a Limiter at construction.
type Option func(*Limiter)

// WithClock overrides the time source (tests use clockwork.NewFakeClock()).
func WithClock(c clockwork.Clock) Option { return func(l *Limiter) { l.clock = c } }

// WithBounds overrides the default min/max/additive-increase parameters.
func WithBounds(min, max, add float64, probe time.Duration) Option {
	return func(l *Limiter) { l.min, l.max, l.add, l.probe = min, max, add, probe }
}

// New builds a Limiter starting at the maximum width (optimistic start;
// AIMD will back off on real feedback).
func New(opts ...Option) *Limiter {
	l := &Limiter{
		clock: clockwork.NewRealClock(),
		min:   DefaultMin,
		max:   DefaultMax,
		add:   DefaultAdd,
		probe: DefaultProbe,
	}
	for _, o := range opts {
		o(l)
	}
	l.width = l.max
	l.tokens = l.width
	now := l.clock.Now()
	l.lastRefill = now
	l.lastProbeAt = now
	return l
}

// Width returns the current bucket width (tokens/second), observable per
// spec §4.5 / §9.
func (l *Limiter) Width() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.width
}

func (l *Limiter) refillLocked() {
	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.width
	if l.tokens > l.width {
		l.tokens = l.width
	}
	l.lastRefill = now

	if now.Sub(l.lastProbeAt) >= l.probe {
		if !l.dirty {
			l.width = min(l.max, l.width+l.add)
			if l.tokens > l.width {
				l.tokens = l.width
			}
		}
		l.dirty = false
		l.lastProbeAt = now
	}
}

// Acquire blocks until a token is available (honouring any throttle
// resume deadline), or returns early if ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		now := l.clock.Now()
		if now.Before(l.resumeAt) {
			wait := l.resumeAt.Sub(now)
			l.mu.Unlock()
			select {
			case <-l.clock.After(wait):
				continue
			case <-ctx.Done():
				return trace.Wrap(ctx.Err())
			}
		}
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		deficit := 1 - l.tokens
		wait := time.Duration(deficit/l.width*float64(time.Second)) + time.Millisecond
		l.mu.Unlock()
		select {
		case <-l.clock.After(wait):
			continue
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		}
	}
}

// Report feeds a request outcome into the AIMD controller. retryAfter is
// honoured (falling back to a 30s default) when fb is FeedbackThrottled.
func (l *Limiter) Report(fb Feedback, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()

	switch fb {
	case FeedbackThrottled:
		l.width = max(l.min, l.width*0.5)
		if retryAfter <= 0 {
			retryAfter = 30 * time.Second
		}
		resume := l.clock.Now().Add(retryAfter)
		if resume.After(l.resumeAt) {
			l.resumeAt = resume
		}
		l.dirty = true
	case FeedbackTransient:
		l.width = max(l.min, l.width*0.75)
		l.dirty = true
	case FeedbackOK:
		// no-op: additive increase happens passively during refill once a
		// full probe interval passes with dirty==false.
	}
	if l.tokens > l.width {
		l.tokens = l.width
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
