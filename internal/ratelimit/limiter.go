// Package ratelimit provides the shared token bucket behind the rate limiting layer.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidCapacity is returned when a bucket is configured without room for a request.
	ErrInvalidCapacity = errors.New("rate limit capacity must be positive")

	// ErrInvalidPeriod is returned when the refill period is not positive.
	ErrInvalidPeriod = errors.New("rate limit period must be positive")
)

// Limiter is a token bucket shared by every request passing through one layer instance.
// It starts full and refills continuously at capacity/period tokens per second, never
// exceeding capacity. Withdrawal and refill happen in one critical section.
type Limiter struct {
	capacity int
	period   time.Duration
	bucket   *rate.Limiter
	now      func() time.Time
	rejected prometheus.Counter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithRegisterer registers the rejection counter with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Limiter) {
		l.rejected = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Total requests rejected by the token bucket",
		})
	}
}

// New creates a bucket admitting capacity requests per period.
func New(capacity int, period time.Duration, opts ...Option) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}

	l := &Limiter{
		capacity: capacity,
		period:   period,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rejected == nil {
		l.rejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Total requests rejected by the token bucket",
		})
	}

	perSecond := rate.Limit(float64(capacity) / period.Seconds())
	l.bucket = rate.NewLimiter(perSecond, capacity)
	// Anchor the refill clock at construction.
	l.bucket.SetLimitAt(l.now(), perSecond)

	return l, nil
}

// PerSecond admits n requests per second.
func PerSecond(n int, opts ...Option) (*Limiter, error) {
	return New(n, time.Second, opts...)
}

// PerMinute admits n requests per minute.
func PerMinute(n int, opts ...Option) (*Limiter, error) {
	return New(n, time.Minute, opts...)
}

// Allow withdraws one token, reporting false when the bucket is empty.
func (l *Limiter) Allow() bool {
	if l.bucket.AllowN(l.now(), 1) {
		return true
	}
	l.rejected.Inc()
	return false
}

// Capacity is the maximum number of tokens.
func (l *Limiter) Capacity() int { return l.capacity }

// Period is the time taken to refill an empty bucket.
func (l *Limiter) Period() time.Duration { return l.period }

// Tokens returns the tokens currently available, clamped to [0, capacity].
func (l *Limiter) Tokens() float64 {
	return math.Max(0, math.Min(l.bucket.TokensAt(l.now()), float64(l.capacity)))
}

// Remaining returns the whole tokens currently available.
func (l *Limiter) Remaining() int {
	return int(math.Floor(l.Tokens()))
}

// RetryAfter returns how long until one token is available.
func (l *Limiter) RetryAfter() time.Duration {
	missing := 1 - l.Tokens()
	if missing <= 0 {
		return 0
	}
	perToken := float64(l.period) / float64(l.capacity)
	return time.Duration(math.Ceil(missing * perToken))
}
