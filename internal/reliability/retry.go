package reliability

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a message that asked for a retry is redelivered, and after
// what delay. attempt counts the redeliveries already made, starting at 0.
type RetryPolicy interface {
	// ShouldRetry reports whether redelivery number attempt+1 is allowed, and its delay
	ShouldRetry(attempt int) (bool, time.Duration)
	// MaxRetries is the number of redeliveries a message gets before it is dead-lettered
	MaxRetries() int
	// NextDelay is the wait before redelivery number attempt+1
	NextDelay(attempt int) time.Duration
}

// DefaultJitter spreads backoff delays over ±15% so retried messages do not return in step
const DefaultJitter = 0.15

// ExponentialBackoff waits Base before the first redelivery and Factor times longer before
// each one after it, never more than Cap. Jitter is the fraction each delay is spread by;
// zero keeps delays exact.
type ExponentialBackoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	Limit  int
	Jitter float64
}

// NewExponentialBackoff creates a jittered backoff allowing limit redeliveries
func NewExponentialBackoff(base, ceiling time.Duration, factor float64, limit int) *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   base,
		Cap:    ceiling,
		Factor: factor,
		Limit:  limit,
		Jitter: DefaultJitter,
	}
}

// DefaultRetryPolicy is used by consumers that were not given a policy: three redeliveries
// after roughly 1s, 2s and 4s
func DefaultRetryPolicy() RetryPolicy {
	return NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 3)
}

func (e *ExponentialBackoff) ShouldRetry(attempt int) (bool, time.Duration) {
	if attempt >= e.Limit {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

func (e *ExponentialBackoff) MaxRetries() int {
	return e.Limit
}

func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := math.Min(float64(e.Base)*math.Pow(e.Factor, float64(attempt)), float64(e.Cap))
	if e.Jitter > 0 {
		// uniform in [1-Jitter, 1+Jitter)
		delay *= 1 + e.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(delay)
}

// FixedDelay waits Delay before each of at most Limit redeliveries
type FixedDelay struct {
	Delay time.Duration
	Limit int
}

// NewFixedDelay creates a constant-delay policy allowing limit redeliveries
func NewFixedDelay(delay time.Duration, limit int) *FixedDelay {
	return &FixedDelay{Delay: delay, Limit: limit}
}

func (f *FixedDelay) ShouldRetry(attempt int) (bool, time.Duration) {
	if attempt >= f.Limit {
		return false, 0
	}
	return true, f.Delay
}

func (f *FixedDelay) MaxRetries() int {
	return f.Limit
}

func (f *FixedDelay) NextDelay(int) time.Duration {
	return f.Delay
}
