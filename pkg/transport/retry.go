package transport

import "time"

// RetryPolicy bounds how often a failed relay send is attempted again. The
// delay is a pure function of the attempt count so callers can schedule
// retries without owning any timer state.
type RetryPolicy struct {
	// MaxAttempts counts the first try as attempt 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// Multiplier scales the delay per further attempt; 1.0 means a fixed
	// interval.
	Multiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  1.0,
	}
}

// Delay returns the wait before the given attempt (2-based: there is no delay
// before the first). Attempts beyond MaxAttempts return a negative duration,
// meaning "stop".
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	if attempt > p.MaxAttempts {
		return -1
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}
