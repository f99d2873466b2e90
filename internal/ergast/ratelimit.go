package ergast

import (
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Outcome classifies the result of a single API request for backoff purposes.
type Outcome int

const (
	// OutcomeSuccess indicates a 2xx response.
	OutcomeSuccess Outcome = iota

	// OutcomeRateLimited indicates a 429 response (the server says slow down).
	OutcomeRateLimited

	// OutcomeTransientError indicates a 5xx response or a connection failure
	// (the network hiccuped).
	OutcomeTransientError
)

// Backoff defaults. The upstream API enforces an aggressive per-client budget,
// so the sustained request rate is paced well below one request per second.
const (
	defaultBaseDelay           = 1500 * time.Millisecond
	defaultMaxBackoff          = 20 * time.Second
	defaultMaxTransientBackoff = 10 * time.Second
	defaultMaxBaseDelay        = 8 * time.Second
	defaultMaxRetries          = 6

	// baseDelayCreepFactor raises the sustained base delay on every 429
	// backoff so the limiter adapts to a shrinking server-side budget.
	baseDelayCreepFactor = 1.25

	maxJitter = 250 * time.Millisecond
)

type (
	// LimiterConfig holds the backoff bounds for a Limiter.
	// Zero fields fall back to package defaults.
	LimiterConfig struct {
		// BaseDelay is the delay restored after every successful request
		// and the sustained inter-request spacing.
		BaseDelay time.Duration

		// MaxBackoff caps the doubled delay after rate-limited responses.
		MaxBackoff time.Duration

		// MaxTransientBackoff caps the doubled delay after transient errors.
		// Kept independent (and smaller) than MaxBackoff: a network hiccup
		// does not warrant the same pause as an explicit 429.
		MaxTransientBackoff time.Duration

		// MaxBaseDelay bounds the adaptive creep of BaseDelay under
		// sustained rate limiting.
		MaxBaseDelay time.Duration

		// MaxRetries is the per-unit retry ceiling consulted by ShouldAbort.
		MaxRetries int
	}

	// Limiter tracks the adaptive backoff state shared by all outbound
	// requests. It is mutated only by the Fetcher after each request
	// outcome; the pipeline issues requests one at a time, so no locking
	// is required.
	Limiter struct {
		cfg LimiterConfig

		baseDelay time.Duration
		delay     time.Duration
		streak    int

		// pace enforces the sustained inter-request spacing beneath the
		// adaptive backoff, replacing manual last-request bookkeeping.
		pace *rate.Limiter

		// jitter returns a random duration in [0, max). Injectable so
		// backoff tests stay deterministic.
		jitter func(max time.Duration) time.Duration
	}
)

// withDefaults fills zero config fields with package defaults.
func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}

	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}

	if c.MaxTransientBackoff <= 0 {
		c.MaxTransientBackoff = defaultMaxTransientBackoff
	}

	if c.MaxBaseDelay <= 0 {
		c.MaxBaseDelay = defaultMaxBaseDelay
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	return c
}

// NewLimiter creates an adaptive rate limiter with the given bounds.
func NewLimiter(cfg LimiterConfig) *Limiter {
	cfg = cfg.withDefaults()

	return &Limiter{
		cfg:       cfg,
		baseDelay: cfg.BaseDelay,
		delay:     cfg.BaseDelay,
		pace:      rate.NewLimiter(rate.Every(cfg.BaseDelay), 1),
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}

			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// NextDelay records a request outcome and returns the delay to apply before
// the next attempt.
//
// Semantics per outcome:
//   - OutcomeSuccess: delay resets to the base delay and the failure streak
//     clears; the returned value is the base spacing.
//   - OutcomeRateLimited: the delay doubles (capped at MaxBackoff) and the
//     streak increments. When the server supplied an explicit Retry-After
//     duration, that duration wins over the doubled value when larger and
//     raises the sustained base delay to at least its value. Without one,
//     the base delay creeps up 25% (capped at MaxBaseDelay) so the whole
//     run slows down, not just the next attempt.
//   - OutcomeTransientError: same doubling, but capped at the independent
//     (smaller) MaxTransientBackoff, and without base-delay creep.
//
// The returned delay includes a small jitter except on success.
func (l *Limiter) NextDelay(outcome Outcome, retryAfter time.Duration) time.Duration {
	switch outcome {
	case OutcomeSuccess:
		l.delay = l.baseDelay
		l.streak = 0

		return l.delay

	case OutcomeRateLimited:
		l.streak++

		l.delay = minDuration(l.delay*2, l.cfg.MaxBackoff)
		if retryAfter > l.delay {
			l.delay = minDuration(retryAfter, l.cfg.MaxBackoff)
		}

		if retryAfter > 0 {
			if retryAfter > l.baseDelay {
				l.baseDelay = minDuration(retryAfter, l.cfg.MaxBaseDelay)
			}
		} else {
			crept := time.Duration(float64(l.baseDelay) * baseDelayCreepFactor)
			l.baseDelay = minDuration(crept, l.cfg.MaxBaseDelay)
		}

		l.pace.SetLimit(rate.Every(l.baseDelay))

	case OutcomeTransientError:
		l.streak++
		l.delay = minDuration(l.delay*2, l.cfg.MaxTransientBackoff)
	}

	return l.delay + l.jitter(minDuration(maxJitter, l.baseDelay))
}

// ShouldAbort reports whether the failure streak has exhausted the configured
// retry budget. When true, the Fetcher surfaces a fatal error for the unit
// instead of looping forever.
func (l *Limiter) ShouldAbort(streak int) bool {
	return streak >= l.cfg.MaxRetries
}

// Streak returns the current consecutive-failure count.
func (l *Limiter) Streak() int {
	return l.streak
}

// Delay returns the current backoff delay without recording an outcome.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// BaseDelay returns the current (possibly crept) sustained base delay.
func (l *Limiter) BaseDelay() time.Duration {
	return l.baseDelay
}

// Pace returns the token bucket that enforces sustained request spacing.
func (l *Limiter) Pace() *rate.Limiter {
	return l.pace
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
