package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do without calling through while the breaker is
// open.
var ErrOpen = errors.New("circuit open")

// RateLimitError represents a provider rate limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker blocks requests for a cooldown after threshold consecutive
// rate limit failures. Other errors do not count. Once tripped it stays
// tripped until a call succeeds, so each outage reports one open and one
// close.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
	tripped   bool
	notify    []func(open bool)
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Notify registers fn to hear when the breaker trips and recovers. It is
// called without the breaker's lock held.
func (c *CircuitBreaker) Notify(fn func(open bool)) {
	c.mu.Lock()
	c.notify = append(c.notify, fn)
	c.mu.Unlock()
}

func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !time.Now().Before(c.openUntil)
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	recovered := c.tripped
	c.failures = 0
	c.openUntil = time.Time{}
	c.tripped = false
	fns := c.notify
	c.mu.Unlock()
	if recovered {
		for _, fn := range fns {
			fn(false)
		}
	}
}

func (c *CircuitBreaker) OnError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	c.failures++
	tripped := false
	if c.failures >= c.threshold {
		c.openUntil = time.Now().Add(c.cooldown)
		tripped = !c.tripped
		c.tripped = true
	}
	fns := c.notify
	c.mu.Unlock()
	if tripped {
		for _, fn := range fns {
			fn(true)
		}
	}
}

// Do calls fn unless the breaker is open and records its outcome.
func (c *CircuitBreaker) Do(fn func() error) error {
	if !c.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		c.OnError(err)
		return err
	}
	c.OnSuccess()
	return nil
}

// Failures reports consecutive rate limit failures since the last success.
func (c *CircuitBreaker) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
