// Package ratelimit provides adaptive per-host rate limiting for HTTP clients.
// A limiter slows down when the remote answers 429 and speeds back up after a
// quiet period. It never retries anything itself.
//
// Example usage:
//
//	pool := ratelimit.NewPool(ratelimit.DefaultSettings())
//	lim := pool.Get("panel.example.com")
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
//	resp, err := client.Do(req)
//	lim.Observe(resp.StatusCode)
package ratelimit

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter
// =============================================================================

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. Thread-safe.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	cooldown  time.Duration
	lastError time.Time
}

// Settings configures limiters created by a Pool.
type Settings struct {
	Initial  rate.Limit    // starting requests per second
	Min      rate.Limit    // floor after repeated 429s
	Max      rate.Limit    // ceiling after repeated successes
	StepUp   rate.Limit    // added per success once the cooldown has passed
	StepDown float64       // multiplier applied on 429, e.g. 0.5
	Cooldown time.Duration // quiet period after a 429 before stepping up
}

// DefaultSettings returns conservative limits for a single panel host.
func DefaultSettings() Settings {
	return Settings{
		Initial:  5,
		Min:      1,
		Max:      20,
		StepUp:   1,
		StepDown: 0.5,
		Cooldown: 10 * time.Second,
	}
}

// NewAdaptiveLimiter creates an AdaptiveLimiter with the given configuration.
func NewAdaptiveLimiter(s Settings) *AdaptiveLimiter {
	if s.Min < 1 {
		s.Min = 1
	}
	if s.Initial < s.Min {
		s.Initial = s.Min
	}
	if s.Max < s.Initial {
		s.Max = s.Initial
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(s.Initial, maxInt(1, int(s.Initial))),
		minLimit: s.Min,
		maxLimit: s.Max,
		stepUp:   s.StepUp,
		stepDown: s.StepDown,
		cooldown: s.Cooldown,
	}
}

// Wait blocks until a token is available or the context is canceled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

// Observe feeds an HTTP status back into the limiter.
func (a *AdaptiveLimiter) Observe(status int) {
	switch {
	case status == http.StatusTooManyRequests:
		a.RateLimited()
	case status > 0 && status < 500:
		a.Success()
	}
}

// Success increases the rate after a successful request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.cooldown {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited reduces the rate after the server signalled overload.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjustLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
	log.Printf("[WARN] Panel rate limited, new limit %.2f rps", float64(a.limiter.Limit()))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// adjustLimit sets the limiter to a new rate, respecting min/max boundaries.
func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}

	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(maxInt(1, int(newLimit)))
	}
}

// =============================================================================
// Pool
// =============================================================================

// Pool hands out one limiter per key, created on first use.
type Pool struct {
	mu       sync.Mutex
	settings Settings
	limiters map[string]*AdaptiveLimiter
}

// NewPool returns an empty pool using s for new limiters.
func NewPool(s Settings) *Pool {
	return &Pool{settings: s, limiters: make(map[string]*AdaptiveLimiter)}
}

// Get returns the limiter for key.
func (p *Pool) Get(key string) *AdaptiveLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = NewAdaptiveLimiter(p.settings)
		p.limiters[key] = lim
	}
	return lim
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
