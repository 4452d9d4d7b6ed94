package resources

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
)

var rateLog = logger.New("resources:ratelimit")

// HostLimiter enforces the per-host outbound request budget: 60 requests per
// rolling 60 seconds. Over-budget requests fail immediately rather than
// queue, so callers can degrade instead of stalling a dispatch.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates an empty limiter; per-host state is created lazily.
func NewHostLimiter() *HostLimiter {
	return &HostLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		// Refill of one token per second with a burst of the full window
		// budget is equivalent to the 60-per-minute budget and keeps Allow
		// non-blocking.
		lim = rate.NewLimiter(rate.Limit(float64(constants.RateLimitRequests)/constants.RateLimitWindow.Seconds()), constants.RateLimitRequests)
		h.limiters[host] = lim
	}
	return lim
}

// Allow consumes one token for host, returning ErrRateLimited when the
// budget is exhausted.
func (h *HostLimiter) Allow(host string) error {
	if h == nil {
		return nil
	}
	if !h.limiterFor(host).Allow() {
		rateLog.Printf("Rate limit exceeded for host: %s", host)
		return ErrRateLimited
	}
	return nil
}
