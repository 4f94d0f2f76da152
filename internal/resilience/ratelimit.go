package resilience

import "golang.org/x/time/rate"

// NewLimiter builds a token-bucket rate limiter admitting rps requests per
// second with a burst of burst, the same shape the resource loader uses to
// throttle outbound fetches against third-party sources.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
