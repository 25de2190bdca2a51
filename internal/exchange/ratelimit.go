// ratelimit.go rate-limits outgoing REST calls by endpoint category, the
// same three-bucket shape as the teacher's hand-rolled TokenBucket (order
// placement, cancellation, and book reads each get their own budget) but
// built on golang.org/x/time/rate instead of a hand-rolled token bucket.
package exchange

import (
	"golang.org/x/time/rate"
)

// RateLimiter groups rate limiters by endpoint category. Each trading
// operation must call the appropriate limiter's Wait before making the HTTP
// request.
type RateLimiter struct {
	Order  *rate.Limiter // order placement
	Cancel *rate.Limiter // cancellation
	Book   *rate.Limiter // orderbook / account reads
}

// NewRateLimiter creates rate limiters with the given burst capacity and
// per-second refill rate per category, mirroring the teacher's tuned
// capacities: order placement gets the highest burst, cancels slightly
// less, reads the least.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:  rate.NewLimiter(rate.Limit(50), 350),
		Cancel: rate.NewLimiter(rate.Limit(30), 300),
		Book:   rate.NewLimiter(rate.Limit(15), 150),
	}
}
