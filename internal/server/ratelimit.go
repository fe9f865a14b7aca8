package server

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiters hands out one token-bucket limiter per user identity.
// Entries are created lazily and never expire; the identity space is
// bounded by the authenticated user base plus hashed anonymous
// addresses.
type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newUserLimiters(perUserRPS float64, burst int) *userLimiters {
	return &userLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(perUserRPS),
		burst:    burst,
	}
}

// allow reports whether userID may proceed now.
func (u *userLimiters) allow(userID string) bool {
	u.mu.Lock()
	lim, ok := u.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(u.rps, u.burst)
		u.limiters[userID] = lim
	}
	u.mu.Unlock()
	return lim.Allow()
}

// retryAfter is the interval until the next token, rounded up to whole
// seconds for the Retry-After header.
func (u *userLimiters) retryAfter() time.Duration {
	if u.rps <= 0 {
		return time.Second
	}
	secs := math.Ceil(1 / float64(u.rps))
	return time.Duration(secs) * time.Second
}
