// Package middleware provides HTTP middleware for Stockroom.
// ratelimit.go implements a per-IP token bucket limiter on
// golang.org/x/time/rate. Used on the credential endpoints.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an IP's bucket is kept after its last request.
const limiterIdleTTL = 10 * time.Minute

// ipLimiter is the bucket of a single client IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns middleware that allows each IP maxRequests within the
// given window, refilling evenly. Returns 429 with Retry-After when
// exceeded.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	if maxRequests < 1 {
		maxRequests = 1
	}
	every := rate.Every(window / time.Duration(maxRequests))

	var (
		mu        sync.Mutex
		limiters  = make(map[string]*ipLimiter)
		lastSweep = time.Now()
	)

	// get returns the IP's limiter, sweeping idle entries at most once a
	// minute so the map does not grow without bound.
	get := func(ip string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if now.Sub(lastSweep) > time.Minute {
			for k, l := range limiters {
				if now.Sub(l.lastSeen) > limiterIdleTTL {
					delete(limiters, k)
				}
			}
			lastSweep = now
		}

		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(every, maxRequests)}
			limiters[ip] = l
		}
		l.lastSeen = now
		return l.limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			r := get(c.RealIP(), now).ReserveN(now, 1)
			if !r.OK() {
				return tooManyRequests(c, window)
			}
			if delay := r.DelayFrom(now); delay > 0 {
				// Over budget: give the token back and reject.
				r.CancelAt(now)
				return tooManyRequests(c, delay)
			}
			return next(c)
		}
	}
}

// tooManyRequests writes the 429 response.
func tooManyRequests(c echo.Context, retryAfter time.Duration) error {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return c.JSON(http.StatusTooManyRequests, map[string]string{
		"error":   "Too Many Requests",
		"message": "Rate limit exceeded. Please try again later.",
	})
}
