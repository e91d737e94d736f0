package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pdfchat/internal/transport/http/response"
)

// UserRateLimiter hands out one token bucket per authenticated user. Buckets
// idle for longer than the sweep interval are dropped.
type UserRateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[uint]*userBucket
	lastSweep time.Time
	now       func() time.Time
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdleTTL = 10 * time.Minute

func NewUserRateLimiter(perMinute int) *UserRateLimiter {
	if perMinute <= 0 {
		return &UserRateLimiter{limit: rate.Inf}
	}
	return &UserRateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: make(map[uint]*userBucket),
		now:     time.Now,
	}
}

func (l *UserRateLimiter) Allow(userID uint) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > bucketIdleTTL {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit must run after AuthJWT.
func RateLimit(l *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
			c.Abort()
			return
		}
		if !l.Allow(userID) {
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
