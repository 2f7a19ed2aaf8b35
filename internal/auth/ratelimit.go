/*
Package auth
File: ratelimit.go
Description: Per-IP limiters for the credential endpoints, built on
golang.org/x/time/rate. Excess attempts fail closed.
*/

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter tracks one token bucket per remote IP. Entries idle past the
// retention window are dropped by an opportunistic prune on access.
type IPLimiter struct {
	perMinute int

	mu       sync.Mutex
	buckets  map[string]*ipBucket
	lastSeen time.Time
}

type ipBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

const ipRetention = 10 * time.Minute

func NewIPLimiter(perMinute int) *IPLimiter {
	return &IPLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*ipBucket),
	}
}

// Allow reports whether another attempt from ip fits inside the
// sliding-minute budget.
func (l *IPLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSeen) > ipRetention {
		for key, b := range l.buckets {
			if now.Sub(b.seen) > ipRetention {
				delete(l.buckets, key)
			}
		}
	}
	l.lastSeen = now

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.limiter.Allow()
}
