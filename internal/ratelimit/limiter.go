// Package ratelimit bounds how often the Worker Invoker may launch a
// subprocess for a given agent id, protecting the host from a runaway
// queue of tiny messages (spec §2 ambient stack; mirrors the teacher's
// internal/channels/ratelimit.go concern, here built on the real
// token-bucket library instead of a hand-rolled sliding window).
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedAgents caps the number of distinct limiter buckets kept alive,
// matching the teacher's maxTrackedKeys guard against unbounded growth.
const maxTrackedAgents = 4096

// Limiter hands out a per-agent-id token-bucket limiter, created lazily on
// first use. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// New returns a Limiter allowing rps launches per second per agent id, with
// burst allowed immediately.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a worker launch for agentID may proceed now.
func (l *Limiter) Allow(agentID string) bool {
	return l.bucket(agentID).Allow()
}

func (l *Limiter) bucket(agentID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[agentID]; ok {
		return b
	}
	if len(l.buckets) >= maxTrackedAgents {
		for k := range l.buckets {
			delete(l.buckets, k)
			break
		}
	}
	b := rate.NewLimiter(l.rps, l.burst)
	l.buckets[agentID] = b
	return b
}
