package gossip

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedLimiters = 8192

// peerRateLimiter enforces a per-sender datagram budget so one noisy peer
// cannot monopolize the capture path. Limiters are keyed by sender address
// and dropped wholesale when the map grows past its bound.
type peerRateLimiter struct {
	mu       sync.Mutex
	perPeer  rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newPeerRateLimiter(msgsPerSec float64, burst int) *peerRateLimiter {
	if msgsPerSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(msgsPerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &peerRateLimiter{
		perPeer:  rate.Limit(msgsPerSec),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow reports whether a datagram from addr fits within that sender's budget.
// A nil limiter admits everything.
func (l *peerRateLimiter) allow(addr string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim := l.limiters[addr]
	if lim == nil {
		if len(l.limiters) >= maxTrackedLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.perPeer, l.burst)
		l.limiters[addr] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
