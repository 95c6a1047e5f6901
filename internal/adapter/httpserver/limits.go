package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why an upgrade was refused. It doubles as the
// rejection metric label.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits gates WebSocket upgrades: a token bucket per IP, a cap on
// concurrent connections per IP and a cap on the whole instance.
type ConnectionLimits struct {
	max     int64
	current atomic.Int64

	mu      sync.Mutex
	perIP   map[string]int
	maxPer  int
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	sweepAt time.Time
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	bucketIdleTTL    = 10 * time.Minute
	bucketSweepEvery = 5 * time.Minute
)

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		max:     globalMax,
		perIP:   make(map[string]int),
		maxPer:  perIPMax,
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(connectionsPerSecond),
		burst:   burst,
		now:     time.Now,
		sweepAt: time.Now().Add(bucketSweepEvery),
	}
}

// Acquire reserves a slot for ip. On success the caller must Release it.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}
	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}
	if l.perIP[ip] >= l.maxPer {
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

// Release returns the slot taken by a successful Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.perIP[ip]; n > 0 {
		if n == 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = n - 1
		}
		l.current.Add(-1)
	}
}

// acquireGlobal must be called with mu held; current is atomic only so
// Current can be read without the lock.
func (l *ConnectionLimits) acquireGlobal() bool {
	if l.current.Load() >= l.max {
		return false
	}
	l.current.Add(1)
	return true
}

// allowRate must be called with mu held.
func (l *ConnectionLimits) allowRate(ip string) bool {
	now := l.now()
	if now.After(l.sweepAt) {
		cutoff := now.Add(-bucketIdleTTL)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.sweepAt = now.Add(bucketSweepEvery)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Current returns the number of connections holding a slot.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

// CountFor returns the number of connections held by ip.
func (l *ConnectionLimits) CountFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// Snapshot summarizes limiter state for /debug/groups.
func (l *ConnectionLimits) Snapshot() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"connections":     l.current.Load(),
		"max_connections": l.max,
		"unique_ips":      len(l.perIP),
		"rate_buckets":    len(l.buckets),
	}
}
