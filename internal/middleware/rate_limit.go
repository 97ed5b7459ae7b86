package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type window struct {
	count int
	ends  time.Time
}

// IPRateLimiter is a fixed-window counter per client IP. The table is
// bounded: when it is full, expired windows are swept first and, if that is
// not enough, the entry closest to expiry is evicted.
type IPRateLimiter struct {
	mu         sync.Mutex
	limit      int
	period     time.Duration
	maxEntries int
	windows    map[string]window
	now        func() time.Time
}

func NewIPRateLimiter(limit int, period time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, period, 10000)
}

func NewIPRateLimiterWithMaxEntries(limit int, period time.Duration, maxEntries int) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &IPRateLimiter{
		limit:      limit,
		period:     period,
		maxEntries: maxEntries,
		windows:    map[string]window{},
		now:        time.Now,
	}
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "リクエストが多すぎます。しばらくしてから再度お試しください"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientIP(r.RemoteAddr)) {
				writeError(w, r, http.StatusTooManyRequests, "rate_limited", message, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *IPRateLimiter) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.windows[ip]
	if !ok || entry.ends.Before(now) {
		if !ok && len(rl.windows) >= rl.maxEntries {
			rl.evict(now)
		}
		entry = window{ends: now.Add(rl.period)}
	}
	entry.count++
	rl.windows[ip] = entry
	return entry.count <= rl.limit
}

func (rl *IPRateLimiter) evict(now time.Time) {
	for ip, entry := range rl.windows {
		if entry.ends.Before(now) {
			delete(rl.windows, ip)
		}
	}
	if len(rl.windows) < rl.maxEntries {
		return
	}
	var oldest string
	var oldestEnds time.Time
	for ip, entry := range rl.windows {
		if oldest == "" || entry.ends.Before(oldestEnds) {
			oldest, oldestEnds = ip, entry.ends
		}
	}
	delete(rl.windows, oldest)
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
