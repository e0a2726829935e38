package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-api/utils"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter is a per-client fixed-window counter. Each client gets max
// requests per window; the count resets when the window elapses.
type RateLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	trustProxy bool
	clients    map[string]*window
	now        func() time.Time
	lastSweep  time.Time
}

func NewRateLimiter(max int, per time.Duration, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		max:        max,
		window:     per,
		trustProxy: trustProxy,
		clients:    make(map[string]*window),
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
}

// Allow counts one request for key and returns whether it is within the
// limit, the requests left and when the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	allowed, remaining, reset, _ := rl.allow(key)
	return allowed, remaining, reset
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Time, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	w, ok := rl.clients[key]
	if !ok || !now.Before(w.start.Add(rl.window)) {
		w = &window{start: now}
		rl.clients[key] = w
	}
	w.count++
	reset := w.start.Add(rl.window)
	if w.count > rl.max {
		return false, 0, reset, now
	}
	return true, rl.max - w.count, reset, now
}

// sweep drops expired windows at most once per window
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.clients {
		if !now.Before(w.start.Add(rl.window)) {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset, now := rl.allow(rl.clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !allowed {
			retry := int(reset.Sub(now).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			utils.WriteError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
