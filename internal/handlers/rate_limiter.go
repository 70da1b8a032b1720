package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// rateLimiter is a fixed-window counter keyed by shopper.
type rateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

// newRateLimiter returns nil when limiting is disabled.
func newRateLimiter(limit int, window time.Duration, clock func() time.Time) *rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &rateLimiter{limit: limit, window: window, clock: clock, windows: make(map[string]rateWindow)}
}

// allow reports whether key may proceed and, if not, how long until its window resets.
func (l *rateLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.windows[key]
	if !ok || !now.Before(entry.reset) {
		l.windows[key] = rateWindow{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.windows[key] = entry
	return true, 0
}

func (l *rateLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.windows {
		if !now.Before(entry.reset) {
			delete(l.windows, key)
		}
	}
}

// middleware throttles per authenticated shopper; mount it after the auth middleware.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "anonymous"
		if actor, ok := actorFrom(r.Context()); ok {
			key = actor.UserID
		}
		if ok, wait := l.allow(key); !ok {
			seconds := int(wait.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many checkout attempts, please wait", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
