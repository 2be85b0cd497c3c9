package middleware

import (
	"net/http"
	"sync"
	"time"

	"app/internal/apierr"
	"app/internal/entitlement"
)

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter applies a per-user fixed window derived from the role's
// rate_limit_per_minute entitlement. Unauthenticated requests pass through;
// they are rejected by AuthMiddleware instead.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*rateWindow
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// sweep drops expired windows so the map stays bounded by active users.
// Callers must hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for id, w := range rl.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(rl.windows, id)
		}
	}
}

// Allow records one request for the user and reports whether it fits the
// limit. A limit of entitlement.Unlimited always allows.
func (rl *RateLimiter) Allow(userID string, limit int) bool {
	if limit == entitlement.Unlimited {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.sweep(now)
	w, ok := rl.windows[userID]
	if !ok || now.Sub(w.start) >= time.Minute {
		rl.windows[userID] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// Middleware limits requests per authenticated user by role entitlement. Must
// run after AuthMiddleware so the role claim is in context.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())
		if userID != "" {
			cfg := entitlement.ForRole(UserRole(r.Context()))
			if !rl.Allow(userID, cfg.RateLimitPerMin) {
				writeAuthError(w, apierr.CodeRateLimited, "Rate limit exceeded, retry later")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
