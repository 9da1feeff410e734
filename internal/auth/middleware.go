package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// RequireSession redirects requests without a staff session to the login
// page. Public pages and /api/ routes pass through; the API has its own
// check in RequireAPI. Sessions of removed staff are rejected.
func RequireSession(sessions *SessionStore, staff *StaffStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) || strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		email, err := sessions.Validate(r)
		if err != nil || !staff.IsAuthorized(email) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
	})
}

// RateLimiter counts failed API key attempts per client address.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	attempts map[string][]time.Time
	now      func() time.Time
}

// NewRateLimiter allows up to limit failures per window for each address.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:   window,
		limit:    limit,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Limited reports whether addr has used up its failures.
func (rl *RateLimiter) Limited(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.pruneLocked(addr)) >= rl.limit
}

// Fail records a failed attempt for addr.
func (rl *RateLimiter) Fail(addr string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.attempts[addr] = append(rl.pruneLocked(addr), rl.now())
}

func (rl *RateLimiter) pruneLocked(addr string) []time.Time {
	cutoff := rl.now().Add(-rl.window)
	valid := rl.attempts[addr][:0]
	for _, t := range rl.attempts[addr] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, addr)
		return nil
	}
	rl.attempts[addr] = valid
	return valid
}

// RequireAPI authenticates /api/ routes with either a staff session cookie
// (the dashboard) or a bearer API key (the CLI). The staff email is put in
// the request context. Returns 401 for missing or invalid credentials and
// 429 when an address keeps presenting bad keys. Key management routes
// only accept a session. Credentials of removed staff get 401.
func RequireAPI(keys *APIKeyStore, sessions *SessionStore, staff *StaffStore, limiter *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if email, err := sessions.Validate(r); err == nil && staff.IsAuthorized(email) {
			next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
			return
		}
		if isAPIKeyManagementPath(r.URL.Path) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		addr := clientAddr(r)
		if limiter.Limited(addr) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		email, err := keys.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if email == "" {
			limiter.Fail(addr)
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		if !staff.IsAuthorized(email) {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
	})
}

// RequireAdmin rejects requests whose staff email is not the administrator.
// It must run after RequireSession or RequireAPI.
func RequireAdmin(staff *StaffStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !staff.IsAdmin(EmailFrom(r.Context())) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}

func isPublicPath(path string) bool {
	switch path {
	case "/", "/register", "/register/employee", "/login", "/logout", "/health", "/metrics",
		"/cli/auth", "/cli/auth/complete",
		"/passkey/login/begin", "/passkey/login/finish":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

func isAPIKeyManagementPath(path string) bool {
	return path == "/api/keys" || strings.HasPrefix(path, "/api/keys/")
}
