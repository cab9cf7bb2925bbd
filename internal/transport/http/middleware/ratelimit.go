package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nomina/internal/platform/apperror"
	"nomina/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type rateBucket struct {
	count int
	reset time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	now     func() time.Time
	clients map[string]*rateBucket
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func withRateClock(now func() time.Time) RateLimitOption {
	return func(rl *rateLimiter) { rl.now = now }
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r, nil) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit throttles period lifecycle mutations per actor
// at half the base limit. A rejected request names the operation and period
// it was throttled on. Other routes pass through untouched.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	mutationLimit := max(baseLimit/2, 1)
	sensitiveByActor := newRateLimiter(mutationLimit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(sensitiveByActor)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m, ok := periodMutationOf(r)
			if ok && !sensitiveByActor.enforce(w, r, &m) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.OrganizationID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			value := strings.TrimSpace(parts[0])
			if value != "" {
				return value
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		now:     time.Now,
		clients: map[string]*rateBucket{},
	}
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request, m *periodMutation) bool {
	if rl.limit <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	now := rl.now()

	rl.mu.Lock()
	bucket, ok := rl.clients[key]
	if !ok || now.After(bucket.reset) {
		bucket = &rateBucket{reset: now.Add(rl.window)}
		rl.clients[key] = bucket
	}
	bucket.count++
	remaining := rl.limit - bucket.count
	resetIn := durationSeconds(bucket.reset.Sub(now))
	overLimit := bucket.count > rl.limit
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", itoa(max(remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", itoa(resetIn))
	if !overLimit {
		return true
	}

	retryAfter := max(resetIn, 1)
	w.Header().Set("Retry-After", itoa(retryAfter))
	attrs := []any{"key", key, "path", r.URL.Path, "method", r.Method, "limit", rl.limit, "retry_after_sec", retryAfter}
	if m == nil {
		slog.WarnContext(r.Context(), "rate limit exceeded", attrs...)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}

	attrs = append(attrs, "operation", m.operation, "period_id", m.periodID)
	slog.WarnContext(r.Context(), "payroll mutation throttled", attrs...)
	api.FailWithDetails(w, http.StatusTooManyRequests, "rate_limited",
		"too many payroll mutations, retry in "+itoa(retryAfter)+"s",
		[]apperror.Detail{m.detail()}, GetRequestID(r.Context()))
	return false
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return 1
	}
	return seconds
}

// periodMutation is a throttled write against payroll period state.
type periodMutation struct {
	operation string
	periodID  string
}

func (m periodMutation) detail() apperror.Detail {
	if m.periodID == "" {
		return apperror.Detail{Field: "operation", Reason: m.operation + " is rate limited"}
	}
	return apperror.Detail{Field: "periodId", Reason: m.operation + " on period " + m.periodID + " is rate limited"}
}

var periodOperations = map[string]string{
	"run":               "run",
	"close":             "close",
	"reopen":            "reopen",
	"recalculate/apply": "recalculate",
}

func periodMutationOf(r *http.Request) (periodMutation, bool) {
	if r == nil {
		return periodMutation{}, false
	}
	switch strings.ToUpper(strings.TrimSpace(r.Method)) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return periodMutation{}, false
	}

	path := normalizedAPIPath(r.URL.Path)
	if path == "/payroll/benefits/accruals" {
		return periodMutation{operation: "accrue"}, true
	}
	rest, ok := strings.CutPrefix(path, "/payroll/periods/")
	if !ok {
		return periodMutation{}, false
	}
	periodID, action, ok := strings.Cut(rest, "/")
	if !ok || periodID == "" {
		return periodMutation{}, false
	}
	op, ok := periodOperations[action]
	if !ok {
		return periodMutation{}, false
	}
	return periodMutation{operation: op, periodID: periodID}, true
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimSpace(path)
	if strings.HasPrefix(cleaned, "/api/v1") {
		cleaned = strings.TrimPrefix(cleaned, "/api/v1")
	}
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
