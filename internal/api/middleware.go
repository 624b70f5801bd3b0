package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codemavricks/zerohunger/internal/auth"
	"github.com/codemavricks/zerohunger/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// UserLoader resolves the token subject to a fresh user record so role and
// impact changes take effect without waiting for token expiry.
type UserLoader interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
}

// RateLimiter is the per-key counting limiter backing write throttling.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

func RequireAuth(secret string, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := auth.ValidateToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			u, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "unknown user")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser retrieves the authenticated user from the request context.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// RateLimit throttles mutating requests per authenticated user. A nil
// limiter or a limiter failure lets the request through: the database, not
// redis, is the availability boundary.
func RateLimit(limiter RateLimiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			u := CurrentUser(r.Context())
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := fmt.Sprintf("rl:user:%d", u.ID)
			ok, _, err := limiter.Allow(r.Context(), key, int64(perMinute), time.Minute)
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	})
}
