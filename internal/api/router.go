package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type RouterOpts struct {
	Auth          *AuthHandler
	Donations     *DonationsHandler
	Claims        *ClaimsHandler
	Notifications *NotificationsHandler

	JWTSecret          string
	Users              UserLoader
	Limiter            RateLimiter
	RateLimitPerMinute int

	// SwaggerPath points at the served OpenAPI document; empty disables /docs.
	SwaggerPath string
}

func NewRouter(opts RouterOpts) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	requireAuth := RequireAuth(opts.JWTSecret, opts.Users)
	throttle := RateLimit(opts.Limiter, opts.RateLimitPerMinute)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", opts.Auth.Register)
		r.Post("/auth/login", opts.Auth.Login)

		// Browsing open donations needs no account.
		r.Get("/donations", opts.Donations.ListAvailable)
		r.Get("/donations/nearby", opts.Donations.Nearby)
		r.Get("/donations/{id}", opts.Donations.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", opts.Auth.Me)
			r.Get("/my-donations", opts.Donations.ListMine)
			r.Get("/claims", opts.Claims.ListMine)
			r.Get("/notifications", opts.Notifications.List)
			r.Get("/notifications/unread-count", opts.Notifications.UnreadCount)

			r.Group(func(r chi.Router) {
				r.Use(throttle)

				r.Put("/me", opts.Auth.UpdateProfile)

				r.Post("/donations", opts.Donations.Create)
				r.Put("/donations/{id}", opts.Donations.Update)
				r.Delete("/donations/{id}", opts.Donations.Delete)
				r.Post("/donations/{id}/claim", opts.Donations.Claim)

				r.Post("/claims/{id}/pickup", opts.Claims.Pickup)
				r.Post("/claims/{id}/deliver", opts.Claims.Deliver)
				r.Post("/claims/{id}/cancel", opts.Claims.Cancel)

				r.Post("/notifications/{id}/read", opts.Notifications.MarkRead)
				r.Post("/notifications/read-all", opts.Notifications.MarkAllRead)
			})
		})
	})

	if opts.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.SwaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.SwaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}
