package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/move-it/website/internal/api"
	"github.com/move-it/website/internal/identity"
	"github.com/move-it/website/internal/middleware"
	"github.com/move-it/website/internal/store"
	"github.com/move-it/website/web"
)

type routerDeps struct {
	repo           store.Repository
	limiter        *middleware.RateLimiter
	health         *api.HealthHandler
	chat           *api.ChatHandler
	ws             http.Handler
	allowedOrigins []string
	isDev          bool
}

// newRouter mounts the API, the chat websocket and the embedded site.
// Only the API and websocket routes carry a visitor identity; static
// assets are served without touching the store.
func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(d.allowedOrigins))

	// Public routes.
	d.health.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(d.repo, d.isDev))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.limiter))
			d.chat.RegisterRoutes(r)
		})

		// Submissions are limited per connection.
		r.Get("/ws/chat", d.ws.ServeHTTP)
	})

	// Serve embedded site.
	r.Handle("/*", web.SiteHandler())

	return r
}
