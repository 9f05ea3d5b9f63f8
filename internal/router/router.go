package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"studio-backend/internal/access"
	"studio-backend/internal/handlers"
	"studio-backend/internal/metrics"
	"studio-backend/internal/middleware"
	"studio-backend/internal/websocket"
)

type Deps struct {
	JWTAuth        *middleware.JWTAuth
	Policy         *access.Policy
	AuthLimiter    *middleware.RateLimiter
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AuthHandler    *handlers.AuthHandler
	SessionHandler *handlers.SessionHandler
	PackageHandler *handlers.PackageHandler
	MemberHandler  *handlers.MemberHandler
	Hub            *websocket.Hub
	FrontendURL    string
}

func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	if d.Metrics != nil {
		r.Use(middleware.Instrument(d.Metrics))
	}
	r.Use(middleware.CORS(d.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	can := func(c access.Capability) func(http.Handler) http.Handler {
		return middleware.Require(d.Policy, c)
	}

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if d.AuthLimiter != nil {
					r.Use(d.AuthLimiter.Middleware)
				}
				r.Post("/login", d.AuthHandler.Login)
				r.Post("/refresh", d.AuthHandler.Refresh)
			})

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(d.JWTAuth.Middleware)
				r.Post("/logout", d.AuthHandler.Logout)
			})
		})

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Get("/", d.SessionHandler.Search)
			r.Get("/search", d.SessionHandler.Search)
			r.Get("/{id}", d.SessionHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(can(access.SessionsWrite))
				r.Post("/", d.SessionHandler.Create)
				r.Put("/{id}", d.SessionHandler.Update)
				r.Post("/{id}/start", d.SessionHandler.Start)
				r.Post("/{id}/complete", d.SessionHandler.Complete)
			})

			r.With(can(access.SessionsDelete)).Delete("/{id}", d.SessionHandler.Delete)
		})

		// ──── Package Routes ────
		r.Route("/packages", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Get("/expiring", d.PackageHandler.Expiring)
			r.Get("/{id}", d.PackageHandler.Get)
			r.Get("/{id}/usages", d.PackageHandler.Usages)

			r.Group(func(r chi.Router) {
				r.Use(can(access.PackagesWrite))
				r.Post("/", d.PackageHandler.Create)
				r.Post("/{id}/use", d.PackageHandler.Use)
				r.Post("/{id}/extend", d.PackageHandler.Extend)
				r.Post("/{id}/deactivate", d.PackageHandler.Deactivate)
			})
		})

		// ──── Member Routes ────
		r.Route("/members", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.With(can(access.MembersWrite)).Post("/", d.MemberHandler.Create)
			r.Get("/{id}", d.MemberHandler.Get)
			r.Get("/{id}/packages", d.MemberHandler.Packages)
			r.Get("/{id}/sessions/upcoming", d.MemberHandler.UpcomingSessions)
		})

		// ──── WebSocket ────
		if d.Hub != nil {
			r.Get("/ws", d.Hub.HandleWebSocket)
		}
	})

	return r
}
