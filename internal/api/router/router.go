// Package router wires the portal gateway's HTTP routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osu-healthapp/portal-gateway/internal/http/handlers"
	httpmiddleware "github.com/osu-healthapp/portal-gateway/internal/http/middleware"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Auth          *handlers.AuthHandler
	Providers     *handlers.ProvidersHandler
	Appointments  *handlers.AppointmentsHandler
	Notes         *handlers.NotesHandler
	Admin         *handlers.AdminHandler
	HealthMetrics *handlers.HealthMetricsHandler
	Ops           *handlers.OpsHandler

	OpsAuthSecret      string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login/patient", cfg.Auth.LoginPatient)
			auth.Post("/login/staff", cfg.Auth.LoginStaff)
			auth.Post("/logout", cfg.Auth.Logout)
			auth.Post("/register", cfg.Auth.Register)
		})
		api.Get("/me", cfg.Auth.Me)

		api.Get("/providers", cfg.Providers.List)
		api.Get("/providers/{providerID}/availability", cfg.Appointments.Availability)

		api.Route("/appointments", func(appts chi.Router) {
			appts.Get("/mine", cfg.Appointments.Mine)
			appts.Post("/", cfg.Appointments.Create)
			appts.Route("/{appointmentID}", func(one chi.Router) {
				one.Delete("/", cfg.Appointments.Cancel)
				one.Get("/note", cfg.Notes.GetNote)
				one.Post("/note", cfg.Notes.SubmitNote)
				one.Get("/result", cfg.Notes.GetResult)
				one.Post("/result", cfg.Notes.SubmitResult)
			})
		})

		if cfg.HealthMetrics != nil {
			api.Route("/users/{userID}/health-metrics", func(hm chi.Router) {
				hm.Get("/", cfg.HealthMetrics.List)
				hm.Post("/", cfg.HealthMetrics.Create)
			})
		}

		if cfg.Admin != nil {
			api.Route("/admin", func(admin chi.Router) {
				admin.Get("/users", cfg.Admin.Users)
				admin.Post("/users/activate", cfg.Admin.Activate)
				admin.Post("/users/deactivate", cfg.Admin.Deactivate)
				admin.Post("/users/roles/add", cfg.Admin.AddRoles)
				admin.Post("/users/roles/remove", cfg.Admin.RemoveRoles)
			})
		}
	})

	// Operator endpoints, never reachable with a patient or staff session.
	if cfg.Ops != nil && cfg.OpsAuthSecret != "" {
		r.Route("/ops", func(ops chi.Router) {
			ops.Use(httpmiddleware.OpsJWT(cfg.OpsAuthSecret))
			ops.Post("/identity-cache/purge", cfg.Ops.PurgeIdentity)
		})
	}

	return r
}
