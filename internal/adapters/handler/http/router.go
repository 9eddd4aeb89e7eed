package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Votes     *VoteHandler
	Codes     *CodeHandler
	Elections *ElectionHandler
	Incidents *IncidentHandler
	Users     *UserHandler
	Live      *LiveHandler
}

type RouterConfig struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Users          ports.UserService
	DB             Pinger
}

func NewHandler(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(Instrument)
	r.Use(CORS(cfg.AllowedOrigins))

	r.Get("/healthz", healthz(cfg.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator(cfg.JWTSecret, cfg.Users))

		r.Get("/me", h.Users.GetMe)
		r.Get("/me/ballots", h.Votes.MyBallots)
		r.Get("/live", h.Live.Serve)

		r.Route("/elections", func(r chi.Router) {
			r.Get("/", h.Elections.ListForVoter)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Elections.GetForVoter)
				r.Get("/results", h.Elections.PublicResults)
				r.Post("/code", h.Codes.Issue)
				r.Post("/code/resend", h.Codes.Resend)
				r.Post("/code/verify", h.Codes.Verify)
				r.Post("/votes", h.Votes.Cast)
				r.Get("/votes/me", h.Votes.MyBallot)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Route("/elections", func(r chi.Router) {
				r.Post("/", h.Elections.Create)
				r.Get("/", h.Elections.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Elections.Get)
					r.Patch("/", h.Elections.Update)
					r.Delete("/", h.Elections.Delete)
					r.Post("/suspend", h.Elections.Suspend)
					r.Post("/resume", h.Elections.Resume)
					r.Post("/extend", h.Elections.Extend)
					r.Post("/release-results", h.Elections.ReleaseResults)
					r.Get("/results", h.Elections.AdminResults)
				})
			})

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", h.Incidents.List)
				r.Get("/statistics", h.Incidents.Statistics)
				r.Post("/bulk-resolve", h.Incidents.BulkResolve)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Incidents.Get)
					r.Post("/resolve", h.Incidents.Resolve)
					r.Post("/unresolve", h.Incidents.Unresolve)
					r.Patch("/notes", h.Incidents.Annotate)
				})
			})
		})
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "unconfigured"})
			return
		}
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}
