package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fidus-platform/fidus/internal/metrics"
)

// NewRouter builds the route tree. POST /api/v1/snapshots/generate requires the
// bearer key when adminAPIKey is set.
func NewRouter(h *Handler, adminAPIKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/pnl", func(r chi.Router) {
			r.Get("/admin", h.GetAdminView)
			r.Get("/clients/{clientID}", h.GetClientPnL)
			r.Get("/tiers/{tier}", h.GetTierPnL)
			r.Get("/funds/{fund}", h.GetFundPnL)
			r.Get("/managers/{managerID}", h.GetManagerPnL)
		})

		if h.gap != nil {
			r.Get("/funds/gap", h.GetFundGap)
			r.Get("/funds/{fund}/obligation", h.GetFundObligation)
		}

		if h.accounts != nil {
			r.Get("/accounts/{account}/analytics", h.GetAccountAnalytics)
			r.Get("/accounts/{account}/risk", h.GetAccountRisk)
		}

		r.Get("/snapshots/latest", h.GetLatestSnapshot)
		r.Get("/snapshots/{date}", h.GetSnapshotByDate)
		r.Get("/snapshots", h.ListSnapshots)

		generate := http.Handler(http.HandlerFunc(h.GenerateSnapshot))
		if adminAPIKey != "" {
			generate = requireAuth(adminAPIKey, generate)
		}
		r.Method(http.MethodPost, "/snapshots/generate", generate)
	})

	return r
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, h *Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(h, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
