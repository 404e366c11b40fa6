// Package server exposes the read-only status surface over HTTP: agent
// listings, per-agent status and recovery reports, prometheus metrics, and
// push-subscription registration for escalation alerts.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/internal/coordinator"
	"github.com/johnhkchen/my-little-soda-sub002/internal/notify"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/clog"
)

type Server struct {
	server *http.Server

	env           *config.BaseEnv
	coordinator   *coordinator.Coordinator
	subscriptions notify.Repository
	registry      *prometheus.Registry
}

func NewServer(env *config.BaseEnv, c *coordinator.Coordinator, subs notify.Repository, reg *prometheus.Registry) *Server {
	return &Server{
		env:           env,
		coordinator:   c,
		subscriptions: subs,
		registry:      reg,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all incoming requests, so cancelling it on shutdown also
// cancels in-flight handlers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/healthz", &HealthChecker{})
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/api/", s.apiRouter())

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting status server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) apiRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/{agentID}/status", s.handleAgentStatus)
		r.Get("/agents/{agentID}/recovery", s.handleAgentRecovery)
		r.Post("/subscriptions", s.handleCreateSubscription)
		r.Delete("/subscriptions", s.handleDeleteSubscription)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.NotFound, "not found", nil))
	})
	return r
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, map[string]any{
		"agents": s.coordinator.Agents(),
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.coordinator.Status(chi.URLParam(r, "agentID"))
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, report)
}

func (s *Server) handleAgentRecovery(w http.ResponseWriter, r *http.Request) {
	report, err := s.coordinator.RecoveryReport(chi.URLParam(r, "agentID"))
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, report)
}

type subscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid subscription body", err))
		return
	}
	if req.Endpoint == "" {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil))
		return
	}

	sub := &notify.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		CreatedAt: time.Now(),
	}
	if err := s.subscriptions.Create(r.Context(), sub); err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil))
		return
	}
	if err := s.subscriptions.DeleteByEndpoint(r.Context(), endpoint); err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "deleted"})
}
