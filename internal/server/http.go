// Package server assembles the HTTP API: routes, middleware stack, and
// lifecycle.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	auditpkg "caresight/backend/internal/audit"
	"caresight/backend/internal/billing"
	"caresight/backend/internal/gate"
	"caresight/backend/internal/health"
	"caresight/backend/internal/server/handler"
	"caresight/backend/internal/server/middleware"
)

// Options carries the handlers and policies the server routes to.
type Options struct {
	Addr      string
	LoginPath string

	Auth      *handler.AuthHandler
	Resources *handler.ResourceHandler
	Webhook   *billing.WebhookHandler
	DevOTP    *handler.DevOTPHandler // nil unless dev OTP mode is enabled
	Health    *health.Handler

	Gate      *gate.Gate
	Validator middleware.SessionChecker
	Audit     *auditpkg.Emitter
}

// Server is the HTTP server for the auth and resource API.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds the route table and middleware stack and returns the server.
func New(opts Options, log zerolog.Logger) *Server {
	mux := http.NewServeMux()

	opts.Auth.RegisterRoutes(mux)
	opts.Health.RegisterRoutes(mux)
	if opts.Webhook != nil {
		opts.Webhook.RegisterRoutes(mux)
	}
	if opts.DevOTP != nil {
		opts.DevOTP.RegisterRoutes(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	gated := func(operationKey string, h http.HandlerFunc) http.Handler {
		return middleware.Gated(opts.Gate, operationKey, opts.Audit)(h)
	}
	mux.Handle("GET /v1/cameras", gated(OpCamerasList, opts.Resources.ListCameras))
	mux.Handle("GET /v1/cameras/{id}", gated(OpCamerasLiveView, opts.Resources.GetCamera))
	mux.Handle("GET /v1/sites", gated(OpSitesList, opts.Resources.ListSites))

	guard := middleware.SessionGuard(opts.Validator, opts.LoginPath)
	mux.Handle("GET /dashboard", guard(http.HandlerFunc(opts.Resources.Dashboard)))
	mux.Handle("GET /dashboard/", guard(http.HandlerFunc(opts.Resources.Dashboard)))
	mux.HandleFunc("GET "+opts.LoginPath, loginPage)

	root := middleware.Logging(log)(mux)
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed after
// Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// loginPage is the redirect target for guarded dashboard routes. The real
// product serves the SPA here; the API tells clients where to come back to.
func loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   "login_required",
		"redirect": r.URL.Query().Get("redirect"),
	})
}
