// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"hackerdigest/bounce"
	"hackerdigest/pkg/digest"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// Subscriptions is the lifecycle surface the handlers call.
type Subscriptions interface {
	Request(ctx context.Context, email string, strategy digest.Strategy) error
	Verify(ctx context.Context, email string, token digest.Token) (*digest.Subscriber, error)
	ByToken(ctx context.Context, token digest.Token) (*digest.Subscriber, error)
	RemoveByToken(ctx context.Context, token digest.Token) (bool, error)
}

// Events applies delivery notifications.
type Events interface {
	Handle(ctx context.Context, n *bounce.Notification) error
}

// Runner triggers the daily digest run.
type Runner interface {
	Run(ctx context.Context, date time.Time) error
}

// Captcha verifies subscribe-form challenge tokens.
type Captcha interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Server handles HTTP requests.
type Server struct {
	subs        Subscriptions
	events      Events
	runner      Runner
	captcha     Captcha
	strategies  digest.StrategySet
	logger      *slog.Logger
	rateLimiter *rateLimiter
}

// Config holds server configuration.
type Config struct {
	Subscriptions Subscriptions
	Events        Events
	Runner        Runner
	Captcha       Captcha
	Strategies    digest.StrategySet
	Logger        *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		subs:        cfg.Subscriptions,
		events:      cfg.Events,
		runner:      cfg.Runner,
		captcha:     cfg.Captcha,
		strategies:  cfg.Strategies,
		logger:      cfg.Logger,
		rateLimiter: newRateLimiter(),
	}
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/digestz", s.handleDigest)
	mux.HandleFunc("/api/subscribe", s.handleSubscribe)
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// ListenAndServe starts the server with timeouts to prevent resource
// exhaustion.
func (s *Server) ListenAndServe(port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// handleDigest runs the daily digest. Triggered by the scheduler; the run
// date is today at the 05:00 UTC cutoff.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Digest run triggered")

	now := time.Now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 5, 0, 0, 0, time.UTC)
	if err := s.runner.Run(r.Context(), date); err != nil {
		s.logger.Error("Digest run failed", "error", err)
		http.Error(w, "Digest run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"completed"}`); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
