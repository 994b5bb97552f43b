package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/httputil"
	"tgcord/internal/middleware"
	"tgcord/internal/models"
	"tgcord/internal/service"
	"tgcord/pkg/telegram"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	maxWebhookBodyBytes    = 1 << 20
	webhookRateLimit       = 120
	webhookRateLimitWindow = time.Minute
	healthCheckTimeout     = 3 * time.Second
)

// MappingStats is what the HTTP surface reads from the mapping store
type MappingStats interface {
	Ping(ctx context.Context) error
	CountMappings(ctx context.Context) (total, deleted int64, err error)
}

type ServerOptions struct {
	Config        models.ServerConfig
	WebhookSecret string
	// AcceptUpdates mounts POST /webhook/telegram.
	AcceptUpdates bool
	Sink          service.EventSink
	Store         MappingStats
	Verbose       bool
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	opts    ServerOptions
	limiter *RateLimiter
	server  *http.Server
}

func NewServer(opts ServerOptions, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		opts:    opts,
		limiter: NewRateLimiter(webhookRateLimit, webhookRateLimitWindow),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	if s.opts.Verbose {
		s.router.Use(middleware.DetailedLogging(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	if s.opts.AcceptUpdates {
		telegramRoute := s.router.PathPrefix("/webhook/telegram").Subrouter()
		telegramRoute.Use(middleware.Webhook(s.logger, "telegram"))
		telegramRoute.HandleFunc("", s.handleTelegramWebhook()).Methods(http.MethodPost)
	}
}

func (s *Server) Start() error {
	cfg := s.opts.Config
	readTimeout := cfg.ReadTimeoutSec
	if readTimeout <= 0 {
		readTimeout = constants.DefaultServerReadTimeoutSec
	}
	writeTimeout := cfg.WriteTimeoutSec
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultServerWriteTimeoutSec
	}

	s.server = &http.Server{
		Addr:         serverAddr(cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := s.opts.Store.Ping(ctx); err != nil {
				s.logger.WithError(err).Warn("Health check failed: mapping store unreachable")
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// handleTelegramWebhook accepts one Bot API update. A full dispatcher
// answers 503 so Telegram redelivers the update later.
func (s *Server) handleTelegramWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(httputil.GetClientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if err := verifySecretToken(r, s.opts.WebhookSecret); err != nil {
			s.logger.WithError(err).WithField(service.LogFieldRemoteIP, httputil.GetClientIP(r)).Warn("Rejected Telegram webhook")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
		var update telegram.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "invalid update payload", http.StatusBadRequest)
			return
		}

		ev := update.Event()
		if ev == nil {
			s.logger.WithField(service.LogFieldUpdateID, update.UpdateID).Debug("Ignoring update without a message")
			w.WriteHeader(http.StatusOK)
			return
		}

		if !s.opts.Sink.Dispatch(ev) {
			http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
