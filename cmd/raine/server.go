package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"raine/internal/auth"
	"raine/internal/database"
	"raine/internal/httputil"
	"raine/internal/middleware"
	"raine/internal/models"
	"raine/internal/service"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Services groups the operations exposed over HTTP.
type Services struct {
	Accounts  *service.AccountService
	Messages  service.MessageHandler
	Callables *service.CallableService
	Billing   *service.BillingService
}

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	cfg       *models.Config
	services  Services
	db        *database.Database
	verifier  auth.Verifier
	throttle  *middleware.IPRateLimiter
	server    *http.Server
	maxBodyKB int64
}

func NewServer(cfg *models.Config, services Services, db *database.Database, verifier auth.Verifier, throttle *middleware.IPRateLimiter, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		cfg:       cfg,
		services:  services,
		db:        db,
		verifier:  verifier,
		throttle:  throttle,
		maxBodyKB: int64(cfg.Server.MaxRequestBodyKB),
	}
	if s.maxBodyKB <= 0 {
		s.maxBodyKB = 64
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	if s.throttle != nil {
		s.router.Use(s.throttle.Middleware)
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Method checks for the billing webhook happen in the handler so that
	// non-POST requests get a plain 405 body.
	s.router.HandleFunc("/webhooks/revenuecat", s.handleRevenueCatWebhook())

	events := s.router.PathPrefix("/internal/events").Subrouter()
	events.Use(middleware.RequireEventSecret(s.cfg.Events.Secret, s.logger))
	events.HandleFunc("/user-created", s.handleUserCreated()).Methods(http.MethodPost)
	events.HandleFunc("/user-deleted", s.handleUserDeleted()).Methods(http.MethodPost)
	events.HandleFunc("/message-created", s.handleMessageCreated()).Methods(http.MethodPost)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.RequireAuth(s.verifier, s.logger))
	v1.HandleFunc("/devices/token", s.handleRefreshPushToken()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms", s.handleCreateRoom()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/join", s.handleJoinRoom()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/leave", s.handleLeaveRoom()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/typing", s.handleTyping()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/read", s.handleMarkRead()).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{roomId}/notifications", s.handleRoomNotifications()).Methods(http.MethodPost)
	v1.HandleFunc("/reports", s.handleReportUser()).Methods(http.MethodPost)
	v1.HandleFunc("/me/preferences", s.handlePreferences()).Methods(http.MethodPut, http.MethodPost)
	v1.HandleFunc("/notifications", s.handleListNotifications()).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = httputil.TrustedProxyHeaders(s.cfg.Server.TrustedProxies)(h)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger),
		handlers.PrintRecoveryStack(false),
	)(h)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) maxBody() int64 {
	return s.maxBodyKB * 1024
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// limitParam reads the optional ?limit= query value.
func limitParam(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
