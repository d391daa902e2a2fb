package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/config"
	"github.com/hongminglow/ondata-be/internal/http/handlers"
	"github.com/hongminglow/ondata-be/internal/middleware"
	"github.com/hongminglow/ondata-be/internal/password"
	"github.com/hongminglow/ondata-be/internal/service"
	"github.com/hongminglow/ondata-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.Store, logger *zap.Logger) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewHandler(cfg, store, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// NewHandler builds the full API handler chain without binding a listener.
func NewHandler(cfg config.Config, store storage.Store, logger *zap.Logger) http.Handler {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	// Admin self-signup is closed under strict ownership.
	authSvc := service.NewAuthService(store, password.NewBcryptHasher(cfg.BcryptCost), tokens, logger.Named("auth"),
		service.WithAdminSignup(!cfg.StrictOwnership))
	measurementSvc := service.NewMeasurementService(store, cfg.StrictOwnership, logger.Named("measurements"))

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), store, logger.Named("health")).Register(mux)
	handlers.NewAuthHandler(authSvc, logger).Register(mux)
	handlers.NewMeasurementHandler(measurementSvc, authSvc, logger).Register(mux)

	return middleware.CORS(cfg.CORSOrigins, middleware.Logging(logger.Named("http"), mux))
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
