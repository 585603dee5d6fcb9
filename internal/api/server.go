// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/defi-portfolio-tracker/internal/apy"
	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/nav"
	"github.com/defi-portfolio-tracker/internal/service"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// RefreshServiceInterface defines wallet refresh operations
type RefreshServiceInterface interface {
	Refresh(ctx context.Context, userID, walletAddress string) (*service.RefreshResult, error)
}

// SnapshotServiceInterface defines snapshot query operations
type SnapshotServiceInterface interface {
	GetHistory(ctx context.Context, userID, walletAddress string, from, to time.Time) ([]*models.DailySnapshot, error)
	GetLatest(ctx context.Context, userID, walletAddress string) (*models.DailySnapshot, error)
}

// ApyServiceInterface defines APY computation operations
type ApyServiceInterface interface {
	GetPositionAPYs(ctx context.Context, userID string, targetDate time.Time, periodDays int) (map[string]apy.Result, error)
}

// NavServiceInterface defines NAV period operations
type NavServiceInterface interface {
	GetNav(ctx context.Context, userID string, year, month int) (*models.NavSettings, error)
	SaveNav(ctx context.Context, userID string, year, month int, totals nav.PortfolioTotals, feeSettings models.FeeSettings) (*models.NavSettings, error)
	GetPriorNav(ctx context.Context, userID string, year, month int) (*service.PriorNavResult, error)
	ResetNav(ctx context.Context, userID string, year, month int) error
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	refreshService  RefreshServiceInterface
	snapshotService SnapshotServiceInterface
	apyService      ApyServiceInterface
	navService      NavServiceInterface
	config          *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	refreshService RefreshServiceInterface,
	snapshotService SnapshotServiceInterface,
	apyService ApyServiceInterface,
	navService NavServiceInterface,
) *Server {
	s := &Server{
		router:          mux.NewRouter(),
		refreshService:  refreshService,
		snapshotService: snapshotService,
		apyService:      apyService,
		navService:      navService,
		config:          config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Middleware order matters: logging outermost, compression innermost
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Wallet endpoints
	api.HandleFunc("/wallets/{address}/refresh", s.handleRefreshWallet).Methods("POST")
	api.HandleFunc("/wallets/{address}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/wallets/{address}/latest", s.handleGetLatest).Methods("GET")

	// APY endpoints
	api.HandleFunc("/apy", s.handleGetAPY).Methods("GET")

	// NAV endpoints
	api.HandleFunc("/nav/{year}/{month}", s.handleGetNav).Methods("GET")
	api.HandleFunc("/nav/{year}/{month}", s.handleSaveNav).Methods("PUT")
	api.HandleFunc("/nav/{year}/{month}", s.handleResetNav).Methods("DELETE")
	api.HandleFunc("/nav/{year}/{month}/prior", s.handleGetPriorNav).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the configured router for tests
func (s *Server) Router() http.Handler {
	return s.router
}
