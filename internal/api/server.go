// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/uptime-rewards/internal/admin"
	"github.com/uptime-rewards/internal/auth"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/profile"
	"github.com/uptime-rewards/internal/rewards"
	"github.com/uptime-rewards/internal/session"
)

// Service interfaces for dependency injection and testing

// LoginService runs wallet-signature logins.
type LoginService interface {
	IssueNonce(ctx context.Context, wallet string) (*auth.Challenge, error)
	IssueAdminNonce(ctx context.Context, wallet string) (*auth.Challenge, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	AdminLogin(ctx context.Context, wallet, signature string) (*auth.LoginResult, error)
	Authenticate(token string) (*auth.Claims, error)
}

// AccountReader reads accounts.
type AccountReader interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
}

// AccountStore is the slice of the account store the handlers use directly.
type AccountStore interface {
	AccountReader
	EnsureReferralCode(ctx context.Context, wallet string) (string, error)
}

// SessionHost hosts one session controller per wallet.
type SessionHost interface {
	Open(ctx context.Context, wallet string) (*session.Controller, error)
	Get(wallet string) (*session.Controller, bool)
	Close(ctx context.Context, wallet string)
}

// TierService awards tier rewards.
type TierService interface {
	Award(ctx context.Context, wallet string, total int64) (rewards.Grant, error)
}

// ReferralService reports and claims referral bonuses.
type ReferralService interface {
	Stats(ctx context.Context, code string) (models.ReferralStats, []models.ReferredAccount, error)
	Status(ctx context.Context, wallet string) (rewards.ReferralStatus, error)
	Claim(ctx context.Context, wallet string) (rewards.Grant, error)
}

// TaskService lists and completes social tasks.
type TaskService interface {
	List(ctx context.Context, wallet string) ([]rewards.TaskView, error)
	Complete(ctx context.Context, wallet, taskID string) (rewards.TaskResult, error)
}

// AdminService runs the admin operations.
type AdminService interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error)
	ListReferrals(ctx context.Context, wallet string) ([]models.ReferredAccount, error)
	ApplyAction(ctx context.Context, adminWallet string, req admin.ActionRequest) error
}

// ProfileService reads and sets the caller's username and email.
type ProfileService interface {
	Get(ctx context.Context, wallet string) (profile.View, error)
	Update(ctx context.Context, wallet string, u profile.Update) (profile.View, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the handler dependencies.
type Services struct {
	Auth      LoginService
	Accounts  AccountStore
	Sessions  SessionHost
	Tiers     TierService
	Referrals ReferralService
	Tasks     TaskService
	Profile   ProfileService
	Admin     AdminService
	// Health lists the dependencies /health pings, by name.
	Health map[string]Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	limiter    *RateLimiter
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
	Burst             int
	AllowedOrigin     string
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		limiter:  NewRateLimiter(config.RequestsPerSecond, config.Burst),
		logger:   logger.WithField("component", "api"),
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr: fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		// CORS wraps the router so preflights for any route are answered
		Handler:      CORSMiddleware(s.config.AllowedOrigin)(s.router),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Login
	public := api.PathPrefix("/auth").Subrouter()
	public.Use(RateLimitMiddleware(s.limiter))
	public.HandleFunc("/nonce", s.handleNonce).Methods("POST")
	public.HandleFunc("/login", s.handleLogin).Methods("POST")

	user := api.NewRoute().Subrouter()
	user.Use(AuthMiddleware(s.services.Auth))
	user.Use(RateLimitMiddleware(s.limiter))

	// Session
	user.HandleFunc("/session", s.handleGetSession).Methods("GET")
	user.HandleFunc("/session/start", s.handleStartSession).Methods("POST")
	user.HandleFunc("/session/stop", s.handleStopSession).Methods("POST")
	user.HandleFunc("/session/visibility", s.handleVisibility).Methods("POST")
	user.HandleFunc("/session/unload", s.handleUnload).Methods("POST")

	// Rewards
	user.HandleFunc("/rewards", s.handleGetRewards).Methods("GET")
	user.HandleFunc("/rewards/tiers/sync", s.handleSyncTiers).Methods("POST")
	user.HandleFunc("/rewards/referrals/claim", s.handleClaimReferrals).Methods("POST")
	user.HandleFunc("/referrals", s.handleGetReferrals).Methods("GET")
	user.HandleFunc("/referrals/code", s.handleReferralCode).Methods("POST")
	user.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	user.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods("POST")

	// Profile
	user.HandleFunc("/profile", s.handleGetProfile).Methods("GET")
	user.HandleFunc("/profile", s.handleUpdateProfile).Methods("PATCH")

	// Admin
	adm := user.PathPrefix("/admin").Subrouter()
	adm.Use(AdminMiddleware(s.services.Accounts))
	adm.HandleFunc("/me", s.handleAdminMe).Methods("GET")
	adm.HandleFunc("/users", s.handleListUsers).Methods("GET")
	adm.HandleFunc("/users", s.handleAdminAction).Methods("PATCH")
	adm.HandleFunc("/referrals", s.handleAdminReferrals).Methods("GET")
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

const healthTimeout = 2 * time.Second

// handleHealth handles health check requests. Any unreachable dependency
// turns the answer into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.services.Health))
	for name := range s.services.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	for _, name := range names {
		if err := s.services.Health[name].Ping(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("dependency", name).Warn("Health check failed")
			respondServiceError(w, r, apperrors.NewServiceUnavailableError(name))
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "uptime-rewards",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
