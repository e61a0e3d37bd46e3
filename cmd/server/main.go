// Package main provides the API server entry point for the uptime rewards service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptime-rewards/internal/admin"
	"github.com/uptime-rewards/internal/api"
	"github.com/uptime-rewards/internal/auth"
	"github.com/uptime-rewards/internal/circuitbreaker"
	"github.com/uptime-rewards/internal/config"
	"github.com/uptime-rewards/internal/cutoff"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/profile"
	"github.com/uptime-rewards/internal/retry"
	"github.com/uptime-rewards/internal/rewards"
	"github.com/uptime-rewards/internal/session"
	"github.com/uptime-rewards/internal/storage"
	"github.com/uptime-rewards/internal/types"
	"github.com/uptime-rewards/internal/worker"
)

// tickTTL bounds how long a cached last tick outlives its session.
const tickTTL = 30 * 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx := logging.WithLogger(context.Background(), logger)

	// Connect to Postgres
	var postgres *storage.PostgresDB
	err = retry.Connect(ctx, "postgres", nil, func(ctx context.Context) error {
		var err error
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	var redis *storage.RedisCache
	err = retry.Connect(ctx, "redis", nil, func(ctx context.Context) error {
		var err error
		redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	accounts := storage.NewAccountRepository(postgres)
	promoteAdmins(ctx, accounts, cfg.Auth.AdminWallets, logger)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		logger.WithError(err).Fatal("Invalid token configuration")
	}
	authService := auth.NewService(accounts, storage.NewRedisNonceStore(redis), tokens, cfg.Auth, logger)

	// The manager routes grants through a live controller when there is one,
	// so the awarder and claimers get it once it exists.
	tiers := rewards.NewTierAwarder(accounts, rewards.DirectGranter{}, logger)
	sessions := session.NewManager(
		accounts,
		session.NewGuardedTickStore(
			storage.NewRedisTickStore(redis, tickTTL),
			circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("tick_store")),
		),
		cutoff.New(cfg.Rewards.CutoffOffsetHours, cfg.Rewards.CutoffHour),
		session.Options{
			Heartbeat:     cfg.Rewards.HeartbeatInterval,
			Debounce:      cfg.Rewards.DebounceDelay,
			FlushInterval: cfg.Rewards.FlushInterval,
		},
		tiers.Notify,
		logger,
	)
	tiers.SetGranter(sessions)
	referrals := rewards.NewReferralClaimer(accounts, sessions, cfg.Rewards.CompletedReferralHours, logger)
	tasks := rewards.NewTaskService(accounts, sessions, logger)
	adminService := admin.NewService(accounts, sessions, tiers, cfg.Rewards.CompletedReferralHours, logger)
	profiles := profile.NewService(accounts, logger)

	reaper, err := worker.NewSessionReaper(&worker.SessionReaperConfig{
		Sessions:    sessions,
		Interval:    cfg.Rewards.ReaperInterval,
		IdleTimeout: cfg.Rewards.IdleTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session reaper")
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	server := api.NewServer(serverConfig, api.Services{
		Auth:      authService,
		Accounts:  accounts,
		Sessions:  sessions,
		Tiers:     tiers,
		Referrals: referrals,
		Tasks:     tasks,
		Profile:   profiles,
		Admin:     adminService,
		Health:    map[string]api.Pinger{"postgres": postgres, "redis": redis},
	}, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if err := reaper.Start(workerCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start session reaper")
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := reaper.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Session reaper did not stop cleanly")
	}

	// Final flush of every hosted session
	sessions.DisposeAll(shutdownCtx)

	logger.Info("Server exited")
}

// promoteAdmins grants the admin role to the configured wallets.
func promoteAdmins(ctx context.Context, accounts *storage.AccountRepository, wallets []string, logger *logging.Logger) {
	for _, raw := range wallets {
		wallet, err := auth.NormalizeWallet(raw)
		if err != nil {
			logger.WithField("wallet", raw).Warn("Skipping invalid admin wallet")
			continue
		}
		if err := accounts.SetRole(ctx, wallet, types.RoleAdmin); err != nil {
			logger.WithWallet(wallet).WithError(err).Error("Failed to promote admin wallet")
			continue
		}
		logger.WithWallet(wallet).Info("Admin wallet promoted")
	}
}
