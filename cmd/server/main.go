// @title        Math Solver API
// @version      1.0
// @description  Credential issuance and a buffered or streaming relay to a chat completion model.
// @BasePath     /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathsolver/solver-api/internal/api"
	"github.com/mathsolver/solver-api/internal/api/handler"
	"github.com/mathsolver/solver-api/internal/core/ports"
	"github.com/mathsolver/solver-api/internal/core/service"
	"github.com/mathsolver/solver-api/internal/infrastructure/config"
	mongostore "github.com/mathsolver/solver-api/internal/infrastructure/db/mongo"
	redisstore "github.com/mathsolver/solver-api/internal/infrastructure/db/redis"
	"github.com/mathsolver/solver-api/internal/infrastructure/llm/deepseek"
	"github.com/mathsolver/solver-api/internal/infrastructure/store/memory"
	"github.com/mathsolver/solver-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "solver-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "solver-api",
	})

	store, readiness, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client := deepseek.New(deepseek.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		APIKey:             cfg.Upstream.APIKey,
		Model:              cfg.Upstream.Model,
		Timeout:            cfg.Upstream.Timeout,
		BreakerMaxFailures: cfg.Upstream.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.Upstream.BreakerOpenTimeout,
	}, logger.Component("deepseek"))
	readiness["upstream"] = client

	authService := service.NewAuthService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL,
		service.WithBcryptCost(cfg.Auth.BcryptCost),
		service.WithAuthLogger(logger.Component("auth")),
	)
	solverService := service.NewSolverService(client, logger.Component("solver"))

	e := api.NewRouter(api.Deps{
		Auth:             authService,
		Solver:           solverService,
		Readiness:        readiness,
		Logger:           logger.Component("http"),
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		SolveRequireAuth: cfg.HTTP.SolveRequireAuth,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store.Backend).
			Str("model", cfg.Upstream.Model).
			Bool("solve_require_auth", cfg.HTTP.SolveRequireAuth).
			Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// openStore selects the credential store backend. The returned map seeds the
// readiness probes.
func openStore(ctx context.Context, cfg *config.Config) (ports.CredentialStore, map[string]handler.Pinger, func(), error) {
	log := logger.Component("store")
	readiness := map[string]handler.Pinger{}

	switch cfg.Store.Backend {
	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		store := redisstore.NewCredentialStore(client)
		readiness["redis"] = store
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis credential store")
		return store, readiness, func() { _ = client.Close() }, nil

	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		store := mongostore.NewCredentialStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		readiness["mongodb"] = store
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongodb credential store")
		return store, readiness, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}, nil

	default:
		log.Warn().Msg("using in-memory credential store; identities are lost on restart")
		return memory.NewCredentialStore(), readiness, func() {}, nil
	}
}
