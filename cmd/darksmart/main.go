package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	cacheadapter "github.com/medev213/darksmart/internal/adapter/cache"
	"github.com/medev213/darksmart/internal/bootstrap"
	"github.com/medev213/darksmart/internal/config"
	"github.com/medev213/darksmart/internal/homegraph"
	httptransport "github.com/medev213/darksmart/internal/http"
	"github.com/medev213/darksmart/internal/http/handler"
	"github.com/medev213/darksmart/internal/http/middleware"
	"github.com/medev213/darksmart/internal/repository"
	"github.com/medev213/darksmart/internal/scheduler"
	"github.com/medev213/darksmart/internal/server"
	"github.com/medev213/darksmart/internal/service"
	"github.com/medev213/darksmart/internal/telemetry"
	"github.com/medev213/darksmart/internal/token"
	"github.com/medev213/darksmart/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newDeviceRepository,
			newAutomationRepository,
			newTokenRepository,
			newCodeRepository,
			newSessionStore,
			newTokenService,
			newReporter,
			newCommander,
			newRateLimiter,
			service.NewOAuthService,
			service.NewFulfillmentService,
			scheduler.New,
			newOAuthHandler,
			newFulfillmentHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureOwner, startScheduler, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newDeviceRepository(pool *pgxpool.Pool) repository.DeviceRepository {
	return repository.NewPostgresDeviceRepo(pool)
}

func newAutomationRepository(pool *pgxpool.Pool) repository.AutomationRepository {
	return repository.NewPostgresAutomationRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newCodeRepository(pool *pgxpool.Pool) repository.CodeRepository {
	return repository.NewPostgresCodeRepo(pool)
}

// newSessionStore picks the handshake session backend. Redis is the
// default; memory serves single-instance deployments and tests.
func newSessionStore(lc fx.Lifecycle, cfg config.Config) (repository.SessionStore, error) {
	if cfg.SessionStore == "memory" {
		return cacheadapter.NewMemorySessionStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisSessionStore(client), nil
}

func newTokenService(cfg config.Config) (*token.Service, error) {
	return token.NewService(cfg.JWTSecret, cfg.TokenExpiry)
}

func newReporter(logger *zap.Logger) homegraph.Reporter {
	return homegraph.NewNoopReporter(logger)
}

func newCommander(logger *zap.Logger) transport.Commander {
	return transport.NewNoopCommander(logger)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitPerMin)
}

func newOAuthHandler(svc *service.OAuthService, logger *zap.Logger) *handler.OAuthHandler {
	return &handler.OAuthHandler{OAuth: svc, Logger: logger}
}

func newFulfillmentHandler(svc *service.FulfillmentService, logger *zap.Logger) *handler.FulfillmentHandler {
	return &handler.FulfillmentHandler{Fulfillment: svc, Logger: logger}
}

func newAuthMiddleware(tokens *token.Service) *middleware.Auth {
	return &middleware.Auth{Tokens: tokens}
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Shutdown(ctx)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
