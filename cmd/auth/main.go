package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/config"
	httptransport "github.com/brightport/portal-auth/internal/http"
	"github.com/brightport/portal-auth/internal/http/handler"
	httpmiddleware "github.com/brightport/portal-auth/internal/http/middleware"
	"github.com/brightport/portal-auth/internal/notifier"
	"github.com/brightport/portal-auth/internal/oauth"
	"github.com/brightport/portal-auth/internal/ratelimit"
	"github.com/brightport/portal-auth/internal/repository"
	"github.com/brightport/portal-auth/internal/server"
	"github.com/brightport/portal-auth/internal/service"
	"github.com/brightport/portal-auth/internal/telemetry"
	"github.com/brightport/portal-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newAccountRepository,
			newSessionRepository,
			newRateLimitStore,
			newRateLimiter,
			newTokenService,
			newNotifier,
			newGoogleVerifier,
			newLinkedInClient,
			service.NewAccountService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
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

func newAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return repository.NewPostgresAccountRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

// newRateLimitStore prefers Redis so limits hold across replicas; without a
// Redis address each instance counts on its own.
func newRateLimitStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) ratelimit.Store {
	if cfg.RedisAddr == "" {
		logger.Info("rate limiting with in-process store")
		return ratelimit.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	logger.Info("rate limiting with redis store", zap.String("addr", cfg.RedisAddr))
	return ratelimit.NewRedisStore(client)
}

func newRateLimiter(store ratelimit.Store, logger *zap.Logger) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, nil, logger)
}

func newTokenService(cfg config.Config) (*token.Service, error) {
	return token.NewService([]byte(cfg.TokenSecret), cfg.TokenIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newNotifier(cfg config.Config, logger *zap.Logger) notifier.Notifier {
	if cfg.SMTPHost == "" {
		logger.Warn("no SMTP relay configured: notifications will only be logged")
		return notifier.NewLogNotifier(logger)
	}
	return notifier.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.SMTPFrom, cfg.AdminEmail, cfg.PortalName)
}

func newGoogleVerifier(cfg config.Config) oauth.IDTokenVerifier {
	if cfg.GoogleClientID == "" {
		return nil
	}
	return oauth.NewGoogleVerifier(cfg.GoogleClientID, nil)
}

func newLinkedInClient(cfg config.Config) oauth.CodeExchanger {
	if cfg.LinkedInClientID == "" {
		return nil
	}
	return oauth.NewLinkedInClient(cfg.LinkedInClientID, cfg.LinkedInClientSecret, nil)
}

func newAuthMiddleware(accounts *service.AccountService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Accounts: accounts}
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
