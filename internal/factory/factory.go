package factory

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loremtype-backend/internal/analytics"
	"loremtype-backend/internal/client"
	"loremtype-backend/internal/config"
	"loremtype-backend/internal/events"
	"loremtype-backend/internal/handler"
	"loremtype-backend/internal/hashing"
	"loremtype-backend/internal/mailer"
	"loremtype-backend/internal/ratelimit"
	"loremtype-backend/internal/repository/postgres"
	"loremtype-backend/internal/service"
	"loremtype-backend/internal/token"
	"loremtype-backend/internal/util"
)

// Factory assembles all components in dependency order and owns their
// lifecycle.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger

	Postgres  *client.PostgresClient
	Redis     *client.RedisClient
	Publisher *events.Publisher
	Sink      *analytics.Sink

	Limiter *ratelimit.Limiter
	Auth    *service.AuthService
	Scores  *service.ScoreService

	Router chi.Router
}

func New(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{cfg: cfg, logger: logger}

	pg, err := client.NewPostgresClient(cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	f.Postgres = pg

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(context.Background(), cfg.Postgres.URL); err != nil {
			f.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	rd, err := client.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	f.Redis = rd

	// Kafka and ClickHouse are optional. In development a failure is only a
	// warning; production fails startup.
	f.Publisher = events.NewPublisher(cfg.Kafka, logger)

	sink, err := analytics.NewSink(cfg.ClickHouse, logger)
	if err != nil {
		if cfg.IsProduction() {
			f.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		logger.Warn("ClickHouse unavailable, analytics disabled", util.ErrorField(err))
	}
	f.Sink = sink

	hasher, err := hashing.NewHasher(cfg.Hashing)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hasher: %w", err)
	}

	issuer := token.NewIssuer(cfg.Token)
	f.Limiter = ratelimit.NewLimiter(rd.Client, cfg.RateLimit, logger)

	var m mailer.Mailer = mailer.NewNoopMailer()
	if cfg.SMTP.Enabled {
		m = mailer.NewSMTPMailer(cfg.SMTP, logger)
	}

	users := postgres.NewUserRepository(pg.Pool, logger)
	scores := postgres.NewScoreRepository(pg.Pool, logger)

	f.Auth = service.NewAuthService(users, f.Limiter, hasher, issuer, m, f.Publisher, cfg.Lockout, logger)
	f.Scores = service.NewScoreService(users, scores, f.Sink, logger)

	f.Router = handler.NewRouter(
		handler.NewAuthHandler(f.Auth, logger),
		handler.NewScoreHandler(f.Scores, issuer, logger),
		f.HealthCheck,
		logger,
	)

	return f, nil
}

// StartBackground launches the limiter sweeper. It stops when ctx is
// cancelled.
func (f *Factory) StartBackground(ctx context.Context) {
	f.Limiter.StartSweeper(ctx, f.cfg.RateLimit.SweepInterval)
}

// HealthCheck verifies the required backends. Optional components do not
// affect health.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if err := f.Postgres.HealthCheck(ctx); err != nil {
		return err
	}
	return f.Redis.HealthCheck(ctx)
}

// Close releases components in reverse dependency order.
func (f *Factory) Close() {
	if f.Sink != nil {
		if err := f.Sink.Close(); err != nil {
			f.logger.Warn("Failed to close analytics sink", util.ErrorField(err))
		}
	}
	if f.Publisher != nil {
		if err := f.Publisher.Close(); err != nil {
			f.logger.Warn("Failed to close Kafka publisher", util.ErrorField(err))
		}
	}
	if f.Redis != nil {
		_ = f.Redis.Close()
	}
	if f.Postgres != nil {
		f.Postgres.Close()
	}
}
