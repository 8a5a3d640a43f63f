package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/checkout"
	"github.com/noah-isme/yevea-countertop/internal/config"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/db"
	"github.com/noah-isme/yevea-countertop/internal/lock"
	"github.com/noah-isme/yevea-countertop/internal/obs"
	"github.com/noah-isme/yevea-countertop/internal/payment"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
	"github.com/noah-isme/yevea-countertop/internal/ratelimit"
	"github.com/noah-isme/yevea-countertop/internal/receipt"
	"github.com/noah-isme/yevea-countertop/internal/resilience"
)

const (
	applicationName = "yevea-countertop"
	rateLimitPrefix = "rl:"
	gatewayTarget   = "payment_gateway"
)

// App holds the services shared by the API and worker binaries.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Redis *redis.Client
	DB    *pgxpool.Pool
	Tasks *asynq.Client

	Substrate cache.Substrate
	Locker    lock.Locker
	Limiter   ratelimit.Limiter
	Gateway   payment.Gateway

	Calc     *pricing.Calculator
	Namer    configurator.Namer
	Carts    *cart.Store
	Configs  *configurator.Repository
	Checkout *checkout.Orchestrator

	closers []func() error
}

// New connects the configured backends and wires the domain services. A
// deployment without REDIS_URL or DATABASE_URL runs entirely in memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{Config: cfg, Logger: logger}
	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	if err := a.connectRedis(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.connectPostgres(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wireServices(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connectRedis(ctx context.Context) error {
	if a.Config.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)
	if err := redisotel.InstrumentTracing(client); err != nil {
		a.Logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if a.Config.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			a.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.Redis = client
	return nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	if a.Config.DatabaseURL == "" {
		return nil
	}
	m, err := db.NewMigrator(a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	err = db.Up(m)
	srcErr, dbErr := m.Close()
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if srcErr != nil || dbErr != nil {
		a.Logger.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
	}

	poolConfig, err := pgxpool.ParseConfig(a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	if err := pool.Ping(connectCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	a.DB = pool
	return nil
}

func (a *App) wireServices() error {
	cfg := a.Config

	switch cfg.CartStore {
	case config.StoreRedis:
		if a.Redis == nil {
			return errors.New("app: redis store selected without a redis connection")
		}
		a.Substrate = cache.NewRedis(a.Redis)
	case config.StorePostgres:
		if a.DB == nil {
			return errors.New("app: postgres store selected without a database connection")
		}
		a.Substrate = cache.NewPostgres(a.DB)
	default:
		a.Substrate = cache.NewMemory()
	}

	if a.Redis != nil {
		a.Locker = lock.Redis{R: a.Redis, RetryBackoff: cfg.LockRetryBackoff}
	} else {
		a.Locker = lock.NewLocal()
	}

	limiter, err := a.newLimiter()
	if err != nil {
		return err
	}
	a.Limiter = limiter

	gateway, err := a.newGateway()
	if err != nil {
		return err
	}
	a.Gateway = gateway

	a.Calc = pricing.NewCalculator(pricing.RateTable(cfg.PricingRates))
	a.Namer = configurator.Namer{OtherDefault: cfg.UsageOtherDefault}
	a.Carts = &cart.Store{
		Substrate: a.Substrate,
		Locker:    a.Locker,
		TTL:       cfg.SessionTTL,
		LockTTL:   cfg.LockTTL,
		Logger:    a.Logger.With().Str("component", "cart").Logger(),
	}
	a.Configs = &configurator.Repository{
		Store:        a.Substrate,
		Locker:       a.Locker,
		TTL:          cfg.SessionTTL,
		LockTTL:      cfg.LockTTL,
		OtherDefault: cfg.UsageOtherDefault,
		Logger:       a.Logger.With().Str("component", "configurator").Logger(),
	}
	a.Checkout = &checkout.Orchestrator{
		Calc:     a.Calc,
		Gateway:  a.Gateway,
		MinOrder: cfg.MinOrderAmount,
		Currency: cfg.CurrencyCode,
		Timeout:  cfg.PaymentTimeout,
		Logger:   a.Logger.With().Str("component", "checkout").Logger(),
	}
	if guard, ok := a.Locker.(lock.TryLocker); ok {
		a.Checkout.Guard = guard
	}

	if cfg.ReceiptsEnabled && cfg.RedisURL != "" {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse asynq redis uri: %w", err)
		}
		a.Tasks = asynq.NewClient(opt)
		a.closers = append(a.closers, a.Tasks.Close)
		a.Checkout.Receipts = receipt.AsynqEnqueuer{Client: a.Tasks}
	}
	return nil
}

func (a *App) newLimiter() (ratelimit.Limiter, error) {
	switch a.Config.RateLimitBackend {
	case ratelimit.BackendUlule:
		if a.Redis != nil {
			return ratelimit.NewRedisUlule(a.Redis, rateLimitPrefix)
		}
		return ratelimit.NewMemoryUlule(), nil
	default:
		if a.Redis != nil {
			return ratelimit.Sliding{Client: a.Redis, Prefix: rateLimitPrefix}, nil
		}
		// The sliding window needs sorted sets; without Redis fall back to the in-memory store.
		return ratelimit.NewMemoryUlule(), nil
	}
}

func (a *App) newGateway() (payment.Gateway, error) {
	cfg := a.Config
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.CircuitGatewayMinReq,
		FailureRatio: cfg.CircuitGatewayFailureRate,
		OpenFor:      cfg.CircuitGatewayOpenFor,
		Target:       gatewayTarget,
	}).WithLogger(a.Logger)
	client := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.OutboundTimeout,
		Target:      gatewayTarget,
		Logger:      a.Logger,
	}
	gateway, err := payment.New(cfg.PaymentProvider, cfg.PaymentGatewayURL, client)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	return gateway, nil
}

// Close releases every connection opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
