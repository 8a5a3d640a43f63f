package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Store backends for the session-scoped cart substrate.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CartStore          string
	CORSAllowedOrigins []string

	SessionSecret     string
	SessionTTL        time.Duration
	SessionCookieName string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	PricingRates      map[int]decimal.Decimal
	CurrencyCode      string
	MinOrderAmount    decimal.Decimal
	UsageOtherDefault string

	PaymentProvider   string
	PaymentGatewayURL string
	PaymentTimeout    time.Duration

	OutboundTimeout           time.Duration
	RetryBase                 time.Duration
	RetryMaxAttempts          int
	RetryJitterPercent        float64
	CircuitGatewayMinReq      int
	CircuitGatewayFailureRate float64
	CircuitGatewayOpenFor     time.Duration

	IdempotencyTTL   time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	RateLimitBackend     string
	RateLimitCheckoutMax int
	RateLimitWindow      time.Duration
	BodyLimitBytes       int64

	ReceiptsEnabled   bool
	WorkerConcurrency int
	PurgeInterval     time.Duration

	Obs      ObsConfig
	Security SecurityConfig
}

// ObsConfig groups logging, metrics, tracing and profiling settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
	HealthTimeout    time.Duration
}

// SecurityConfig toggles the response security headers.
type SecurityConfig struct {
	HeadersEnabled        bool
	HSTSEnabled           bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	rates, err := ParseRates(valueOrDefault(k.String("PRICING_RATES"), "3:900,5:1200,7:1500"))
	if err != nil {
		return nil, fmt.Errorf("PRICING_RATES: %w", err)
	}
	minOrder, err := decimal.NewFromString(valueOrDefault(k.String("MIN_ORDER_AMOUNT"), "175"))
	if err != nil {
		return nil, fmt.Errorf("MIN_ORDER_AMOUNT: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CartStore:          strings.ToLower(strings.TrimSpace(k.String("CART_STORE"))),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SessionSecret:     k.String("SESSION_SECRET"),
		SessionTTL:        parseDuration(k.String("SESSION_TTL"), "24h"),
		SessionCookieName: valueOrDefault(k.String("SESSION_COOKIE_NAME"), "yevea_session"),
		CookieDomain:      strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:      parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:    parseSameSite(k.String("COOKIE_SAMESITE")),

		PricingRates:      rates,
		CurrencyCode:      strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "eur")),
		MinOrderAmount:    minOrder,
		UsageOtherDefault: valueOrDefault(k.String("USAGE_OTHER_DEFAULT"), "other solid olive wood countertop"),

		PaymentProvider:   strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "stub")),
		PaymentGatewayURL: strings.TrimSpace(k.String("PAYMENT_GATEWAY_URL")),
		PaymentTimeout:    parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),

		OutboundTimeout:           parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		RetryBase:                 parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:          parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:        parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitGatewayMinReq:      parseInt(k.String("CIRCUIT_GATEWAY_MIN_REQ"), 5),
		CircuitGatewayFailureRate: parseFloat(k.String("CIRCUIT_GATEWAY_FAILURE_RATE"), 0.5),
		CircuitGatewayOpenFor:     parseDuration(k.String("CIRCUIT_GATEWAY_OPEN_FOR"), "30s"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "5s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),

		RateLimitBackend:     strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RateLimitCheckoutMax: parseInt(k.String("RATE_LIMIT_CHECKOUT_MAX"), 10),
		RateLimitWindow:      parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64*1024)),

		ReceiptsEnabled:   parseBoolDefault(k.String("RECEIPTS_ENABLED"), true),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
		PurgeInterval:     parseDuration(k.String("PURGE_INTERVAL"), "1h"),

		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "yevea"),
			MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			HealthTimeout:    time.Duration(parseInt(k.String("HEALTH_READY_TIMEOUT_MS"), 500)) * time.Millisecond,
		},
		Security: SecurityConfig{
			HeadersEnabled:        parseBoolDefault(k.String("SECURE_HEADERS_ENABLE"), true),
			HSTSEnabled:           parseBool(k.String("SECURE_HSTS_ENABLE")),
			HSTSMaxAge:            parseInt(k.String("SECURE_HSTS_MAX_AGE"), 31536000),
			HSTSIncludeSubdomains: parseBool(k.String("SECURE_HSTS_INCLUDE_SUBDOMAINS")),
			ContentSecurityPolicy: strings.TrimSpace(k.String("SECURE_CSP")),
		},
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.CartStore == "" {
		cfg.CartStore = StoreMemory
		if cfg.RedisURL != "" {
			cfg.CartStore = StoreRedis
		}
	}

	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	switch cfg.CartStore {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when CART_STORE=redis")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when CART_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported CART_STORE %q", cfg.CartStore)
	}
	if cfg.PaymentProvider == "http" && cfg.PaymentGatewayURL == "" {
		return nil, errors.New("PAYMENT_GATEWAY_URL is required when PAYMENT_PROVIDER=http")
	}
	if !cfg.MinOrderAmount.IsPositive() {
		return nil, errors.New("MIN_ORDER_AMOUNT must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ParseRates parses a "thickness:rate" list such as "3:900,5:1200,7:1500".
func ParseRates(value string) (map[int]decimal.Decimal, error) {
	rates := map[int]decimal.Decimal{}
	for _, part := range splitAndTrim(value) {
		thickness, rate, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", part)
		}
		t, err := strconv.Atoi(strings.TrimSpace(thickness))
		if err != nil || t <= 0 {
			return nil, fmt.Errorf("invalid thickness %q", thickness)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
		}
		rates[t] = r
	}
	if len(rates) == 0 {
		return nil, errors.New("no rates configured")
	}
	return rates, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
