package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"storefront"`

	// HTTP server
	HTTPPort        int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Product API
	ProductAPIURL     string        `env:"PRODUCT_API_URL" envDefault:"https://apis.ccbp.in"`
	ProductAPITimeout time.Duration `env:"PRODUCT_API_TIMEOUT" envDefault:"10s"`
	ProductAPIRetries int           `env:"PRODUCT_API_RETRIES" envDefault:"2"`
	TokenCookie       string        `env:"TOKEN_COOKIE" envDefault:"jwt_token"`

	// Page behaviour
	RenderWait     time.Duration `env:"RENDER_WAIT" envDefault:"1500ms"`
	RefreshSeconds int           `env:"VIEW_REFRESH_SECONDS" envDefault:"1"`
	MaxQuantity    int           `env:"MAX_QUANTITY" envDefault:"0"`

	// Page sessions
	SessionStore        string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Page events
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsTopic   string   `env:"EVENTS_TOPIC" envDefault:"storefront.page-events"`

	// Rate limiting
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS for the JSON page API
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// Operational endpoints
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
	PprofEnabled        bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs   []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the environment, after applying any of the
// given dotenv files.
func Load(dotenvFiles ...string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, dotenvFiles...); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.ProductAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PRODUCT_API_URL must be an absolute http(s) URL, got %q", c.ProductAPIURL)
	}
	if c.ProductAPITimeout <= 0 {
		return fmt.Errorf("PRODUCT_API_TIMEOUT must be positive")
	}
	if c.ProductAPIRetries < 0 {
		return fmt.Errorf("PRODUCT_API_RETRIES must not be negative")
	}
	if c.TokenCookie == "" {
		return fmt.Errorf("TOKEN_COOKIE is required")
	}

	if c.RenderWait < 0 {
		return fmt.Errorf("RENDER_WAIT must not be negative")
	}
	if c.RefreshSeconds < 1 {
		return fmt.Errorf("VIEW_REFRESH_SECONDS must be at least 1")
	}
	if c.MaxQuantity < 0 {
		return fmt.Errorf("MAX_QUANTITY must not be negative (0 means unbounded)")
	}

	switch c.SessionStore {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.EventsEnabled && (len(c.KafkaBrokers) == 0 || c.EventsTopic == "") {
		return fmt.Errorf("KAFKA_BROKERS and EVENTS_TOPIC are required when EVENTS_ENABLED is set")
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %g", c.OTELSampleRate)
	}
	return nil
}

// ProductionLike reports whether the service runs outside local development.
func (c *Config) ProductionLike() bool {
	return c.Environment != "development"
}
