package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevSessionSecret signs sessions outside production when SESSION_SECRET is unset.
const DevSessionSecret = "orbit-dev-secret-do-not-use-in-production"

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Retention   RetentionConfig
	Jobs        JobsConfig
	Seed        SeedConfig
	Tracing     TracingConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type SessionConfig struct {
	Secret     string
	Lifetime   time.Duration
	CookieName string
	// DevFallback is set when Secret was not configured and DevSessionSecret is used.
	DevFallback bool
}

type RateLimitConfig struct {
	PublicPerMinute   int
	LoginPer15Minutes int
	TrustedProxyCIDRs []string
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

type RetentionConfig struct {
	Window        time.Duration
	SweepInterval time.Duration
}

type JobsConfig struct {
	Enabled bool
}

type SeedConfig struct {
	Username string
	Password string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// IsProduction reports whether the server runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// fileConfig mirrors Config for the optional YAML file. Zero values mean "not set".
type fileConfig struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		URL            string `yaml:"url"`
		MaxConnections int    `yaml:"max_connections"`
		MaxIdle        int    `yaml:"max_idle"`
	} `yaml:"database"`
	Session struct {
		Secret        string `yaml:"secret"`
		LifetimeHours int    `yaml:"lifetime_hours"`
	} `yaml:"session"`
	Retention struct {
		Window        string `yaml:"window"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"retention"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads configuration from the environment, after loading a .env file if present.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from an optional YAML file; environment variables take precedence.
func LoadFile(path string) (Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := getEnv("ENVIRONMENT", or(fc.Environment, "development"))

	window, err := getEnvDuration("RETENTION_WINDOW", or(fc.Retention.Window, "72h"))
	if err != nil {
		return Config{}, err
	}
	sweepInterval, err := getEnvDuration("RETENTION_SWEEP_INTERVAL", or(fc.Retention.SweepInterval, "1h"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", or(fc.Server.Host, "0.0.0.0")),
			Port:    getEnvInt("SERVER_PORT", orInt(fc.Server.Port, 8080)),
			BaseURL: getEnv("SERVER_BASE_URL", or(fc.Server.BaseURL, "http://localhost:8080")),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", or(fc.Database.URL, "sqlite://orbit.db")),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", orInt(fc.Database.MaxConnections, 25)),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", orInt(fc.Database.MaxIdle, 5)),
		},
		Session: SessionConfig{
			Secret:     getEnv("SESSION_SECRET", fc.Session.Secret),
			Lifetime:   time.Duration(getEnvInt("SESSION_LIFETIME_HOURS", orInt(fc.Session.LifetimeHours, 24))) * time.Hour,
			CookieName: getEnv("SESSION_COOKIE_NAME", "orbit_session"),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 120),
			LoginPer15Minutes: getEnvInt("RATE_LIMIT_LOGIN", 10),
			TrustedProxyCIDRs: splitList(getEnv("TRUSTED_PROXY_CIDRS", "")),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", strings.Join(fc.CORS.AllowedOrigins, ","))),
		},
		Retention: RetentionConfig{
			Window:        window,
			SweepInterval: sweepInterval,
		},
		Jobs: JobsConfig{
			Enabled: getEnvBool("JOBS_ENABLED", true),
		},
		Seed: SeedConfig{
			Username: getEnv("SEED_USERNAME", ""),
			Password: getEnv("SEED_PASSWORD", ""),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "orbit"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", or(fc.Logging.Level, "info")),
			Format: getEnv("LOG_FORMAT", or(fc.Logging.Format, "json")),
		},
		Environment: env,
	}

	if cfg.Environment != "production" {
		cfg.CORS.AllowAllOrigins = len(cfg.CORS.AllowedOrigins) == 0
		if cfg.Seed.Username == "" && cfg.Seed.Password == "" {
			cfg.Seed.Username = "admin@admin.com"
			cfg.Seed.Password = "admin123"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, production or test, got %q", c.Environment)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Session.Secret == "" {
		if c.IsProduction() {
			return errors.New("SESSION_SECRET is required in production")
		}
		c.Session.Secret = DevSessionSecret
		c.Session.DevFallback = true
	}
	if c.IsProduction() && len(c.Session.Secret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters in production")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("SESSION_LIFETIME_HOURS must be positive")
	}
	if c.Retention.Window <= 0 {
		return errors.New("RETENTION_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	value := getEnv(key, fallback)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
