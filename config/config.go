package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds the environment driven configuration for the reply service.
type Config struct {
	Environment     string        `env:"ENVIRONMENT" envDefault:"production"`
	Port            int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// APISecret is the shared bearer token protecting every /api endpoint.
	APISecret string `env:"RICK_API_SECRET,required"`

	LLMProvider     string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel        string        `env:"LLM_MODEL"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	AnthropicURL    string        `env:"ANTHROPIC_BASE_URL"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	// DBPassword is the privileged store credential. When set it replaces the
	// password embedded in a postgres DATABASE_URL.
	DBPassword     string        `env:"DB_SERVICE_PASSWORD"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	DBOSEnabled bool   `env:"DBOS_ENABLED" envDefault:"false"`
	DBOSAppName string `env:"DBOS_APP_NAME" envDefault:"rick-api"`
}

// Load reads optional .env files and parses environment variables into Config.
// Real environment variables win over values from .env files.
func Load() (*Config, error) {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" && strings.TrimSpace(c.OpenAIBaseURL) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER is %q", ProviderOpenAI)
		}
	case ProviderAnthropic:
		if strings.TrimSpace(c.AnthropicAPIKey) == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is %q", ProviderAnthropic)
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.DBOSEnabled && c.DBDriver != DriverPostgres {
		return fmt.Errorf("DBOS_ENABLED requires DB_DRIVER %q", DriverPostgres)
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return fmt.Errorf("RICK_API_SECRET must not be blank")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsDevelopment reports whether the service runs in a local development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// DSN returns the data source name for the configured driver, with the
// privileged store credential applied to postgres URLs.
func (c *Config) DSN() (string, error) {
	if c.DBDriver != DriverPostgres || c.DBPassword == "" {
		return c.DatabaseURL, nil
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("DB_SERVICE_PASSWORD needs a postgres:// DATABASE_URL, got scheme %q", u.Scheme)
	}
	username := "postgres"
	if u.User != nil && u.User.Username() != "" {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, c.DBPassword)
	return u.String(), nil
}
