package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hormur/event-syndicator/internal/models"
)

// Dispatch modes.
const (
	ModeQueue    = "queue"
	ModeParallel = "parallel"
)

// Config holds everything the drivers need. Credentials are kept in their own store.
type Config struct {
	Host      string
	Port      string
	Mode      string
	LogLevel  string
	Platforms []models.Platform

	RabbitMQURL        string
	RabbitMQExchange   string
	QueuePrefix        string
	WorkersPerPlatform int
	JobRetention       time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	MinIOEndpoint       string
	MinIOPublicEndpoint string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOBucket         string
	MinIOUseSSL         bool

	ChromePath        string
	BrowserHeadless   bool
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	SubmitTimeout     time.Duration
	StrictVerify      bool

	SSMCredentialsPrefix string

	Credentials CredentialStore
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	platforms, err := models.ParsePlatforms(getenv("ENABLED_PLATFORMS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENABLED_PLATFORMS: %w", err)
	}

	cfg := &Config{
		Host:      env("GATEWAY_HOST", "0.0.0.0"),
		Port:      env("GATEWAY_PORT", env("PORT", "3000")),
		Mode:      env("DISPATCH_MODE", ModeQueue),
		LogLevel:  env("LOG_LEVEL", "info"),
		Platforms: platforms,

		RabbitMQURL:      getenv("RABBITMQ_URL"),
		RabbitMQExchange: env("RABBITMQ_EXCHANGE", "hormur.events"),
		QueuePrefix:      env("QUEUE_PREFIX", "q.publish"),

		DBHost:     getenv("DB_HOST"),
		DBPort:     env("DB_PORT", "5432"),
		DBUser:     env("DB_USER", "postgres"),
		DBPassword: env("DB_PASSWORD", "postgres"),
		DBName:     env("DB_NAME", "postgres"),
		DBSSLMode:  env("DB_SSL_MODE", "disable"),

		MinIOEndpoint:       getenv("MINIO_ENDPOINT"),
		MinIOPublicEndpoint: getenv("MINIO_PUBLIC_ENDPOINT"),
		MinIOAccessKey:      getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:      getenv("MINIO_SECRET_KEY"),
		MinIOBucket:         env("MINIO_BUCKET_NAME", "publish-screenshots"),
		MinIOUseSSL:         getenv("MINIO_USE_SSL") == "true",

		ChromePath:      getenv("CHROME_PATH"),
		BrowserHeadless: env("BROWSER_HEADLESS", "true") != "false",
		StrictVerify:    getenv("STRICT_VERIFY") == "true",

		SSMCredentialsPrefix: env("SSM_CREDENTIALS_PREFIX", "/hormur/credentials"),
	}

	if cfg.Mode != ModeQueue && cfg.Mode != ModeParallel {
		return nil, fmt.Errorf("invalid DISPATCH_MODE %q: want %q or %q", cfg.Mode, ModeQueue, ModeParallel)
	}

	if cfg.WorkersPerPlatform, err = strconv.Atoi(env("WORKERS_PER_PLATFORM", "1")); err != nil || cfg.WorkersPerPlatform < 1 {
		return nil, fmt.Errorf("invalid WORKERS_PER_PLATFORM %q", getenv("WORKERS_PER_PLATFORM"))
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"JOB_RETENTION", "168h", &cfg.JobRetention},
		{"NAVIGATION_TIMEOUT", "30s", &cfg.NavigationTimeout},
		{"STEP_TIMEOUT", "10s", &cfg.StepTimeout},
		{"SUBMIT_TIMEOUT", "30s", &cfg.SubmitTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(env(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	cfg.Credentials = loadCredentials(platforms, getenv)

	return cfg, nil
}

// Validate checks presence of the settings the selected mode depends on.
func (c *Config) Validate() error {
	if c.Mode == ModeQueue && c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required in %s mode", ModeQueue)
	}
	return c.Credentials.Require(c.Platforms)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// PostgresEnabled reports whether a database host was configured.
func (c *Config) PostgresEnabled() bool { return c.DBHost != "" }

// MinIOEnabled reports whether object storage was configured.
func (c *Config) MinIOEnabled() bool { return c.MinIOEndpoint != "" }
