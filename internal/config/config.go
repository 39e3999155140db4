package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	StorageBackend    string        `mapstructure:"STORAGE_BACKEND"`
	S3Region          string        `mapstructure:"S3_REGION"`
	S3Endpoint        string        `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID     string        `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL   string        `mapstructure:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle    bool          `mapstructure:"S3_USE_PATH_STYLE"`
	SignedURLTTL      time.Duration `mapstructure:"SIGNED_URL_TTL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
}

const (
	StorageMemory = "memory"
	StorageS3     = "s3"
)

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_LIMIT", "REQUEST_TIMEOUT",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"STORAGE_BACKEND", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
	"S3_PUBLIC_BASE_URL", "S3_USE_PATH_STYLE", "SIGNED_URL_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "256M")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("STORAGE_BACKEND", StorageMemory)
	v.SetDefault("SIGNED_URL_TTL", time.Hour)
	v.SetDefault("KAFKA_TOPIC", "case-timeline")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token act as the development admin.")
	}

	return cfg, nil
}

// splitList handles comma-separated env values whether or not viper already
// split them, trimming blanks.
func splitList(parsed []string, raw string) []string {
	if len(parsed) <= 1 {
		parsed = strings.Split(raw, ",")
	}
	var out []string
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EventsEnabled reports whether timeline events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks that the configuration is safe to run. Outside development
// a token issuer (JWKS) or a signing key must be configured, and the S3
// backend needs a region.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthIssuer != "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ISSUER is set without AUTH_SIGNING_KEY")
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development and testing only")
	}

	switch c.StorageBackend {
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_BACKEND=memory is not allowed in production")
		}
	case StorageS3:
		if c.S3Region == "" {
			return fmt.Errorf("S3_REGION is required when STORAGE_BACKEND is %q", StorageS3)
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StorageS3, c.StorageBackend)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive, got %s", c.SignedURLTTL)
	}
	if c.EventsEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}
