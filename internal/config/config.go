// Package config loads process settings for cmd/hecate from HECATE_*
// environment variables and converts them into library configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/giall/hecate"
	"github.com/giall/hecate/mail"
)

// Prefix is prepended to every variable name.
const Prefix = "HECATE_"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	HTTP  HTTPConfig  `envPrefix:"HTTP_"`
	Log   LogConfig   `envPrefix:"LOG_"`
	Store StoreConfig `envPrefix:"STORE_"`
	Redis RedisConfig `envPrefix:"REDIS_"`
	SMTP  SMTPConfig  `envPrefix:"SMTP_"`
	Web   WebConfig   `envPrefix:"WEB_"`
	Auth  AuthConfig
}

// HTTPConfig controls the listener and cookie attributes.
type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"true"`
	CookieDomain    string        `env:"COOKIE_DOMAIN"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// StoreConfig selects the account store.
type StoreConfig struct {
	Backend       string `env:"BACKEND" envDefault:"memory"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"hecate"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
}

// RedisConfig is optional. Without Addr, counters stay in process memory.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// SMTPConfig is optional. Without Host, links are logged instead of mailed.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"Hecate"`
}

// WebConfig describes the web client the links point at.
type WebConfig struct {
	Host    string `env:"HOST" envDefault:"http://localhost:4200"`
	AppName string `env:"APP_NAME" envDefault:"Hecate"`
}

// AuthConfig holds the engine tunables.
type AuthConfig struct {
	JWTSecret            string        `env:"JWT_SECRET"`
	Issuer               string        `env:"JWT_ISSUER" envDefault:"hecate"`
	AccessTTL            time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL           time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"1h"`
	EmailVerificationTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"1h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	MagicLoginTTL        time.Duration `env:"MAGIC_LOGIN_TTL" envDefault:"5m"`
	MaxSessions          int           `env:"MAX_SESSIONS" envDefault:"5"`
	SessionBackend       string        `env:"SESSION_BACKEND" envDefault:"account"`
	RateLimitEnabled     bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPoints      int           `env:"RATE_LIMIT_POINTS" envDefault:"5"`
	RateLimitDuration    time.Duration `env:"RATE_LIMIT_DURATION" envDefault:"15m"`
}

// Load parses the process environment.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom parses vars instead of the process environment. Keys carry the
// HECATE_ prefix.
func LoadFrom(vars map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix, Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings the library config does not cover.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("missing HECATE_JWT_SECRET environment variable")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return errors.New("missing HECATE_STORE_MONGO_URI environment variable")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("missing HECATE_STORE_POSTGRES_DSN environment variable")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Auth.SessionBackend == string(hecate.SessionBackendRedis) && c.Redis.Addr == "" {
		return errors.New("redis session backend requires HECATE_REDIS_ADDR")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("missing HECATE_SMTP_FROM environment variable")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Engine converts the settings into an engine configuration on top of
// hecate.DefaultConfig.
func (c Config) Engine() hecate.Config {
	out := hecate.DefaultConfig()

	out.JWT.Secret = []byte(c.Auth.JWTSecret)
	out.JWT.Issuer = c.Auth.Issuer
	out.JWT.AccessTTL = c.Auth.AccessTTL
	out.JWT.RefreshTTL = c.Auth.RefreshTTL
	out.JWT.EmailVerificationTTL = c.Auth.EmailVerificationTTL
	out.JWT.PasswordResetTTL = c.Auth.PasswordResetTTL
	out.JWT.MagicLoginTTL = c.Auth.MagicLoginTTL

	out.Session.MaxSessions = c.Auth.MaxSessions
	out.Session.Backend = hecate.SessionBackend(c.Auth.SessionBackend)
	if out.Session.RedisTTL < c.Auth.RefreshTTL {
		out.Session.RedisTTL = c.Auth.RefreshTTL
	}

	out.RateLimit.Enabled = c.Auth.RateLimitEnabled
	out.RateLimit.Points = c.Auth.RateLimitPoints
	out.RateLimit.Duration = c.Auth.RateLimitDuration

	return out
}

// Site returns the link settings for outgoing mail.
func (c Config) Site() mail.Site {
	site := mail.DefaultSite()
	site.Host = c.Web.Host
	site.AppName = c.Web.AppName
	return site
}

// Mailer returns SMTP settings and whether SMTP delivery is configured.
func (c Config) Mailer() (mail.SMTPConfig, bool) {
	return mail.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
	}, c.SMTP.Host != ""
}
