package hecate

import (
	"errors"
	"fmt"
	"time"

	"github.com/giall/hecate/password"
	"github.com/giall/hecate/session"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Notify    NotifyConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing secret and the fixed lifetime of each token type.
type JWTConfig struct {
	Secret               []byte
	Issuer               string
	Leeway               time.Duration
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	MagicLoginTTL        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend selects where session lists live.
type SessionBackend string

const (
	// SessionBackendAccount keeps the list on the account record.
	SessionBackendAccount SessionBackend = "account"
	// SessionBackendRedis keeps the list in Redis, keyed by account id.
	SessionBackendRedis SessionBackend = "redis"
)

// SessionConfig bounds the per-account session list.
type SessionConfig struct {
	MaxSessions int
	MaxRetries  int
	Backend     SessionBackend
	RedisPrefix string
	// RedisTTL expires idle lists. It should be at least JWT.RefreshTTL.
	RedisTTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig is the login attempt budget per identity and per origin.
type RateLimitConfig struct {
	Enabled     bool
	Points      int
	Duration    time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes hashing and the secret policy.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int

	MinLength int
	MaxLength int

	// AcceptBcrypt verifies bcrypt hashes imported from older deployments.
	AcceptBcrypt   bool
	BcryptCost     int
	UpgradeOnLogin bool
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig controls the asynchronous notification queue.
type NotifyConfig struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// DefaultConfig returns production defaults. JWT.Secret is left empty and
// must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:               "hecate",
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           time.Hour,
			EmailVerificationTTL: time.Hour,
			PasswordResetTTL:     time.Hour,
			MagicLoginTTL:        5 * time.Minute,
		},
		Session: SessionConfig{
			MaxSessions: session.DefaultCapacity,
			MaxRetries:  16,
			Backend:     SessionBackendAccount,
			RedisPrefix: "hs",
			RedisTTL:    time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Points:      5,
			Duration:    15 * time.Minute,
			RedisPrefix: "rl",
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			MinLength:        8,
			MaxLength:        30,
			AcceptBcrypt:     true,
			BcryptCost:       10,
			UpgradeOnLogin:   true,
		},
		Notify: NotifyConfig{
			BufferSize:  256,
			DropIfFull:  true,
			SendTimeout: 10 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.JWT.Secret != nil {
		out.JWT.Secret = append([]byte(nil), cfg.JWT.Secret...)
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	ttls := map[string]time.Duration{
		"AccessTTL":            c.JWT.AccessTTL,
		"RefreshTTL":           c.JWT.RefreshTTL,
		"EmailVerificationTTL": c.JWT.EmailVerificationTTL,
		"PasswordResetTTL":     c.JWT.PasswordResetTTL,
		"MagicLoginTTL":        c.JWT.MagicLoginTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("JWT %s must be > 0", name)
		}
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.MaxSessions <= 0 {
		return errors.New("Session MaxSessions must be > 0")
	}
	if c.Session.MaxRetries <= 0 {
		return errors.New("Session MaxRetries must be > 0")
	}
	switch c.Session.Backend {
	case SessionBackendAccount:
	case SessionBackendRedis:
		if c.Session.RedisTTL < c.JWT.RefreshTTL {
			return errors.New("Session RedisTTL must be >= JWT RefreshTTL")
		}
	default:
		return errors.New("Session Backend must be 'account' or 'redis'")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Points <= 0 {
			return errors.New("RateLimit Points must be > 0")
		}
		if c.RateLimit.Duration <= 0 {
			return errors.New("RateLimit Duration must be > 0")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MaxLength*4 > c.Password.MaxPasswordBytes {
		return errors.New("Password MaxPasswordBytes too small for MaxLength")
	}

	// Notify
	if c.Notify.BufferSize <= 0 {
		return errors.New("Notify BufferSize must be > 0")
	}
	if c.Notify.SendTimeout <= 0 {
		return errors.New("Notify SendTimeout must be > 0")
	}

	return nil
}
