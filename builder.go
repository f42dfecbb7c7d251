package hecate

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/internal/flows"
	"github.com/giall/hecate/internal/rate"
	"github.com/giall/hecate/jwt"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/password"
	"github.com/giall/hecate/session"
)

// Builder assembles an Engine.
//
// Builder instances are configured during initialization and used once.
type Builder struct {
	config Config

	accounts     account.Store
	redis        redis.UniversalClient
	counters     rate.CounterStore
	sessionStore session.ListStore
	sender       notify.Sender
	logger       zerolog.Logger
	registerer   prometheus.Registerer
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the persistence backend. Required.
func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithRedis shares rate limit counters (and, with SessionBackendRedis,
// session lists) through client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCounterStore overrides the rate limiter backend.
func (b *Builder) WithCounterStore(store rate.CounterStore) *Builder {
	b.counters = store
	return b
}

// WithSessionStore overrides the session list backend selected by Config.Session.Backend.
func (b *Builder) WithSessionStore(store session.ListStore) *Builder {
	b.sessionStore = store
	return b
}

// WithNotifier sets where verification, reset and magic login links go.
func (b *Builder) WithNotifier(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics registers engine collectors on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithClock replaces time.Now for token issuance and the in-memory limiter.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger.With().Str("component", "hecate").Logger()

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		Secret:               cfg.JWT.Secret,
		Issuer:               cfg.JWT.Issuer,
		Leeway:               cfg.JWT.Leeway,
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.JWT.RefreshTTL,
		EmailVerificationTTL: cfg.JWT.EmailVerificationTTL,
		PasswordResetTTL:     cfg.JWT.PasswordResetTTL,
		MagicLoginTTL:        cfg.JWT.MagicLoginTTL,
		Now:                  now,
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIALS --------
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	var legacy []password.Scheme
	if cfg.Password.AcceptBcrypt {
		bc, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		legacy = append(legacy, bc)
	}
	verifier, err := password.NewVerifier(argon, legacy...)
	if err != nil {
		return nil, err
	}

	// -------- METRICS --------
	var metrics *Metrics
	if b.registerer != nil {
		metrics = NewMetrics(b.registerer)
	}

	// -------- SESSIONS --------
	listStore := b.sessionStore
	if listStore == nil {
		switch cfg.Session.Backend {
		case SessionBackendRedis:
			if b.redis == nil {
				return nil, errors.New("redis session backend requires redis client")
			}
			listStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.RedisTTL)
		default:
			listStore = session.NewAccountListStore(b.accounts)
		}
	}
	registry := session.NewRegistry(listStore, session.Config{
		Capacity:   cfg.Session.MaxSessions,
		MaxRetries: cfg.Session.MaxRetries,
		OnEvict: func(accountID string, evicted []string) {
			metrics.evicted(len(evicted))
			log.Debug().Str("account_id", accountID).Int("evicted", len(evicted)).Msg("oldest sessions evicted")
		},
	})

	// -------- RATE LIMITER --------
	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		counters := b.counters
		if counters == nil {
			if b.redis != nil {
				counters = rate.NewRedisStore(b.redis)
			} else {
				log.Warn().Msg("no redis client; login rate limiting uses process memory")
				counters = rate.NewMemoryStore(now)
			}
		}
		limiter, err = rate.New(counters, rate.Config{
			Points:   cfg.RateLimit.Points,
			Duration: cfg.RateLimit.Duration,
			Prefix:   cfg.RateLimit.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
	}

	// -------- NOTIFICATIONS --------
	sender := b.sender
	if sender == nil {
		sender = notify.Discard{}
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		BufferSize:  cfg.Notify.BufferSize,
		DropIfFull:  cfg.Notify.DropIfFull,
		SendTimeout: cfg.Notify.SendTimeout,
	}, sender,
		notify.WithLogger(log),
		notify.WithResultHook(metrics.notified),
	)

	e := &Engine{
		config:     cfg,
		accounts:   b.accounts,
		registry:   registry,
		limiter:    limiter,
		tokens:     tokens,
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    metrics,
		log:        log,
		now:        now,
	}
	e.deps = e.flowDeps()

	b.built = true
	return e, nil
}

func (e *Engine) flowDeps() flows.Deps {
	deps := flows.Deps{
		Accounts:    e.accounts,
		Sessions:    e.registry,
		Tokens:      e.tokens,
		Credentials: e.verifier,
		Notify:      e.enqueue,
		ClientIP:    ClientIPFromContext,
		Now:         e.now,
		Log:         e.log,
		Policy: flows.Policy{
			MinPasswordLength: e.config.Password.MinLength,
			MaxPasswordLength: e.config.Password.MaxLength,
			UpgradeOnLogin:    e.config.Password.UpgradeOnLogin,
		},
		Errors: flows.Errors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidToken:       ErrInvalidToken,
			TokenTypeMismatch:  ErrTokenTypeMismatch,
			InvalidCredentials: ErrInvalidCredentials,
			SessionNotMember:   ErrSessionNotMember,
			SessionContention:  ErrSessionContention,
			AlreadyConsumed:    ErrAlreadyConsumed,
			Conflict:           ErrConflict,
			PasswordPolicy:     ErrPasswordPolicy,
			PasswordReuse:      ErrPasswordReuse,
			InvalidInput:       ErrInvalidInput,
			RateLimited: func(o rate.Outcome) error {
				return &RateLimitError{Limit: o.Limit, Remaining: o.Remaining, ResetAt: o.ResetAt}
			},
		},
	}
	// A nil *rate.Limiter must not become a non-nil interface.
	if e.limiter != nil {
		deps.Limiter = e.limiter
	}
	return deps
}
