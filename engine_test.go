package hecate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	return cfg
}

type testEngine struct {
	*Engine
	outbox *notify.Recorder
	reg    *prometheus.Registry
}

func newTestEngine(t *testing.T, configure func(*Builder)) *testEngine {
	t.Helper()

	outbox := &notify.Recorder{}
	reg := prometheus.NewRegistry()
	b := New().
		WithConfig(testConfig()).
		WithAccountStore(memory.New()).
		WithNotifier(outbox).
		WithMetrics(reg)
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEngine{Engine: engine, outbox: outbox, reg: reg}
}

// waitMessage polls the outbox; notifications are delivered asynchronously.
func (te *testEngine) waitMessage(t *testing.T, kind notify.Kind, email string) notify.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := te.outbox.Last(kind, email); ok {
			return msg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s message for %s", kind, email)
	return notify.Message{}
}

func (te *testEngine) flowCount(flow, outcome string) float64 {
	return testutil.ToFloat64(te.metrics.Flows.WithLabelValues(flow, outcome))
}

func TestEngineSessionLifecycle(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	profile, err := te.Register(ctx, "alice01", "Alice@Example.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Email != "alice@example.com" || profile.Verified {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	login, err := te.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.RateLimit == nil || login.RateLimit.Limit != 5 {
		t.Fatalf("expected rate limit status, got %+v", login.RateLimit)
	}

	id, err := te.Authenticate(login.AccessToken)
	if err != nil || id != profile.ID {
		t.Fatalf("authenticate: id=%q err=%v", id, err)
	}
	if _, err := te.Authenticate(login.RefreshToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch, got %v", err)
	}

	rotated, err := te.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.SessionID == login.SessionID {
		t.Fatal("expected a new session id")
	}
	if _, err := te.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionNotMember) {
		t.Fatalf("expected ErrSessionNotMember on replay, got %v", err)
	}

	if err := te.Logout(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	sessions, err := te.Sessions(ctx, profile.ID)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %v", sessions)
	}

	if got := te.flowCount(flowLogin, "success"); got != 1 {
		t.Fatalf("expected 1 login success, got %v", got)
	}
	if got := te.flowCount(flowRefresh, "not_member"); got != 1 {
		t.Fatalf("expected 1 refresh not_member, got %v", got)
	}
}

func TestEngineEvictsOldestSession(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := te.Register(ctx, "bobby01", "bob@example.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	var first *LoginResult
	for i := 0; i < 6; i++ {
		res, err := te.Login(ctx, "bob@example.com", "password1")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if i == 0 {
			first = res
		}
	}

	sessions, err := te.Sessions(ctx, first.AccountID)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 5 {
		t.Fatalf("expected 5 sessions, got %d", len(sessions))
	}
	if _, err := te.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrSessionNotMember) {
		t.Fatalf("expected evicted session to fail, got %v", err)
	}
	if got := testutil.ToFloat64(te.metrics.Evictions); got != 1 {
		t.Fatalf("expected 1 eviction, got %v", got)
	}
}

func TestEngineLoginRateLimited(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	if _, err := te.Register(ctx, "carol01", "carol@example.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := te.Login(ctx, "carol@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := te.Login(ctx, "carol@example.com", "password1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rl.Remaining != 0 || rl.RetryAfter(time.Now()) <= 0 {
		t.Fatalf("unexpected rate limit error: %+v", rl)
	}
	if got := te.flowCount(flowLogin, "rate_limited"); got != 1 {
		t.Fatalf("expected 1 rate_limited login, got %v", got)
	}
}

func TestEngineRateLimitDisabled(t *testing.T) {
	te := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.RateLimit.Enabled = false
		b.WithConfig(cfg)
	})
	ctx := context.Background()

	if _, err := te.Register(ctx, "dave001", "dave@example.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 8; i++ {
		_, _ = te.Login(ctx, "dave@example.com", "wrong-pass")
	}
	res, err := te.Login(ctx, "dave@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.RateLimit != nil {
		t.Fatalf("expected no rate limit status, got %+v", res.RateLimit)
	}
}

func TestEngineRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	te := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.Session.Backend = SessionBackendRedis
		b.WithConfig(cfg).WithRedis(rdb)
	})
	ctx := WithClientIP(context.Background(), "198.51.100.1")

	profile, err := te.Register(ctx, "erin001", "erin@example.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := te.Login(ctx, "erin@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !mr.Exists("hs:" + profile.ID) {
		t.Fatal("expected session list in redis")
	}

	if _, err := te.Login(ctx, "erin@example.com", "nope-nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !mr.Exists("rl:ip:198.51.100.1") {
		t.Fatal("expected origin counter in redis")
	}

	if err := te.InvalidateAll(ctx, login.RefreshToken); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if mr.Exists("hs:" + profile.ID) {
		t.Fatal("expected empty session list to be removed")
	}
}

func TestEngineMagicLogin(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := te.Register(ctx, "frank01", "frank@example.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := te.RequestMagicLogin(ctx, "frank@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := te.RequestMagicLogin(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown address must look identical, got %v", err)
	}

	msg := te.waitMessage(t, notify.KindMagicLogin, "frank@example.com")
	pair, err := te.ConsumeMagicLogin(ctx, msg.Token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := te.Authenticate(pair.AccessToken); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := te.ConsumeMagicLogin(ctx, msg.Token); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}
}

func TestEnginePasswordResetEndsSessions(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := te.Register(ctx, "grace01", "grace@example.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := te.Login(ctx, "grace@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := te.RequestPasswordReset(ctx, "grace@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	msg := te.waitMessage(t, notify.KindPasswordReset, "grace@example.com")

	if err := te.ResetPassword(ctx, msg.Token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := te.ResetPassword(ctx, msg.Token, "password2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := te.ResetPassword(ctx, msg.Token, "password3"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}
	if _, err := te.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionNotMember) {
		t.Fatalf("expected sessions to be cleared, got %v", err)
	}
	if _, err := te.Login(ctx, "grace@example.com", "password2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestEngineEmailVerification(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	profile, err := te.Register(ctx, "heidi01", "heidi@example.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	msg := te.waitMessage(t, notify.KindEmailVerification, "heidi@example.com")
	if msg.Username != "heidi01" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if err := te.VerifyEmail(ctx, msg.Token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := te.VerifyEmail(ctx, msg.Token); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}
	got, err := te.Profile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !got.Verified {
		t.Fatal("expected verified profile")
	}
}

func TestEngineAccountManagement(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	profile, err := te.Register(ctx, "ivan001", "ivan@example.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := te.Register(ctx, "ivan002", "IVAN@example.com", "password1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := te.ChangePassword(ctx, profile.ID, "password1", "password1"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := te.ChangePassword(ctx, profile.ID, "password1", "password2"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if err := te.ChangeEmail(ctx, profile.ID, "ivan@new.example.com", "password2"); err != nil {
		t.Fatalf("change email: %v", err)
	}
	te.waitMessage(t, notify.KindEmailVerification, "ivan@new.example.com")

	if err := te.DeleteAccount(ctx, profile.ID, "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := te.DeleteAccount(ctx, profile.ID, "password2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := te.Profile(ctx, profile.ID); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted account, got %v", err)
	}
}

func TestEngineNotificationFailureCounted(t *testing.T) {
	fail := notify.SenderFunc(func(context.Context, notify.Message) error {
		return errors.New("smtp down")
	})
	te := newTestEngine(t, func(b *Builder) { b.WithNotifier(fail) })
	ctx := context.Background()

	if _, err := te.Register(ctx, "judy001", "judy@example.com", "password1"); err != nil {
		t.Fatalf("register must not report delivery failures, got %v", err)
	}
	te.Close()

	counter := te.metrics.Notifications.WithLabelValues(string(notify.KindEmailVerification), "failed")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Login(ctx, "a@example.com", "password1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.NotificationsDropped() != 0 {
		t.Fatal("expected zero drops")
	}
	e.Close()
}

func TestBuilderValidation(t *testing.T) {
	cases := []struct {
		name    string
		builder func() *Builder
		want    string
	}{
		{
			name:    "missing secret",
			builder: func() *Builder { return New().WithAccountStore(memory.New()) },
			want:    "JWT Secret",
		},
		{
			name:    "missing store",
			builder: func() *Builder { return New().WithConfig(testConfig()) },
			want:    "account store required",
		},
		{
			name: "redis backend without client",
			builder: func() *Builder {
				cfg := testConfig()
				cfg.Session.Backend = SessionBackendRedis
				return New().WithConfig(cfg).WithAccountStore(memory.New())
			},
			want: "requires redis client",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder().Build()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithAccountStore(memory.New())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
