package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/giall/hecate"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	*httptest.Server
	client *http.Client
	outbox *notify.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := hecate.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	outbox := &notify.Recorder{}
	engine, err := hecate.New().
		WithConfig(cfg).
		WithAccountStore(memory.New()).
		WithNotifier(outbox).
		Build()
	require.NoError(t, err)

	router := NewRouter(engine, Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		AllowedOrigin: "http://localhost:4200",
	}, zerolog.Nop())

	srv := httptest.NewServer(router)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar

	t.Cleanup(func() {
		srv.Close()
		engine.Close()
	})
	return &testServer{Server: srv, client: client, outbox: outbox}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) registerAndLogin(t *testing.T, username, email string) *http.Response {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"username": username, "email": email, "password": "password1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": "password1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

func (s *testServer) waitToken(t *testing.T, kind notify.Kind, email string) string {
	t.Helper()
	var token string
	require.Eventually(t, func() bool {
		msg, ok := s.outbox.Last(kind, email)
		token = msg.Token
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return token
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, resp *http.Response) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return apiErr
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	login := s.registerAndLogin(t, "alice01", "alice@example.com")
	assert.Equal(t, "5", login.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", login.Header.Get("X-RateLimit-Remaining"))
	require.NotNil(t, cookieNamed(login, AccessCookie))
	require.NotNil(t, cookieNamed(login, RefreshCookie))
	assert.True(t, cookieNamed(login, RefreshCookie).HttpOnly)

	var user userResponse
	require.NoError(t, json.NewDecoder(login.Body).Decode(&user))
	assert.Equal(t, "alice01", user.Username)
	assert.False(t, user.Verified)

	me := s.do(t, http.MethodGet, "/api/user/me", nil)
	assert.Equal(t, http.StatusOK, me.StatusCode)

	refreshed := s.do(t, http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusOK, refreshed.StatusCode)

	logout := s.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, logout.StatusCode)

	after := s.do(t, http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, after.StatusCode)
}

func TestRefreshReplayIsForbidden(t *testing.T) {
	s := newTestServer(t)

	login := s.registerAndLogin(t, "bobby01", "bob@example.com")
	old := cookieNamed(login, RefreshCookie)
	require.NotNil(t, old)

	resp := s.do(t, http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.client.Jar, _ = cookiejar.New(nil)
	replay := s.do(t, http.MethodPost, "/api/auth/refresh", nil, &http.Cookie{Name: RefreshCookie, Value: old.Value})
	assert.Equal(t, http.StatusForbidden, replay.StatusCode)
	assert.Equal(t, "INVALID_SESSION", decodeError(t, replay).Code)
}

func TestLoginRateLimitedOverHTTP(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"username": "carol01", "email": "carol@example.com", "password": "password1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for i := 0; i < 5; i++ {
		resp := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email": "carol@example.com", "password": "wrong-pass",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}

	blocked := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "carol@example.com", "password": "password1",
	})
	assert.Equal(t, http.StatusTooManyRequests, blocked.StatusCode)
	assert.NotEmpty(t, blocked.Header.Get("Retry-After"))
	assert.Equal(t, "0", blocked.Header.Get("X-RateLimit-Remaining"))
}

func TestProtectedRoutesRequireAccessToken(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/user/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	login := s.registerAndLogin(t, "dave001", "dave@example.com")
	refresh := cookieNamed(login, RefreshCookie)
	require.NotNil(t, refresh)

	s.client.Jar, _ = cookiejar.New(nil)
	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/user/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+refresh.Value)
	mismatch, err := s.client.Do(req)
	require.NoError(t, err)
	defer mismatch.Body.Close()
	assert.Equal(t, http.StatusForbidden, mismatch.StatusCode)
	assert.Equal(t, "TOKEN_TYPE_MISMATCH", decodeError(t, mismatch).Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		code string
	}{
		{"short username", "/api/user/register", map[string]string{"username": "abc", "email": "a@example.com", "password": "password1"}, "INVALID_INPUT"},
		{"symbol in username", "/api/user/register", map[string]string{"username": "alice_01", "email": "a@example.com", "password": "password1"}, "INVALID_INPUT"},
		{"bad email", "/api/auth/login", map[string]string{"email": "not-an-email", "password": "password1"}, "INVALID_INPUT"},
		{"long password", "/api/auth/login", map[string]string{"email": "a@example.com", "password": "0123456789012345678901234567890"}, "INVALID_INPUT"},
		{"not json", "/api/auth/login", "plain", "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp).Code)
		})
	}
}

func TestMagicLoginOverHTTP(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/user/register", map[string]string{
		"username": "erin001", "email": "erin@example.com", "password": "password1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	unknown := s.do(t, http.MethodPost, "/api/auth/magic/login/request", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, unknown.StatusCode)

	req := s.do(t, http.MethodPost, "/api/auth/magic/login/request", map[string]string{"email": "erin@example.com"})
	require.Equal(t, http.StatusAccepted, req.StatusCode)
	token := s.waitToken(t, notify.KindMagicLogin, "erin@example.com")

	first := s.do(t, http.MethodPut, "/api/auth/magic/login", map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.NotNil(t, cookieNamed(first, AccessCookie))

	second := s.do(t, http.MethodPut, "/api/auth/magic/login", map[string]string{"token": token})
	assert.Equal(t, http.StatusGone, second.StatusCode)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "frank01", "frank@example.com")

	resp := s.do(t, http.MethodPost, "/api/user/password/reset/request", map[string]string{"email": "frank@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	token := s.waitToken(t, notify.KindPasswordReset, "frank@example.com")

	reset := s.do(t, http.MethodPut, "/api/user/password/reset", map[string]string{"token": token, "newPassword": "password2"})
	assert.Equal(t, http.StatusNoContent, reset.StatusCode)

	refresh := s.do(t, http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusForbidden, refresh.StatusCode, "reset must end every session")
}

func TestAccountManagementOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "grace01", "grace@example.com")

	verify := s.waitToken(t, notify.KindEmailVerification, "grace@example.com")
	resp := s.do(t, http.MethodPut, "/api/user/email/verify", map[string]string{"token": verify})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	reuse := s.do(t, http.MethodPut, "/api/user/password/change", map[string]string{
		"oldPassword": "password1", "newPassword": "password1",
	})
	assert.Equal(t, http.StatusBadRequest, reuse.StatusCode)
	assert.Equal(t, "PASSWORD_REUSE", decodeError(t, reuse).Code)

	change := s.do(t, http.MethodPut, "/api/user/email/change", map[string]string{
		"email": "grace@new.example.com", "password": "password1",
	})
	assert.Equal(t, http.StatusNoContent, change.StatusCode)

	wrong := s.do(t, http.MethodDelete, "/api/user/delete", map[string]string{"password": "password9"})
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	deleted := s.do(t, http.MethodDelete, "/api/user/delete", map[string]string{"password": "password1"})
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{hecate.ErrInvalidToken, http.StatusUnauthorized},
		{hecate.ErrInvalidCredentials, http.StatusUnauthorized},
		{hecate.ErrTokenTypeMismatch, http.StatusForbidden},
		{hecate.ErrSessionNotMember, http.StatusForbidden},
		{fmt.Errorf("register: %w", hecate.ErrConflict), http.StatusConflict},
		{hecate.ErrAlreadyConsumed, http.StatusGone},
		{hecate.ErrPasswordPolicy, http.StatusBadRequest},
		{errors.New("mongo: timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, classify(tt.err).status, "%v", tt.err)
	}
}

func TestRateLimitErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	writeEngineError(rec, zerolog.Nop(), &hecate.RateLimitError{
		Limit:   5,
		ResetAt: time.Now().Add(90 * time.Second),
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, []string{"90", "91"}, rec.Header().Get("Retry-After"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
}
