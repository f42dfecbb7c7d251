package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

var (
	// ErrInvalidToken covers bad signatures, malformed structure, expiry and
	// missing per-type fields.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenTypeMismatch is returned when a verified token carries a type
	// other than the one the caller expected.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Config holds the signing secret and per-type lifetimes. Lifetimes are fixed
// at construction; callers of Issue cannot choose one.
type Config struct {
	Secret               []byte
	Issuer               string
	Leeway               time.Duration
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	MagicLoginTTL        time.Duration

	// Now overrides the clock for issuance and expiry checks.
	Now func() time.Time
}

// Manager issues and decodes typed HS256 tokens.
type Manager struct {
	config Config
	ttl    map[TokenType]time.Duration
	parser *jwt.Parser
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ttl := map[TokenType]time.Duration{
		TypeAccess:            cfg.AccessTTL,
		TypeRefresh:           cfg.RefreshTTL,
		TypeEmailVerification: cfg.EmailVerificationTTL,
		TypePasswordReset:     cfg.PasswordResetTTL,
		TypeMagicLogin:        cfg.MagicLoginTTL,
	}
	for typ, d := range ttl {
		if d <= 0 {
			return nil, fmt.Errorf("invalid TTL configuration for %s tokens", typ)
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{
		config: cfg,
		ttl:    ttl,
		parser: jwt.NewParser(options...),
	}, nil
}

// TTL returns the configured lifetime for typ.
func (m *Manager) TTL(typ TokenType) time.Duration {
	return m.ttl[typ]
}

// Issue signs a token of type typ for the given payload.
func (m *Manager) Issue(typ TokenType, p Payload) (string, error) {
	claims := Claims{
		Type:      typ,
		SessionID: p.SessionID,
		Snapshot:  p.Snapshot,
		Email:     p.Email,
	}
	if err := claims.check(p.Subject); err != nil {
		return "", err
	}

	now := m.config.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   p.Subject,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl[typ])),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Decode verifies tokenStr and requires it to carry type expected.
//
// Signature, structure and expiry are checked before any claim is read, so a
// tampered token always yields ErrInvalidToken rather than a type mismatch.
func (m *Manager) Decode(tokenStr string, expected TokenType) (*Claims, error) {
	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Type.Known() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTokenTypeMismatch, expected, claims.Type)
	}
	if err := claims.check(claims.Subject); err != nil {
		return nil, err
	}

	return claims, nil
}
