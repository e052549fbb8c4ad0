// Package auth issues and validates the bearer tokens that stand in for a
// set of SSH credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nanoweb/pkg/state"
)

const revokedPrefix = "revoked:"

var (
	// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidPayload means the token verified but lacks a required claim.
	ErrInvalidPayload = errors.New("invalid token payload")
	// ErrRevoked means the token was logged out.
	ErrRevoked = errors.New("token has been revoked")
)

// Session identifies the SSH target a token grants access to.
type Session struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Binding is the host identity the sealed password is tied to.
func (s Session) Binding() string {
	return s.Username + "@" + s.Host + ":" + strconv.Itoa(s.Port)
}

// Claims is the JWT payload.
type Claims struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Sealed   string `json:"pwd"`
	jwt.RegisteredClaims
}

// Manager signs, parses and revokes tokens.
type Manager struct {
	secret      []byte
	method      jwt.SigningMethod
	ttl         time.Duration
	sealer      *sealer
	revocations state.KV
	now         func() time.Time
}

// NewManager creates a token manager. revocations may be nil, in which case
// logout is accepted but tokens stay valid until they expire.
func NewManager(secret, algorithm string, ttl time.Duration, revocations state.KV) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is empty")
	}
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	s, err := newSealer([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &Manager{
		secret:      []byte(secret),
		method:      method,
		ttl:         ttl,
		sealer:      s,
		revocations: revocations,
		now:         time.Now,
	}, nil
}

// KeyFunc verifies the signing method and returns the HMAC key.
func (m *Manager) KeyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method")
	}
	return m.secret, nil
}

// Issue signs a token for sess.
func (m *Manager) Issue(sess Session) (string, error) {
	sealed, err := m.sealer.seal(sess.Password, sess.Binding())
	if err != nil {
		return "", fmt.Errorf("seal password: %w", err)
	}

	now := m.now()
	claims := &Claims{
		Host:     sess.Host,
		Port:     sess.Port,
		Username: sess.Username,
		Sealed:   sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sess.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.secret)
}

// Parse validates tokenStr and recovers the session it carries.
func (m *Manager) Parse(ctx context.Context, tokenStr string) (*Session, *Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), claims, m.KeyFunc,
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, nil, ErrInvalidToken
	}

	if claims.Host == "" || claims.Username == "" || claims.Port == 0 || claims.Sealed == "" {
		return nil, nil, ErrInvalidPayload
	}

	sess := &Session{Host: claims.Host, Port: claims.Port, Username: claims.Username}
	password, err := m.sealer.open(claims.Sealed, sess.Binding())
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	sess.Password = password

	if m.revocations != nil && claims.ID != "" {
		revoked, err := m.revocations.Exists(ctx, revokedPrefix+claims.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, nil, ErrRevoked
		}
	}

	return sess, claims, nil
}

// Revoke blocks the token identified by claims until it would have expired.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revocations == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(m.now())
	}
	if ttl <= 0 {
		return nil
	}
	return m.revocations.Set(ctx, revokedPrefix+claims.ID, m.now().UTC().Format(time.RFC3339), ttl)
}
