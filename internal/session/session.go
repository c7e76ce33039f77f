// Package session issues and resolves login sessions.
//
// A session is an HS256 JWT whose ID is kept in an allow-list with the same
// TTL, so logging out revokes a token before it expires.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid is returned for malformed, expired or revoked tokens.
var ErrInvalid = errors.New("invalid session")

// Store keeps the IDs of live sessions.
type Store interface {
	Put(ctx context.Context, id string, userID int64, ttl time.Duration) error
	// Get returns the user of a live session or ErrInvalid.
	Get(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// Claims are the JWT claims of a session token.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Session is a resolved token.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// Manager signs and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	store  Store
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(secret string, ttl time.Duration, store Store) (*Manager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.Errorf("invalid session ttl %s", ttl)
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "kitchen",
		store:  store,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue starts a session for userID and returns its signed token.
func (m *Manager) Issue(ctx context.Context, userID int64) (string, *Session, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	if err := m.store.Put(ctx, s.ID, userID, m.ttl); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return signed, s, nil
}

// Resolve verifies a token and checks that it was not revoked.
func (m *Manager) Resolve(ctx context.Context, raw string) (*Session, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	userID, err := m.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, ErrInvalid
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if userID != claims.UserID {
		return nil, ErrInvalid
	}
	return &Session{
		ID:        claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends the session of a token. Invalid tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	claims, err := m.parse(raw)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || claims.ID == "" {
		return nil, ErrInvalid
	}
	return &claims, nil
}
