// Package session persists the caller's bearer credential between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"offboarding/ocm/internal/identity"
)

var ErrNoSession = errors.New("no active session")

const DefaultProfile = "default"

type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresIn    int64     `json:"expiresIn,omitempty"`
	TokenType    string    `json:"tokenType"`
	SavedAt      time.Time `json:"savedAt,omitempty"`

	// Identity is the last identity resolved with this token.
	Identity *identity.Identity `json:"identity,omitempty"`
}

// ExpiresAt is zero when the grant carried no lifetime.
func (s Session) ExpiresAt() time.Time {
	if s.ExpiresIn <= 0 || s.SavedAt.IsZero() {
		return time.Time{}
	}
	return s.SavedAt.Add(time.Duration(s.ExpiresIn) * time.Second)
}

func (s Session) AuthorizationHeader() string {
	tokenType := s.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return tokenType + " " + s.AccessToken
}

// Store is implemented by every backend. Load returns (nil, nil) when nothing usable
// is stored, including when the stored bytes cannot be decoded.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

// Require loads the session or returns ErrNoSession.
func Require(ctx context.Context, store Store) (Session, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	if s == nil {
		return Session{}, ErrNoSession
	}
	return *s, nil
}

func encode(s Session) ([]byte, error) {
	if strings.TrimSpace(s.AccessToken) == "" {
		return nil, errors.New("session has no access token")
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	return json.Marshal(s)
}

// decode never fails; unusable input yields nil.
func decode(raw []byte) *Session {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return nil
	}
	return &s
}

// Memory keeps the session in process. Useful for one-shot commands and tests.
type Memory struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, s Session) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	return decode(m.raw), nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = nil
	return nil
}
