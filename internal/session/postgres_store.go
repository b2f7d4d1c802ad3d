package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"offboarding/ocm/internal/auth"
)

// PostgresStore keeps sessions in the ocm_sessions table. It is used when several
// operator hosts share one credential.
type PostgresStore struct {
	db      *sql.DB
	profile string
}

func NewPostgresStore(db *sql.DB, profile string) *PostgresStore {
	if profile == "" {
		profile = DefaultProfile
	}
	return &PostgresStore{db: db, profile: profile}
}

func (s *PostgresStore) Save(ctx context.Context, sess Session) error {
	raw, err := encode(sess)
	if err != nil {
		return err
	}
	var expiresAt any
	if exp := sess.ExpiresAt(); !exp.IsZero() {
		expiresAt = exp
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ocm_sessions (profile, payload, token_hash, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (profile) DO UPDATE
		SET payload = EXCLUDED.payload,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, s.profile, raw, auth.HashToken(sess.AccessToken), expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Session, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM ocm_sessions
		WHERE profile = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, s.profile).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decode(raw), nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ocm_sessions WHERE profile = $1`, s.profile); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
