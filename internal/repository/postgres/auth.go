package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/service/auth"
)

// AuthRepo implements auth.Repository against PostgreSQL.
type AuthRepo struct{ db *sql.DB }

// NewAuthRepo creates a Postgres-backed auth repository.
func NewAuthRepo(db *sql.DB) *AuthRepo { return &AuthRepo{db: db} }

func (r *AuthRepo) CreateMagicLink(ctx context.Context, link *domain.MagicLink) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_magic_links (id, email, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, link.ID, link.Email, link.TokenHash, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("create magic link: %w", err)
	}
	return nil
}

func (r *AuthRepo) GetMagicLinkByTokenHash(ctx context.Context, tokenHash string) (*domain.MagicLink, error) {
	l := &domain.MagicLink{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, token_hash, expires_at, used_at, created_at
		FROM studio_magic_links
		WHERE token_hash = $1
	`, tokenHash).Scan(&l.ID, &l.Email, &l.TokenHash, &l.ExpiresAt, &l.UsedAt, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get magic link: %w", err)
	}
	return l, nil
}

// ConsumeMagicLink marks a link used. The used_at guard makes redemption
// at-most-once even under concurrent verify calls.
func (r *AuthRepo) ConsumeMagicLink(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE studio_magic_links
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("consume magic link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume magic link: %w", err)
	}
	if n == 0 {
		return auth.ErrAlreadyUsed
	}
	return nil
}

func (r *AuthRepo) CreateSession(ctx context.Context, s *domain.AdminSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_admin_sessions (id, email, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Email, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *AuthRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.AdminSession, error) {
	s := &domain.AdminSession{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, token_hash, expires_at, created_at
		FROM studio_admin_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(&s.ID, &s.Email, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, auth.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *AuthRepo) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM studio_admin_sessions WHERE token_hash = $1
	`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredAuth removes expired magic links and sessions. Called from the
// worker's housekeeping pass.
func (r *AuthRepo) DeleteExpiredAuth(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM studio_magic_links WHERE expires_at < NOW() - INTERVAL '24 hours'
	`); err != nil {
		return fmt.Errorf("purge magic links: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM studio_admin_sessions WHERE expires_at < NOW()
	`); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}
