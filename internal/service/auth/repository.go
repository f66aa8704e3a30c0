package auth

import (
	"context"

	"github.com/innerpath/studio/internal/domain"
)

// Repository defines the data access contract for magic links and sessions.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateMagicLink inserts a new magic link row.
	CreateMagicLink(ctx context.Context, link *domain.MagicLink) error

	// GetMagicLinkByTokenHash returns the link with the given token hash.
	// Returns ErrNotFound if it doesn't exist.
	GetMagicLinkByTokenHash(ctx context.Context, tokenHash string) (*domain.MagicLink, error)

	// ConsumeMagicLink marks the link used. Returns ErrAlreadyUsed when the
	// link was consumed by a concurrent redemption; redemption is
	// at-most-once per token.
	ConsumeMagicLink(ctx context.Context, id string) error

	// CreateSession inserts a new admin session row.
	CreateSession(ctx context.Context, session *domain.AdminSession) error

	// GetSessionByTokenHash returns the session with the given token hash.
	// Returns ErrUnauthenticated if it doesn't exist.
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.AdminSession, error)

	// DeleteSession removes a session row. Deleting a missing session is
	// not an error.
	DeleteSession(ctx context.Context, tokenHash string) error
}
