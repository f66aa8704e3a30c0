package drain

import (
	"context"
	"time"

	"github.com/innerpath/studio/internal/domain"
)

// Repository defines the data access contract for the drainer.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ClaimDue atomically claims up to limit pending entries whose
	// scheduled_for is at or before now, flipping them to processing and
	// incrementing attempts. Two concurrent callers never receive the
	// same entry.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueEntry, error)

	// GetLead returns a lead by ID. Returns ErrLeadNotFound if it doesn't exist.
	GetLead(ctx context.Context, id string) (*domain.Lead, error)

	// GetTemplateWithCampaign returns a template and its owning campaign.
	// Returns ErrTemplateNotFound if either is missing.
	GetTemplateWithCampaign(ctx context.Context, templateID string) (*domain.Template, *domain.Campaign, error)

	// MarkProcessed persists resolved content and generation context and
	// flips the entry to processed.
	MarkProcessed(ctx context.Context, id, subject, body string, generationContext []byte) error

	// MarkSent flips the entry to sent.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed flips the entry to failed and records the error message.
	// The attempt was already counted by the claim.
	MarkFailed(ctx context.Context, id, errMsg string, at time.Time) error

	// InsertDelivery records a delivery receipt.
	InsertDelivery(ctx context.Context, d *domain.Delivery) error

	// ListFailed returns entries in failed status.
	ListFailed(ctx context.Context) ([]domain.QueueEntry, error)

	// ListStuck returns entries stuck in processing or processed whose last
	// activity is older than the cutoff.
	ListStuck(ctx context.Context, olderThan time.Time) ([]domain.QueueEntry, error)

	// Requeue flips an entry back to pending with a new scheduled_for.
	Requeue(ctx context.Context, id string, scheduledFor time.Time) error

	// MarkDeadLetter retires an entry permanently.
	MarkDeadLetter(ctx context.Context, id string) error
}
