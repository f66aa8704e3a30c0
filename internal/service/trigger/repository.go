package trigger

import (
	"context"

	"github.com/innerpath/studio/internal/domain"
)

// Repository defines the data access contract for triggering.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetLead returns a lead by ID. Returns ErrLeadNotFound if it doesn't exist.
	GetLead(ctx context.Context, id string) (*domain.Lead, error)

	// GetCampaign returns a campaign by ID. Returns ErrCampaignNotFound if it
	// doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// ListActiveCampaignsByTrigger returns active campaigns with the given
	// trigger type.
	ListActiveCampaignsByTrigger(ctx context.Context, t domain.TriggerType) ([]domain.Campaign, error)

	// ListActiveTemplates returns a campaign's active templates ordered by
	// position.
	ListActiveTemplates(ctx context.Context, campaignID string) ([]domain.Template, error)

	// EnqueueEntry inserts a queue entry. Returns false with a nil error when
	// an entry with the same dedup key already exists.
	EnqueueEntry(ctx context.Context, e *domain.QueueEntry) (bool, error)

	// RecordBehaviorEvent appends a behavior event for a lead.
	RecordBehaviorEvent(ctx context.Context, ev *domain.BehaviorEvent) error
}
