package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/service/auth"
	"github.com/innerpath/studio/internal/service/drain"
	"github.com/innerpath/studio/internal/service/trigger"
)

// TriggerRepo composes the stores the trigger service needs.
type TriggerRepo struct {
	*LeadRepo
	*CampaignRepo
	*QueueRepo
}

// NewTriggerRepo wires a trigger repository over one database handle.
func NewTriggerRepo(db *sql.DB) *TriggerRepo {
	return &TriggerRepo{NewLeadRepo(db), NewCampaignRepo(db), NewQueueRepo(db)}
}

// DrainRepo composes the stores the drainer needs.
type DrainRepo struct {
	*LeadRepo
	*CampaignRepo
	*QueueRepo
}

// NewDrainRepo wires a drain repository over one database handle.
func NewDrainRepo(db *sql.DB) *DrainRepo {
	return &DrainRepo{NewLeadRepo(db), NewCampaignRepo(db), NewQueueRepo(db)}
}

// GetLead translates the lead store's sentinel into the drainer's own, per
// the drain.Repository contract.
func (r *DrainRepo) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	lead, err := r.LeadRepo.GetLead(ctx, id)
	if errors.Is(err, trigger.ErrLeadNotFound) {
		return nil, drain.ErrLeadNotFound
	}
	return lead, err
}

// BillingRepo composes the stores the billing service needs.
type BillingRepo struct {
	*CommerceRepo
	*LeadRepo
}

// NewBillingRepo wires a billing repository over one database handle.
func NewBillingRepo(db *sql.DB) *BillingRepo {
	return &BillingRepo{NewCommerceRepo(db), NewLeadRepo(db)}
}

var (
	_ auth.Repository    = (*AuthRepo)(nil)
	_ trigger.Repository = (*TriggerRepo)(nil)
	_ drain.Repository   = (*DrainRepo)(nil)
	_ billing.Repository = (*BillingRepo)(nil)
)
