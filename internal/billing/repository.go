package billing

import (
	"context"

	"github.com/innerpath/studio/internal/domain"
)

// Repository defines the data access contract for purchases.
type Repository interface {
	// CreatePurchase inserts a purchase row.
	CreatePurchase(ctx context.Context, p *domain.Purchase) error

	// GetPurchaseByIntent returns the purchase for a payment intent ID.
	// Returns ErrPurchaseNotFound if none exists.
	GetPurchaseByIntent(ctx context.Context, paymentIntentID string) (*domain.Purchase, error)

	// UpdatePurchaseStatus flips a purchase's status.
	UpdatePurchaseStatus(ctx context.Context, id, status string) error

	// HasSucceededPurchase reports whether the email has any succeeded
	// purchase, optionally narrowed to one product ("" means any).
	HasSucceededPurchase(ctx context.Context, email, product string) (bool, error)

	// FindLeadByEmail returns the lead ID for an email, or "" when the
	// buyer is not a known lead.
	FindLeadByEmail(ctx context.Context, email string) (string, error)
}
