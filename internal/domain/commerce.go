package domain

import "time"

// Application is a coaching program application submitted from the public
// site. Status moves through a manual review flow in the admin dashboard.
type Application struct {
	ID        string    `json:"id" db:"id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Goals     string    `json:"goals" db:"goals"`
	Obstacles string    `json:"obstacles,omitempty" db:"obstacles"`
	Budget    string    `json:"budget,omitempty" db:"budget"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Application review statuses.
const (
	ApplicationNew      = "new"
	ApplicationReviewed = "reviewed"
	ApplicationAccepted = "accepted"
	ApplicationDeclined = "declined"
)

// WaitlistEntry records interest in a program that is not yet open.
type WaitlistEntry struct {
	ID        string    `json:"id" db:"id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	Email     string    `json:"email" db:"email"`
	Program   string    `json:"program" db:"program"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Purchase is a completed Stripe payment for a digital product or program.
type Purchase struct {
	ID              string    `json:"id" db:"id"`
	LeadID          string    `json:"lead_id" db:"lead_id"`
	Email           string    `json:"email" db:"email"`
	Product         string    `json:"product" db:"product"`
	AmountCents     int64     `json:"amount_cents" db:"amount_cents"`
	Currency        string    `json:"currency" db:"currency"`
	PaymentIntentID string    `json:"payment_intent_id" db:"payment_intent_id"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Purchase statuses mirror the Stripe payment intent lifecycle we care about.
const (
	PurchasePending   = "pending"
	PurchaseSucceeded = "succeeded"
	PurchaseFailed    = "failed"
	PurchaseRefunded  = "refunded"
)

// Affiliate is a referral partner with a stable tracking code.
type Affiliate struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Code      string    `json:"code" db:"code"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AffiliateClick is an insert-only record of one tracked referral visit.
type AffiliateClick struct {
	ID          string    `json:"id" db:"id"`
	AffiliateID string    `json:"affiliate_id" db:"affiliate_id"`
	LandingPath string    `json:"landing_path" db:"landing_path"`
	Referrer    string    `json:"referrer,omitempty" db:"referrer"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
