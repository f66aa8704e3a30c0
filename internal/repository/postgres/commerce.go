package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/domain"
)

// CommerceRepo stores applications, waitlist entries, purchases, and
// affiliate tracking.
type CommerceRepo struct{ db *sql.DB }

// NewCommerceRepo creates a Postgres-backed commerce repository.
func NewCommerceRepo(db *sql.DB) *CommerceRepo { return &CommerceRepo{db: db} }

// ErrAffiliateNotFound is returned for unknown or inactive affiliate codes.
var ErrAffiliateNotFound = fmt.Errorf("affiliate not found")

func (r *CommerceRepo) CreateApplication(ctx context.Context, a *domain.Application) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_applications
			(id, lead_id, name, email, phone, goals, obstacles, budget, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.LeadID, a.Name, a.Email, a.Phone, a.Goals, a.Obstacles, a.Budget, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (r *CommerceRepo) ListApplications(ctx context.Context, status string) ([]domain.Application, error) {
	q := `
		SELECT id, lead_id, name, email, COALESCE(phone, ''), goals,
		       COALESCE(obstacles, ''), COALESCE(budget, ''), status, created_at
		FROM studio_applications`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Name, &a.Email, &a.Phone,
			&a.Goals, &a.Obstacles, &a.Budget, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *CommerceRepo) UpdateApplicationStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE studio_applications SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *CommerceRepo) CreateWaitlistEntry(ctx context.Context, w *domain.WaitlistEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_waitlist (id, lead_id, email, program, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email, program) DO NOTHING
	`, w.ID, w.LeadID, w.Email, w.Program, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}
	return nil
}

func (r *CommerceRepo) ListWaitlist(ctx context.Context, program string) ([]domain.WaitlistEntry, error) {
	q := `SELECT id, lead_id, email, program, created_at FROM studio_waitlist`
	var args []interface{}
	if program != "" {
		q += ` WHERE program = $1`
		args = append(args, program)
	}
	q += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		var w domain.WaitlistEntry
		if err := rows.Scan(&w.ID, &w.LeadID, &w.Email, &w.Program, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}

func (r *CommerceRepo) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	var leadID interface{}
	if p.LeadID != "" {
		leadID = p.LeadID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_purchases
			(id, lead_id, email, product, amount_cents, currency, payment_intent_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, p.ID, leadID, p.Email, p.Product, p.AmountCents, p.Currency, p.PaymentIntentID, p.Status)
	if err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

func (r *CommerceRepo) GetPurchaseByIntent(ctx context.Context, paymentIntentID string) (*domain.Purchase, error) {
	p := &domain.Purchase{}
	var leadID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, lead_id, email, product, amount_cents, currency, payment_intent_id, status, created_at
		FROM studio_purchases
		WHERE payment_intent_id = $1
	`, paymentIntentID).Scan(&p.ID, &leadID, &p.Email, &p.Product,
		&p.AmountCents, &p.Currency, &p.PaymentIntentID, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, billing.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	p.LeadID = leadID.String
	return p, nil
}

func (r *CommerceRepo) UpdatePurchaseStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE studio_purchases SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	if n == 0 {
		return billing.ErrPurchaseNotFound
	}
	return nil
}

func (r *CommerceRepo) HasSucceededPurchase(ctx context.Context, email, product string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM studio_purchases WHERE email = $1 AND status = 'succeeded'`
	args := []interface{}{email}
	if product != "" {
		q += ` AND product = $2`
		args = append(args, product)
	}
	q += `)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

func (r *CommerceRepo) CreateAffiliate(ctx context.Context, a *domain.Affiliate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_affiliates (id, name, email, code, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Name, a.Email, a.Code, a.Active, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create affiliate: %w", err)
	}
	return nil
}

func (r *CommerceRepo) GetAffiliateByCode(ctx context.Context, code string) (*domain.Affiliate, error) {
	a := &domain.Affiliate{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, code, active, created_at
		FROM studio_affiliates
		WHERE code = $1 AND active = TRUE
	`, code).Scan(&a.ID, &a.Name, &a.Email, &a.Code, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAffiliateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	return a, nil
}

func (r *CommerceRepo) ListAffiliates(ctx context.Context) ([]domain.Affiliate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, code, active, created_at
		FROM studio_affiliates
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list affiliates: %w", err)
	}
	defer rows.Close()

	var affiliates []domain.Affiliate
	for rows.Next() {
		var a domain.Affiliate
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Code, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan affiliate: %w", err)
		}
		affiliates = append(affiliates, a)
	}
	return affiliates, rows.Err()
}

func (r *CommerceRepo) RecordAffiliateClick(ctx context.Context, c *domain.AffiliateClick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_affiliate_clicks (id, affiliate_id, landing_path, referrer, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.AffiliateID, c.LandingPath, c.Referrer, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("record affiliate click: %w", err)
	}
	return nil
}

func (r *CommerceRepo) CountAffiliateClicks(ctx context.Context, affiliateID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM studio_affiliate_clicks WHERE affiliate_id = $1
	`, affiliateID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count affiliate clicks: %w", err)
	}
	return n, nil
}
