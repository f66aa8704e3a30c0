package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/service/trigger"
)

// LeadRepo stores leads and their behavior events.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, email, COALESCE(name, ''), source, quiz_result, quiz_answers, created_at`

func scanLead(row interface{ Scan(...interface{}) error }) (*domain.Lead, error) {
	l := &domain.Lead{}
	var name string
	if err := row.Scan(&l.ID, &l.Email, &name, &l.Source, &l.QuizResult, &l.QuizAnswers, &l.CreatedAt); err != nil {
		return nil, err
	}
	if name != "" {
		l.Name = &name
	}
	return l, nil
}

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_leads (id, email, name, source, quiz_result, quiz_answers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.ID, l.Email, l.Name, l.Source, l.QuizResult, l.QuizAnswers, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepo) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM studio_leads WHERE id = $1
	`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, trigger.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// GetByEmail returns the most recent lead for an email, or
// trigger.ErrLeadNotFound.
func (r *LeadRepo) GetByEmail(ctx context.Context, email string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM studio_leads
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, email)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, trigger.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by email: %w", err)
	}
	return l, nil
}

// FindLeadByEmail adapts GetByEmail to the billing repository contract:
// unknown buyers return "" rather than an error.
func (r *LeadRepo) FindLeadByEmail(ctx context.Context, email string) (string, error) {
	l, err := r.GetByEmail(ctx, email)
	if err == trigger.ErrLeadNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// ListFilter narrows a lead listing.
type ListFilter struct {
	Source string
	Limit  int
	Offset int
}

func (r *LeadRepo) List(ctx context.Context, f ListFilter) ([]domain.Lead, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM studio_leads`
	listQ := `SELECT ` + leadColumns + ` FROM studio_leads`
	var args []interface{}
	if f.Source != "" {
		countQ += ` WHERE source = $1`
		listQ += ` WHERE source = $1`
		args = append(args, f.Source)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	listQ += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *l)
	}
	return leads, total, rows.Err()
}

func (r *LeadRepo) RecordBehaviorEvent(ctx context.Context, ev *domain.BehaviorEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_behavior_events (id, lead_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.LeadID, ev.EventType, ev.EventData, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record behavior event: %w", err)
	}
	return nil
}

func (r *LeadRepo) ListBehaviorEvents(ctx context.Context, leadID string) ([]domain.BehaviorEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lead_id, event_type, event_data, created_at
		FROM studio_behavior_events
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list behavior events: %w", err)
	}
	defer rows.Close()

	var events []domain.BehaviorEvent
	for rows.Next() {
		var ev domain.BehaviorEvent
		if err := rows.Scan(&ev.ID, &ev.LeadID, &ev.EventType, &ev.EventData, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan behavior event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
