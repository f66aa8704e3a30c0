package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/service/drain"
	"github.com/innerpath/studio/internal/service/trigger"
)

// CampaignRepo stores campaigns and their template sequences.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, trigger_type, target_audience, audience_filter,
	active, ai_personalization, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var filter []byte
	if err := row.Scan(&c.ID, &c.Name, &c.TriggerType, &c.TargetAudience, &filter,
		&c.Active, &c.AIPersonalization, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &c.AudienceFilter); err != nil {
			return nil, fmt.Errorf("decode audience filter: %w", err)
		}
	}
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	filter, err := json.Marshal(c.AudienceFilter)
	if err != nil {
		return fmt.Errorf("encode audience filter: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO studio_campaigns
			(id, name, trigger_type, target_audience, audience_filter,
			 active, ai_personalization, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, c.TriggerType, c.TargetAudience, filter,
		c.Active, c.AIPersonalization, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+` FROM studio_campaigns WHERE id = $1
	`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, trigger.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM studio_campaigns ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func (r *CampaignRepo) ListActiveCampaignsByTrigger(ctx context.Context, t domain.TriggerType) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM studio_campaigns
		WHERE active = TRUE AND trigger_type = $1
		ORDER BY created_at
	`, t)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func collectCampaigns(rows *sql.Rows) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// CampaignUpdate carries the mutable campaign fields. Nil means unchanged.
type CampaignUpdate struct {
	Name              *string
	TriggerType       *domain.TriggerType
	TargetAudience    *domain.TargetAudience
	AudienceFilter    *domain.AudienceFilter
	Active            *bool
	AIPersonalization *bool
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u CampaignUpdate) error {
	sets := []string{"updated_at = NOW()"}
	var args []interface{}
	idx := 1

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.TriggerType != nil {
		add("trigger_type", *u.TriggerType)
	}
	if u.TargetAudience != nil {
		add("target_audience", *u.TargetAudience)
	}
	if u.AudienceFilter != nil {
		filter, err := json.Marshal(*u.AudienceFilter)
		if err != nil {
			return fmt.Errorf("encode audience filter: %w", err)
		}
		add("audience_filter", filter)
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	if u.AIPersonalization != nil {
		add("ai_personalization", *u.AIPersonalization)
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE studio_campaigns SET %s WHERE id = $%d
	`, strings.Join(sets, ", "), idx), args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n == 0 {
		return trigger.ErrCampaignNotFound
	}
	return nil
}

const templateColumns = `id, campaign_id, subject, body, personalization_prompt,
	send_delay_minutes, position, active, created_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*domain.Template, error) {
	t := &domain.Template{}
	if err := row.Scan(&t.ID, &t.CampaignID, &t.Subject, &t.Body, &t.PersonalizationPrompt,
		&t.SendDelayMinutes, &t.Position, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *CampaignRepo) CreateTemplate(ctx context.Context, t *domain.Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_templates
			(id, campaign_id, subject, body, personalization_prompt,
			 send_delay_minutes, position, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.CampaignID, t.Subject, t.Body, t.PersonalizationPrompt,
		t.SendDelayMinutes, t.Position, t.Active, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListActiveTemplates(ctx context.Context, campaignID string) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM studio_templates
		WHERE campaign_id = $1 AND active = TRUE
		ORDER BY position
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (r *CampaignRepo) ListTemplates(ctx context.Context, campaignID string) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM studio_templates
		WHERE campaign_id = $1
		ORDER BY position
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (r *CampaignRepo) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM studio_templates WHERE id = $1
	`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, drain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// GetTemplateWithCampaign returns a template joined to its campaign in one
// round trip. The drainer calls this per queue entry.
func (r *CampaignRepo) GetTemplateWithCampaign(ctx context.Context, templateID string) (*domain.Template, *domain.Campaign, error) {
	t := &domain.Template{}
	c := &domain.Campaign{}
	var filter []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.campaign_id, t.subject, t.body, t.personalization_prompt,
		       t.send_delay_minutes, t.position, t.active, t.created_at,
		       c.id, c.name, c.trigger_type, c.target_audience, c.audience_filter,
		       c.active, c.ai_personalization, c.created_at, c.updated_at
		FROM studio_templates t
		JOIN studio_campaigns c ON c.id = t.campaign_id
		WHERE t.id = $1
	`, templateID).Scan(
		&t.ID, &t.CampaignID, &t.Subject, &t.Body, &t.PersonalizationPrompt,
		&t.SendDelayMinutes, &t.Position, &t.Active, &t.CreatedAt,
		&c.ID, &c.Name, &c.TriggerType, &c.TargetAudience, &filter,
		&c.Active, &c.AIPersonalization, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, drain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get template with campaign: %w", err)
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &c.AudienceFilter); err != nil {
			return nil, nil, fmt.Errorf("decode audience filter: %w", err)
		}
	}
	return t, c, nil
}

// TemplateUpdate carries the mutable template fields. Nil means unchanged.
type TemplateUpdate struct {
	Subject               *string
	Body                  *string
	PersonalizationPrompt *string
	SendDelayMinutes      *int
	Position              *int
	Active                *bool
}

func (r *CampaignRepo) UpdateTemplate(ctx context.Context, id string, u TemplateUpdate) error {
	var sets []string
	var args []interface{}
	idx := 1

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.Body != nil {
		add("body", *u.Body)
	}
	if u.PersonalizationPrompt != nil {
		add("personalization_prompt", *u.PersonalizationPrompt)
	}
	if u.SendDelayMinutes != nil {
		add("send_delay_minutes", *u.SendDelayMinutes)
	}
	if u.Position != nil {
		add("position", *u.Position)
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE studio_templates SET %s WHERE id = $%d
	`, strings.Join(sets, ", "), idx), args...)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n == 0 {
		return drain.ErrTemplateNotFound
	}
	return nil
}
