package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/metrics"
	"github.com/innerpath/studio/internal/pkg/logger"
)

// Service implements campaign triggering business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a trigger service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Result summarizes what one trigger occurrence produced.
type Result struct {
	MatchedCampaigns int `json:"matched_campaigns"`
	Enqueued         int `json:"enqueued"`
	Deduped          int `json:"deduped"`
}

// Fire processes one trigger occurrence for a lead: records the behavior
// event, matches active campaigns, and enqueues one entry per active
// template. occurrenceID identifies this occurrence; firing the same
// occurrence twice is a no-op for the queue (dedup), while a fresh
// occurrence for the same lead re-enqueues.
//
// A missing lead is logged and swallowed: public endpoints must never fail
// because of campaign wiring.
func (s *Service) Fire(ctx context.Context, leadID string, t domain.TriggerType, occurrenceID string, payload Payload) (*Result, error) {
	if !t.Valid() {
		return nil, ErrInvalidTrigger
	}
	if occurrenceID == "" {
		occurrenceID = uuid.New().String()
	}

	lead, err := s.repo.GetLead(ctx, leadID)
	if err == ErrLeadNotFound {
		logger.Warn("trigger for unknown lead", "lead_id", leadID, "trigger", string(t))
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}

	// The behavior event is recorded whether or not any campaign matches.
	s.recordEvent(ctx, lead.ID, payload)

	campaigns, err := s.repo.ListActiveCampaignsByTrigger(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	res := &Result{}
	for i := range campaigns {
		c := &campaigns[i]
		if !c.Eligible(lead) {
			continue
		}
		res.MatchedCampaigns++
		if err := s.enqueueCampaign(ctx, lead, c, occurrenceID, res); err != nil {
			logger.Error("enqueue campaign failed",
				"campaign_id", c.ID, "lead_id", lead.ID, "error", err)
		}
	}

	logger.Info("trigger processed",
		"trigger", string(t),
		"lead_id", lead.ID,
		"matched", res.MatchedCampaigns,
		"enqueued", res.Enqueued,
		"deduped", res.Deduped)
	return res, nil
}

// FireManual enqueues one specific campaign for one specific lead, on admin
// request. Unlike Fire, a missing lead or campaign is an error, and the
// audience filter is not consulted: the admin picked the recipient.
func (s *Service) FireManual(ctx context.Context, campaignID, leadID, triggeredBy string) (*Result, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrCampaignInactive
	}
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	occurrenceID := uuid.New().String()
	s.recordEvent(ctx, lead.ID, ManualFire{CampaignID: campaignID, TriggeredBy: triggeredBy})

	res := &Result{MatchedCampaigns: 1}
	if err := s.enqueueCampaign(ctx, lead, c, occurrenceID, res); err != nil {
		return nil, err
	}
	logger.Info("manual trigger processed",
		"campaign_id", campaignID, "lead_id", lead.ID, "enqueued", res.Enqueued)
	return res, nil
}

func (s *Service) enqueueCampaign(ctx context.Context, lead *domain.Lead, c *domain.Campaign, occurrenceID string, res *Result) error {
	templates, err := s.repo.ListActiveTemplates(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	now := s.now()
	for i := range templates {
		tmpl := &templates[i]
		entry := &domain.QueueEntry{
			ID:           uuid.New().String(),
			LeadID:       lead.ID,
			TemplateID:   tmpl.ID,
			ScheduledFor: now.Add(time.Duration(tmpl.SendDelayMinutes) * time.Minute),
			Status:       domain.QueuePending,
			DedupKey:     domain.DedupKey(lead.ID, tmpl.ID, occurrenceID),
			CreatedAt:    now,
		}
		inserted, err := s.repo.EnqueueEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("enqueue template %s: %w", tmpl.ID, err)
		}
		if inserted {
			res.Enqueued++
			metrics.TriggerEnqueued.Inc()
		} else {
			res.Deduped++
			metrics.TriggerDeduped.Inc()
		}
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, leadID string, payload Payload) {
	if payload == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal behavior event", "error", err)
		return
	}
	ev := &domain.BehaviorEvent{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		EventType: payload.EventType(),
		EventData: data,
		CreatedAt: s.now(),
	}
	if err := s.repo.RecordBehaviorEvent(ctx, ev); err != nil {
		// Event logging must never block the trigger itself.
		logger.Error("record behavior event failed", "lead_id", leadID, "error", err)
	}
}
