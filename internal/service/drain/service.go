package drain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/mailer"
	"github.com/innerpath/studio/internal/metrics"
	"github.com/innerpath/studio/internal/personalize"
	"github.com/innerpath/studio/internal/pkg/logger"
)

// Personalizer is the slice of the personalize package the drainer uses.
// A nil *personalize.Personalizer satisfies it and reports Enabled() false.
type Personalizer interface {
	Enabled() bool
	Rewrite(ctx context.Context, lead *domain.Lead, tmpl *domain.Template) (*personalize.Rewrite, error)
	Context(lead *domain.Lead, tmpl *domain.Template, rewriteErr error) personalize.GenerationContext
}

// Config tunes one drainer instance.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BackoffBase time.Duration
	Staleness   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Minute
	}
	if c.Staleness <= 0 {
		c.Staleness = 10 * time.Minute
	}
	return c
}

// Service processes the email queue.
type Service struct {
	repo         Repository
	personalizer Personalizer
	sender       mailer.Sender
	cfg          Config
	now          func() time.Time
}

// NewService creates a drain service.
func NewService(repo Repository, personalizer Personalizer, sender mailer.Sender, cfg Config) *Service {
	return &Service{
		repo:         repo,
		personalizer: personalizer,
		sender:       sender,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Stats summarizes one drain pass.
type Stats struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Drain claims and processes one batch of due entries. A failing entry is
// marked failed and the pass continues; only the claim itself can error out.
func (s *Service) Drain(ctx context.Context) (*Stats, error) {
	entries, err := s.repo.ClaimDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}

	stats := &Stats{Claimed: len(entries)}
	for i := range entries {
		if err := s.processEntry(ctx, &entries[i]); err != nil {
			stats.Failed++
			metrics.DrainProcessed.WithLabelValues("failed").Inc()
			logger.Error("queue entry failed",
				"entry_id", entries[i].ID, "attempt", entries[i].Attempts, "error", err)
			if markErr := s.repo.MarkFailed(ctx, entries[i].ID, err.Error(), s.now()); markErr != nil {
				logger.Error("mark failed errored", "entry_id", entries[i].ID, "error", markErr)
			}
			continue
		}
		stats.Sent++
		metrics.DrainProcessed.WithLabelValues("sent").Inc()
	}

	if stats.Claimed > 0 {
		logger.Info("drain pass complete",
			"claimed", stats.Claimed, "sent", stats.Sent, "failed", stats.Failed)
	}
	return stats, nil
}

func (s *Service) processEntry(ctx context.Context, e *domain.QueueEntry) error {
	lead, err := s.repo.GetLead(ctx, e.LeadID)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}
	tmpl, campaign, err := s.repo.GetTemplateWithCampaign(ctx, e.TemplateID)
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}

	subject, body, genCtx := s.resolveContent(ctx, lead, tmpl, campaign)

	subject = personalize.ApplyMergeTags(subject, lead)
	body = personalize.ApplyMergeTags(body, lead)

	genCtxJSON, _ := json.Marshal(genCtx)
	if err := s.repo.MarkProcessed(ctx, e.ID, subject, body, genCtxJSON); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	messageID, err := s.sender.Send(ctx, &mailer.Message{
		To:       lead.Email,
		ToName:   lead.DisplayName(),
		Subject:  subject,
		HTMLBody: body,
		TextBody: personalize.HTMLToText(body),
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	now := s.now()
	if err := s.repo.InsertDelivery(ctx, &domain.Delivery{
		ID:                uuid.New().String(),
		QueueEntryID:      e.ID,
		LeadID:            lead.ID,
		TemplateID:        tmpl.ID,
		Provider:          s.sender.Provider(),
		ProviderMessageID: messageID,
		SentAt:            now,
	}); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	if err := s.repo.MarkSent(ctx, e.ID, now); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// resolveContent produces the final subject/body. The LLM path runs only
// when the campaign opts in, a personalizer is configured, and the template
// carries instructions; any rewrite error falls back to the raw template.
func (s *Service) resolveContent(ctx context.Context, lead *domain.Lead, tmpl *domain.Template, campaign *domain.Campaign) (string, string, personalize.GenerationContext) {
	subject, body := tmpl.Subject, tmpl.Body

	wantRewrite := campaign.AIPersonalization &&
		s.personalizer != nil && s.personalizer.Enabled() &&
		tmpl.PersonalizationPrompt != nil && *tmpl.PersonalizationPrompt != ""
	if !wantRewrite {
		return subject, body, personalize.GenerationContext{}
	}

	rewrite, err := s.personalizer.Rewrite(ctx, lead, tmpl)
	if err != nil {
		metrics.PersonalizeFallbacks.Inc()
		logger.Warn("personalization fell back to raw template",
			"template_id", tmpl.ID, "lead_id", lead.ID, "error", err)
		return subject, body, s.personalizer.Context(lead, tmpl, err)
	}
	return rewrite.Subject, rewrite.Body, s.personalizer.Context(lead, tmpl, nil)
}

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	RequeuedFailed int `json:"requeued_failed"`
	RequeuedStuck  int `json:"requeued_stuck"`
	DeadLettered   int `json:"dead_lettered"`
}

// Sweep reconciles the queue: failed entries under the attempt budget are
// requeued with exponential backoff, entries stuck in processing/processed
// past the staleness threshold are treated the same way (crash recovery),
// and entries that exhausted their attempts go to dead_letter.
func (s *Service) Sweep(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{}
	now := s.now()

	failed, err := s.repo.ListFailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	for i := range failed {
		if s.retire(ctx, &failed[i], stats) {
			continue
		}
		if err := s.repo.Requeue(ctx, failed[i].ID, now.Add(s.backoff(failed[i].Attempts))); err != nil {
			logger.Error("requeue failed entry errored", "entry_id", failed[i].ID, "error", err)
			continue
		}
		stats.RequeuedFailed++
		metrics.DrainRequeued.WithLabelValues("failed").Inc()
	}

	stuck, err := s.repo.ListStuck(ctx, now.Add(-s.cfg.Staleness))
	if err != nil {
		return nil, fmt.Errorf("list stuck: %w", err)
	}
	for i := range stuck {
		if s.retire(ctx, &stuck[i], stats) {
			continue
		}
		if err := s.repo.Requeue(ctx, stuck[i].ID, now.Add(s.backoff(stuck[i].Attempts))); err != nil {
			logger.Error("requeue stuck entry errored", "entry_id", stuck[i].ID, "error", err)
			continue
		}
		stats.RequeuedStuck++
		metrics.DrainRequeued.WithLabelValues("stuck").Inc()
	}

	if stats.RequeuedFailed+stats.RequeuedStuck+stats.DeadLettered > 0 {
		logger.Info("reconciliation sweep complete",
			"requeued_failed", stats.RequeuedFailed,
			"requeued_stuck", stats.RequeuedStuck,
			"dead_lettered", stats.DeadLettered)
	}
	return stats, nil
}

// retire dead-letters an entry that exhausted its attempts. Reports whether
// the entry was retired.
func (s *Service) retire(ctx context.Context, e *domain.QueueEntry, stats *SweepStats) bool {
	if e.Attempts < s.cfg.MaxAttempts {
		return false
	}
	if err := s.repo.MarkDeadLetter(ctx, e.ID); err != nil {
		logger.Error("dead-letter errored", "entry_id", e.ID, "error", err)
		return true
	}
	stats.DeadLettered++
	metrics.DrainDeadLettered.Inc()
	logger.Warn("queue entry dead-lettered", "entry_id", e.ID, "attempts", e.Attempts)
	return true
}

// backoff returns the retry delay for an entry on its next attempt:
// base * 2^attempts.
func (s *Service) backoff(attempts int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
	}
	return d
}
