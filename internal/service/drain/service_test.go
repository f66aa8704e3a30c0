package drain_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/mailer"
	"github.com/innerpath/studio/internal/personalize"
	"github.com/innerpath/studio/internal/service/drain"
)

// memRepo is an in-memory drain repository for unit testing.
type memRepo struct {
	mu         sync.Mutex
	leads      map[string]*domain.Lead
	templates  map[string]*domain.Template
	campaigns  map[string]*domain.Campaign
	entries    map[string]*domain.QueueEntry
	deliveries []domain.Delivery
}

func newMemRepo() *memRepo {
	return &memRepo{
		leads:     make(map[string]*domain.Lead),
		templates: make(map[string]*domain.Template),
		campaigns: make(map[string]*domain.Campaign),
		entries:   make(map[string]*domain.QueueEntry),
	}
}

func (m *memRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.QueueEntry
	for _, e := range m.entries {
		if e.Status == domain.QueuePending && !e.ScheduledFor.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if len(due) > limit {
		due = due[:limit]
	}
	var out []domain.QueueEntry
	for _, e := range due {
		e.Status = domain.QueueProcessing
		e.Attempts++
		t := now
		e.LastAttemptAt = &t
		out = append(out, *e)
	}
	return out, nil
}

func (m *memRepo) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, drain.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) GetTemplateWithCampaign(_ context.Context, templateID string) (*domain.Template, *domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[templateID]
	if !ok {
		return nil, nil, drain.ErrTemplateNotFound
	}
	c, ok := m.campaigns[t.CampaignID]
	if !ok {
		return nil, nil, drain.ErrTemplateNotFound
	}
	tc, cc := *t, *c
	return &tc, &cc, nil
}

func (m *memRepo) MarkProcessed(_ context.Context, id, subject, body string, genCtx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status = domain.QueueProcessed
	e.ResolvedSubject = subject
	e.ResolvedBody = body
	e.GenerationContext = genCtx
	return nil
}

func (m *memRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status = domain.QueueSent
	e.SentAt = &at
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, id, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status = domain.QueueFailed
	e.ErrorMessage = errMsg
	e.LastAttemptAt = &at
	return nil
}

func (m *memRepo) InsertDelivery(_ context.Context, d *domain.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, *d)
	return nil
}

func (m *memRepo) ListFailed(_ context.Context) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if e.Status == domain.QueueFailed {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) ListStuck(_ context.Context, olderThan time.Time) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if (e.Status == domain.QueueProcessing || e.Status == domain.QueueProcessed) &&
			e.LastAttemptAt != nil && e.LastAttemptAt.Before(olderThan) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) Requeue(_ context.Context, id string, scheduledFor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status = domain.QueuePending
	e.ScheduledFor = scheduledFor
	return nil
}

func (m *memRepo) MarkDeadLetter(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id].Status = domain.QueueDeadLetter
	return nil
}

func strPtr(s string) *string { return &s }

// fixture wires a lead, campaign, template, and one queue entry.
func (m *memRepo) seed(ai bool, prompt *string, scheduledFor time.Time) (leadID, entryID string) {
	lead := &domain.Lead{
		ID: uuid.New().String(), Email: "ana@test.com",
		Name: strPtr("Ana Lima"), QuizResult: strPtr("visionary"), Source: domain.SourceQuiz,
	}
	campaign := &domain.Campaign{
		ID: uuid.New().String(), Name: "Nurture",
		TriggerType: domain.TriggerQuizCompletion, TargetAudience: domain.AudienceAll,
		Active: true, AIPersonalization: ai,
	}
	tmpl := &domain.Template{
		ID: uuid.New().String(), CampaignID: campaign.ID,
		Subject: "Hello {{first_name}}", Body: "<p>Hi {{name}}, you are a {{archetype}}.</p>",
		PersonalizationPrompt: prompt, Active: true,
	}
	entry := &domain.QueueEntry{
		ID: uuid.New().String(), LeadID: lead.ID, TemplateID: tmpl.ID,
		ScheduledFor: scheduledFor, Status: domain.QueuePending,
		DedupKey: uuid.New().String(),
	}
	m.leads[lead.ID] = lead
	m.campaigns[campaign.ID] = campaign
	m.templates[tmpl.ID] = tmpl
	m.entries[entry.ID] = entry
	return lead.ID, entry.ID
}

// fakeSender records sends and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Provider() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, *msg)
	return "msg-" + fmt.Sprint(len(f.sent)), nil
}

// fakePersonalizer returns a canned rewrite or error.
type fakePersonalizer struct {
	rewrite *personalize.Rewrite
	err     error
	calls   int
}

func (f *fakePersonalizer) Enabled() bool { return true }

func (f *fakePersonalizer) Rewrite(_ context.Context, _ *domain.Lead, _ *domain.Template) (*personalize.Rewrite, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rewrite, nil
}

func (f *fakePersonalizer) Context(_ *domain.Lead, _ *domain.Template, rewriteErr error) personalize.GenerationContext {
	gc := personalize.GenerationContext{Model: "fake", Fallback: rewriteErr != nil}
	if rewriteErr != nil {
		gc.Error = rewriteErr.Error()
	}
	return gc
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(repo *memRepo, p drain.Personalizer, sender mailer.Sender, cfg drain.Config) *drain.Service {
	return drain.NewService(repo, p, sender, cfg).WithClock(func() time.Time { return testNow })
}

func TestDrainSendsDueEntry(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	sender := &fakeSender{}
	svc := newService(repo, nil, sender, drain.Config{})

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Claimed != 1 || stats.Sent != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	e := repo.entries[entryID]
	if e.Status != domain.QueueSent {
		t.Fatalf("expected sent, got %s", e.Status)
	}
	if e.SentAt == nil {
		t.Fatal("sent_at not set")
	}
	// Merge tags resolved against the lead, defaults applied per field
	if e.ResolvedSubject != "Hello Ana" {
		t.Fatalf("unexpected subject %q", e.ResolvedSubject)
	}
	if e.ResolvedBody != "<p>Hi Ana Lima, you are a visionary.</p>" {
		t.Fatalf("unexpected body %q", e.ResolvedBody)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ana@test.com" || msg.TextBody != "Hi Ana Lima, you are a visionary." {
		t.Fatalf("unexpected message %+v", msg)
	}

	if len(repo.deliveries) != 1 {
		t.Fatalf("expected 1 delivery receipt, got %d", len(repo.deliveries))
	}
	d := repo.deliveries[0]
	if d.QueueEntryID != entryID || d.Provider != "fake" || d.ProviderMessageID == "" {
		t.Fatalf("unexpected delivery %+v", d)
	}
}

func TestDrainSkipsFutureEntries(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(30*time.Minute))
	svc := newService(repo, nil, &fakeSender{}, drain.Config{})

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("claimed future entry: %+v", stats)
	}
	if repo.entries[entryID].Status != domain.QueuePending {
		t.Fatal("future entry must stay pending")
	}
}

func TestDrainBatchLimit(t *testing.T) {
	repo := newMemRepo()
	for i := 0; i < 5; i++ {
		repo.seed(false, nil, testNow.Add(-time.Minute))
	}
	svc := newService(repo, nil, &fakeSender{}, drain.Config{BatchSize: 3})

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Claimed != 3 {
		t.Fatalf("expected 3 claimed, got %d", stats.Claimed)
	}
}

func TestDrainPersonalizationApplied(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(true, strPtr("Make it warm"), testNow.Add(-time.Minute))
	p := &fakePersonalizer{rewrite: &personalize.Rewrite{Subject: "Dear {{first_name}}", Body: "Rewritten for {{name}}"}}
	svc := newService(repo, p, &fakeSender{}, drain.Config{})

	if _, err := svc.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 rewrite call, got %d", p.calls)
	}
	e := repo.entries[entryID]
	// Merge tags are applied after the rewrite
	if e.ResolvedSubject != "Dear Ana" || e.ResolvedBody != "Rewritten for Ana Lima" {
		t.Fatalf("unexpected content %q / %q", e.ResolvedSubject, e.ResolvedBody)
	}
	if string(e.GenerationContext) == "" || e.Status != domain.QueueSent {
		t.Fatal("generation context or status missing")
	}
}

func TestDrainPersonalizationFallback(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(true, strPtr("Make it warm"), testNow.Add(-time.Minute))
	p := &fakePersonalizer{err: fmt.Errorf("rate limited")}
	svc := newService(repo, p, &fakeSender{}, drain.Config{})

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	// LLM failure is not fatal: the raw template goes out
	if stats.Sent != 1 {
		t.Fatalf("expected send despite LLM failure, got %+v", stats)
	}
	e := repo.entries[entryID]
	if e.ResolvedSubject != "Hello Ana" {
		t.Fatalf("expected raw template content, got %q", e.ResolvedSubject)
	}
	if want := `"fallback":true`; !strings.Contains(string(e.GenerationContext), want) {
		t.Fatalf("generation context %s missing %s", e.GenerationContext, want)
	}
}

func TestDrainPersonalizationSkippedWithoutPrompt(t *testing.T) {
	repo := newMemRepo()
	repo.seed(true, nil, testNow.Add(-time.Minute))
	p := &fakePersonalizer{rewrite: &personalize.Rewrite{Subject: "X", Body: "Y"}}
	svc := newService(repo, p, &fakeSender{}, drain.Config{})

	if _, err := svc.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if p.calls != 0 {
		t.Fatal("rewrite must not run for templates without a prompt")
	}
}

func TestDrainSendFailureMarksFailed(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	sender := &fakeSender{err: fmt.Errorf("smtp 550")}
	svc := newService(repo, nil, sender, drain.Config{})

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Failed != 1 || stats.Sent != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	e := repo.entries[entryID]
	if e.Status != domain.QueueFailed || e.Attempts != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !strings.Contains(e.ErrorMessage, "smtp 550") {
		t.Fatalf("error message %q missing cause", e.ErrorMessage)
	}
	if len(repo.deliveries) != 0 {
		t.Fatal("no delivery receipt for a failed send")
	}
}

func TestSweepRequeuesFailedWithBackoff(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	e := repo.entries[entryID]
	e.Status = domain.QueueFailed
	e.Attempts = 2

	svc := newService(repo, nil, &fakeSender{}, drain.Config{BackoffBase: 2 * time.Minute, MaxAttempts: 5})

	stats, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.RequeuedFailed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if e.Status != domain.QueuePending {
		t.Fatalf("expected pending, got %s", e.Status)
	}
	// 2min * 2^2 = 8min
	if want := testNow.Add(8 * time.Minute); !e.ScheduledFor.Equal(want) {
		t.Fatalf("scheduled_for %s, want %s", e.ScheduledFor, want)
	}
}

func TestSweepDeadLettersExhaustedEntries(t *testing.T) {
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	e := repo.entries[entryID]
	e.Status = domain.QueueFailed
	e.Attempts = 5

	svc := newService(repo, nil, &fakeSender{}, drain.Config{MaxAttempts: 5})

	stats, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.DeadLettered != 1 || stats.RequeuedFailed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if e.Status != domain.QueueDeadLetter {
		t.Fatalf("expected dead_letter, got %s", e.Status)
	}
}

func TestSweepRequeuesStuckEntries(t *testing.T) {
	repo := newMemRepo()
	_, stuckID := repo.seed(false, nil, testNow.Add(-time.Hour))
	stuck := repo.entries[stuckID]
	stuck.Status = domain.QueueProcessing
	old := testNow.Add(-30 * time.Minute)
	stuck.LastAttemptAt = &old

	_, freshID := repo.seed(false, nil, testNow.Add(-time.Hour))
	fresh := repo.entries[freshID]
	fresh.Status = domain.QueueProcessing
	recent := testNow.Add(-1 * time.Minute)
	fresh.LastAttemptAt = &recent

	svc := newService(repo, nil, &fakeSender{}, drain.Config{Staleness: 10 * time.Minute})

	stats, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.RequeuedStuck != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stuck.Status != domain.QueuePending {
		t.Fatalf("stuck entry not requeued: %s", stuck.Status)
	}
	if fresh.Status != domain.QueueProcessing {
		t.Fatalf("fresh processing entry must be left alone, got %s", fresh.Status)
	}
}

func TestSweepBoundsCrashedEntryRetries(t *testing.T) {
	// A drainer killed between claim and send leaves the entry in
	// processing. Each claim consumes an attempt, so repeated
	// crash/requeue cycles still hit the dead-letter bound.
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	svc := newService(repo, nil, &fakeSender{}, drain.Config{
		MaxAttempts: 2, Staleness: 10 * time.Minute, BackoffBase: time.Minute,
	})

	now := testNow
	svc.WithClock(func() time.Time { return now })
	for cycle := 0; cycle < 10; cycle++ {
		// Claim and abandon, as a crashed worker would. The hour between
		// claim and sweep clears both the staleness cutoff and any backoff.
		now = now.Add(time.Hour)
		if _, err := repo.ClaimDue(context.Background(), now, 10); err != nil {
			t.Fatalf("claim: %v", err)
		}
		now = now.Add(time.Hour)
		if _, err := svc.Sweep(context.Background()); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if repo.entries[entryID].Status == domain.QueueDeadLetter {
			break
		}
	}

	e := repo.entries[entryID]
	if e.Status != domain.QueueDeadLetter {
		t.Fatalf("entry never retired: status=%s attempts=%d", e.Status, e.Attempts)
	}
	if e.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", e.Attempts)
	}
}

func TestDrainThenRetryLifecycle(t *testing.T) {
	// failed → sweep requeues → next drain sends
	repo := newMemRepo()
	_, entryID := repo.seed(false, nil, testNow.Add(-time.Minute))
	sender := &fakeSender{err: fmt.Errorf("transient")}
	svc := newService(repo, nil, sender, drain.Config{BackoffBase: time.Minute, MaxAttempts: 5})

	if _, err := svc.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if _, err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	e := repo.entries[entryID]
	if e.Status != domain.QueuePending {
		t.Fatalf("expected pending after sweep, got %s", e.Status)
	}

	// Advance past the backoff, clear the fault, drain again
	later := e.ScheduledFor.Add(time.Second)
	svc.WithClock(func() time.Time { return later })
	sender.err = nil

	stats, err := svc.Drain(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected retry to send, got %+v", stats)
	}
	if e.Status != domain.QueueSent {
		t.Fatalf("expected sent, got %s", e.Status)
	}
}
