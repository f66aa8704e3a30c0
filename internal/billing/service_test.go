package billing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/domain"
	"github.com/stripe/stripe-go/v76"
)

type memRepo struct {
	mu        sync.Mutex
	purchases map[string]*domain.Purchase // keyed by payment intent ID
	leads     map[string]string           // email -> lead ID
}

func newMemRepo() *memRepo {
	return &memRepo{
		purchases: make(map[string]*domain.Purchase),
		leads:     make(map[string]string),
	}
}

func (m *memRepo) CreatePurchase(_ context.Context, p *domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.purchases[p.PaymentIntentID] = &cp
	return nil
}

func (m *memRepo) GetPurchaseByIntent(_ context.Context, intentID string) (*domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[intentID]
	if !ok {
		return nil, billing.ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) UpdatePurchaseStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return billing.ErrPurchaseNotFound
}

func (m *memRepo) HasSucceededPurchase(_ context.Context, email, product string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.Email != email || p.Status != domain.PurchaseSucceeded {
			continue
		}
		if product == "" || p.Product == product {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) FindLeadByEmail(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[email], nil
}

// fakeIntents fabricates Stripe payment intents without the network.
type fakeIntents struct {
	created []*stripe.PaymentIntentParams
	status  stripe.PaymentIntentStatus
	err     error
}

func (f *fakeIntents) Create(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return &stripe.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", len(f.created)),
		ClientSecret: "cs_test",
		Amount:       *params.Amount,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (f *fakeIntents) Get(id string) (*stripe.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: id, Status: f.status}, nil
}

func TestCreateIntent(t *testing.T) {
	repo := newMemRepo()
	repo.leads["maya@test.com"] = "lead-1"
	intents := &fakeIntents{}
	svc := billing.NewService(repo, intents)

	intent, err := svc.CreateIntent(context.Background(), "  Maya@Test.com ", "masterclass")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.AmountCents != 9700 || intent.Currency != "usd" {
		t.Errorf("unexpected intent %+v", intent)
	}
	if intent.ClientSecret == "" {
		t.Error("client secret missing")
	}

	// Amount comes from the catalog, not the request
	if *intents.created[0].Amount != 9700 {
		t.Errorf("stripe amount = %d", *intents.created[0].Amount)
	}

	p, err := repo.GetPurchaseByIntent(context.Background(), intent.PaymentIntentID)
	if err != nil {
		t.Fatalf("purchase row missing: %v", err)
	}
	if p.Status != domain.PurchasePending || p.Email != "maya@test.com" || p.LeadID != "lead-1" {
		t.Errorf("unexpected purchase %+v", p)
	}
}

func TestCreateIntentUnknownProduct(t *testing.T) {
	svc := billing.NewService(newMemRepo(), &fakeIntents{})
	if _, err := svc.CreateIntent(context.Background(), "x@test.com", "yacht"); err != billing.ErrUnknownProduct {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestConfirmSucceeded(t *testing.T) {
	repo := newMemRepo()
	intents := &fakeIntents{status: stripe.PaymentIntentStatusSucceeded}
	svc := billing.NewService(repo, intents)

	intent, err := svc.CreateIntent(context.Background(), "maya@test.com", "workshop")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	p, err := svc.Confirm(context.Background(), intent.PaymentIntentID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if p.Status != domain.PurchaseSucceeded {
		t.Errorf("status = %s", p.Status)
	}

	// Idempotent on re-confirm
	p2, err := svc.Confirm(context.Background(), intent.PaymentIntentID)
	if err != nil || p2.Status != domain.PurchaseSucceeded {
		t.Fatalf("re-confirm: %v %+v", err, p2)
	}
}

func TestConfirmRejectsUnpaidIntent(t *testing.T) {
	repo := newMemRepo()
	intents := &fakeIntents{status: stripe.PaymentIntentStatusRequiresPaymentMethod}
	svc := billing.NewService(repo, intents)

	intent, _ := svc.CreateIntent(context.Background(), "maya@test.com", "workshop")
	if _, err := svc.Confirm(context.Background(), intent.PaymentIntentID); err != billing.ErrNotSucceeded {
		t.Fatalf("expected ErrNotSucceeded, got %v", err)
	}

	p, _ := repo.GetPurchaseByIntent(context.Background(), intent.PaymentIntentID)
	if p.Status != domain.PurchasePending {
		t.Errorf("unpaid intent must stay pending, got %s", p.Status)
	}
}

func TestConfirmCanceledIntentMarksFailed(t *testing.T) {
	repo := newMemRepo()
	intents := &fakeIntents{status: stripe.PaymentIntentStatusCanceled}
	svc := billing.NewService(repo, intents)

	intent, _ := svc.CreateIntent(context.Background(), "maya@test.com", "workshop")
	if _, err := svc.Confirm(context.Background(), intent.PaymentIntentID); err != billing.ErrNotSucceeded {
		t.Fatalf("expected ErrNotSucceeded, got %v", err)
	}
	p, _ := repo.GetPurchaseByIntent(context.Background(), intent.PaymentIntentID)
	if p.Status != domain.PurchaseFailed {
		t.Errorf("canceled intent should mark purchase failed, got %s", p.Status)
	}
}

func TestConfirmUnknownIntent(t *testing.T) {
	svc := billing.NewService(newMemRepo(), &fakeIntents{})
	if _, err := svc.Confirm(context.Background(), "pi_missing"); err != billing.ErrPurchaseNotFound {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}
}

func TestVerifyPurchase(t *testing.T) {
	repo := newMemRepo()
	intents := &fakeIntents{status: stripe.PaymentIntentStatusSucceeded}
	svc := billing.NewService(repo, intents)

	intent, _ := svc.CreateIntent(context.Background(), "maya@test.com", "meditation-bundle")
	if _, err := svc.Confirm(context.Background(), intent.PaymentIntentID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	ok, err := svc.VerifyPurchase(context.Background(), "MAYA@test.com", "")
	if err != nil || !ok {
		t.Fatalf("expected access, got %v %v", ok, err)
	}
	ok, _ = svc.VerifyPurchase(context.Background(), "maya@test.com", "workshop")
	if ok {
		t.Error("wrong product must not grant access")
	}
	ok, _ = svc.VerifyPurchase(context.Background(), "", "")
	if ok {
		t.Error("empty email must not grant access")
	}
}
