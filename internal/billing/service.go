package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// Product is a catalog entry. Amounts are fixed server-side.
type Product struct {
	ID          string
	Name        string
	AmountCents int64
	Currency    string
}

// Catalog is the sellable product set. Keyed by product ID.
var Catalog = map[string]Product{
	"masterclass": {
		ID: "masterclass", Name: "Inner Path Masterclass",
		AmountCents: 9700, Currency: "usd",
	},
	"meditation-bundle": {
		ID: "meditation-bundle", Name: "Guided Meditation Bundle",
		AmountCents: 2700, Currency: "usd",
	},
	"workshop": {
		ID: "workshop", Name: "Live Workshop Seat",
		AmountCents: 19700, Currency: "usd",
	},
}

// IntentClient wraps the Stripe payment-intent calls the service makes, so
// tests can fake the provider.
type IntentClient interface {
	Create(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string) (*stripe.PaymentIntent, error)
}

type stripeIntentClient struct{}

func (stripeIntentClient) Create(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (stripeIntentClient) Get(id string) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, nil)
}

// NewStripeClient configures the global Stripe key and returns the live
// payment-intent client.
func NewStripeClient(secretKey string) IntentClient {
	stripe.Key = secretKey
	return stripeIntentClient{}
}

// Service handles payment intents and purchase records.
type Service struct {
	repo    Repository
	intents IntentClient
}

// NewService creates a billing service.
func NewService(repo Repository, intents IntentClient) *Service {
	return &Service{repo: repo, intents: intents}
}

// Intent is what the checkout client needs to confirm a payment.
type Intent struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// CreateIntent creates a Stripe payment intent for a catalog product and a
// pending purchase row keyed by the intent ID.
func (s *Service) CreateIntent(ctx context.Context, email, productID string) (*Intent, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	product, ok := Catalog[productID]
	if !ok {
		return nil, ErrUnknownProduct
	}
	if s.intents == nil {
		return nil, ErrNotConfigured
	}

	pi, err := s.intents.Create(&stripe.PaymentIntentParams{
		Amount:       stripe.Int64(product.AmountCents),
		Currency:     stripe.String(product.Currency),
		ReceiptEmail: stripe.String(email),
		Metadata: map[string]string{
			"product": product.ID,
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	leadID, err := s.repo.FindLeadByEmail(ctx, email)
	if err != nil {
		logger.Warn("lead lookup for purchase failed", "error", err)
		leadID = ""
	}

	if err := s.repo.CreatePurchase(ctx, &domain.Purchase{
		ID:              uuid.New().String(),
		LeadID:          leadID,
		Email:           email,
		Product:         product.ID,
		AmountCents:     product.AmountCents,
		Currency:        product.Currency,
		PaymentIntentID: pi.ID,
		Status:          domain.PurchasePending,
	}); err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	logger.Info("payment intent created", "product", product.ID, "intent_id", pi.ID)
	return &Intent{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		AmountCents:     product.AmountCents,
		Currency:        product.Currency,
	}, nil
}

// Confirm verifies a payment intent against Stripe and flips the matching
// purchase to succeeded. The intent status is re-checked server-side; the
// client's word is never trusted.
func (s *Service) Confirm(ctx context.Context, paymentIntentID string) (*domain.Purchase, error) {
	purchase, err := s.repo.GetPurchaseByIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if purchase.Status == domain.PurchaseSucceeded {
		return purchase, nil
	}
	if s.intents == nil {
		return nil, ErrNotConfigured
	}

	pi, err := s.intents.Get(paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		if pi.Status == stripe.PaymentIntentStatusCanceled {
			if err := s.repo.UpdatePurchaseStatus(ctx, purchase.ID, domain.PurchaseFailed); err != nil {
				logger.Error("mark purchase failed errored", "purchase_id", purchase.ID, "error", err)
			}
		}
		return nil, ErrNotSucceeded
	}

	if err := s.repo.UpdatePurchaseStatus(ctx, purchase.ID, domain.PurchaseSucceeded); err != nil {
		return nil, fmt.Errorf("update purchase: %w", err)
	}
	purchase.Status = domain.PurchaseSucceeded
	logger.Info("purchase confirmed", "purchase_id", purchase.ID, "product", purchase.Product)
	return purchase, nil
}

// VerifyPurchase reports whether an email has access to purchase-gated
// content. product narrows the check; "" means any succeeded purchase.
func (s *Service) VerifyPurchase(ctx context.Context, email, product string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}
	return s.repo.HasSucceededPurchase(ctx, email, product)
}
