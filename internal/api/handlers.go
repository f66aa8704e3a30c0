// Package api exposes the public funnel endpoints and the cookie-gated
// admin surface over chi.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/httputil"
	"github.com/innerpath/studio/internal/repository/postgres"
	"github.com/innerpath/studio/internal/service/auth"
	"github.com/innerpath/studio/internal/service/trigger"
	"github.com/innerpath/studio/internal/templates"
)

// LeadStore is the lead access the handlers need.
type LeadStore interface {
	Create(ctx context.Context, l *domain.Lead) error
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	List(ctx context.Context, f postgres.ListFilter) ([]domain.Lead, int, error)
	ListBehaviorEvents(ctx context.Context, leadID string) ([]domain.BehaviorEvent, error)
}

// CampaignStore is the campaign/template access the handlers need.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
	Update(ctx context.Context, id string, u postgres.CampaignUpdate) error
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context, campaignID string) ([]domain.Template, error)
	UpdateTemplate(ctx context.Context, id string, u postgres.TemplateUpdate) error
}

// QueueStore is the queue inspection access the admin handlers need.
type QueueStore interface {
	ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.QueueEntry, error)
	ListDeliveries(ctx context.Context, leadID string) ([]domain.Delivery, error)
}

// CommerceStore is the application/waitlist/affiliate access the handlers need.
type CommerceStore interface {
	CreateApplication(ctx context.Context, a *domain.Application) error
	ListApplications(ctx context.Context, status string) ([]domain.Application, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) error
	CreateWaitlistEntry(ctx context.Context, w *domain.WaitlistEntry) error
	ListWaitlist(ctx context.Context, program string) ([]domain.WaitlistEntry, error)
	CreateAffiliate(ctx context.Context, a *domain.Affiliate) error
	GetAffiliateByCode(ctx context.Context, code string) (*domain.Affiliate, error)
	ListAffiliates(ctx context.Context) ([]domain.Affiliate, error)
	RecordAffiliateClick(ctx context.Context, c *domain.AffiliateClick) error
	CountAffiliateClicks(ctx context.Context, affiliateID string) (int, error)
}

// Handlers carries the services and stores behind the HTTP surface.
type Handlers struct {
	auth      *auth.Service
	trigger   *trigger.Service
	billing   *billing.Service
	preview   *templates.Engine
	leads     LeadStore
	campaigns CampaignStore
	queue     QueueStore
	commerce  CommerceStore

	cookieName   string
	cookieSecure bool

	db *sql.DB // health check ping
}

// NewHandlers wires the handler set.
func NewHandlers(
	authSvc *auth.Service,
	triggerSvc *trigger.Service,
	billingSvc *billing.Service,
	preview *templates.Engine,
	leads LeadStore,
	campaigns CampaignStore,
	queue QueueStore,
	commerce CommerceStore,
	cookieName string,
	cookieSecure bool,
	db *sql.DB,
) *Handlers {
	return &Handlers{
		auth:         authSvc,
		trigger:      triggerSvc,
		billing:      billingSvc,
		preview:      preview,
		leads:        leads,
		campaigns:    campaigns,
		queue:        queue,
		commerce:     commerce,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
		db:           db,
	}
}

// HealthCheck reports process and database health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			httputil.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	httputil.OK(w, status)
}
