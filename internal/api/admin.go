package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/httputil"
	"github.com/innerpath/studio/internal/repository/postgres"
	"github.com/innerpath/studio/internal/service/auth"
	"github.com/innerpath/studio/internal/service/trigger"
)

type magicLinkRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink starts the admin login flow. The response is 202 whether
// or not the email is on the allow list, so the endpoint never confirms who
// can log in.
func (h *Handlers) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	if err := h.auth.RequestLink(r.Context(), req.Email); err != nil {
		if errors.Is(err, auth.ErrRateLimited) {
			httputil.TooManyRequests(w, "too many login requests, try again in a minute")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"message": "If that address can sign in, a login link is on its way.",
	})
}

type verifyRequest struct {
	Token string `json:"token"`
}

// VerifyMagicLink redeems a magic link and sets the session cookie.
func (h *Handlers) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	session, sessionToken, err := h.auth.Verify(r.Context(), req.Token)
	switch err {
	case nil:
	case auth.ErrNotFound:
		httputil.Unauthorized(w, "invalid login link")
		return
	case auth.ErrExpired:
		httputil.Unauthorized(w, "login link expired")
		return
	case auth.ErrAlreadyUsed:
		httputil.Unauthorized(w, "login link already used")
		return
	default:
		httputil.InternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sessionToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.OK(w, map[string]string{"email": session.Email})
}

// Logout deletes the session row and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.NoContent(w)
}

// RequireSession gates admin routes on a valid session cookie.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(h.cookieName)
		if err != nil {
			httputil.Unauthorized(w, "authentication required")
			return
		}
		if _, err := h.auth.ValidateSession(r.Context(), cookie.Value); err != nil {
			httputil.Unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListLeads returns leads, optionally filtered by ?source= with
// ?limit=/?offset= paging.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	f := postgres.ListFilter{
		Source: r.URL.Query().Get("source"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	leads, total, err := h.leads.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"leads": leads, "total": total})
}

// GetLead returns one lead with its behavior events and deliveries.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lead, err := h.leads.GetLead(r.Context(), id)
	if err != nil {
		httputil.NotFound(w, "lead not found")
		return
	}
	events, err := h.leads.ListBehaviorEvents(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	deliveries, err := h.queue.ListDeliveries(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"lead":       lead,
		"events":     events,
		"deliveries": deliveries,
	})
}

type campaignRequest struct {
	Name              string                 `json:"name"`
	TriggerType       domain.TriggerType     `json:"trigger_type"`
	TargetAudience    domain.TargetAudience  `json:"target_audience"`
	AudienceFilter    domain.AudienceFilter  `json:"audience_filter"`
	Active            bool                   `json:"active"`
	AIPersonalization bool                   `json:"ai_personalization"`
}

// CreateCampaign creates a campaign definition.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" || !req.TriggerType.Valid() {
		httputil.BadRequest(w, "name and a valid trigger_type are required")
		return
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:                uuid.New().String(),
		Name:              req.Name,
		TriggerType:       req.TriggerType,
		TargetAudience:    req.TargetAudience,
		AudienceFilter:    req.AudienceFilter,
		Active:            req.Active,
		AIPersonalization: req.AIPersonalization,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.campaigns.Create(r.Context(), c); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, c)
}

// ListCampaigns returns all campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, campaigns)
}

// GetCampaign returns one campaign with its template sequence.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.NotFound(w, "campaign not found")
		return
	}
	tmpls, err := h.campaigns.ListTemplates(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"campaign": c, "templates": tmpls})
}

type campaignUpdateRequest struct {
	Name              *string                `json:"name"`
	TriggerType       *domain.TriggerType    `json:"trigger_type"`
	TargetAudience    *domain.TargetAudience `json:"target_audience"`
	AudienceFilter    *domain.AudienceFilter `json:"audience_filter"`
	Active            *bool                  `json:"active"`
	AIPersonalization *bool                  `json:"ai_personalization"`
}

// UpdateCampaign applies a partial update. Absent fields are unchanged.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TriggerType != nil && !req.TriggerType.Valid() {
		httputil.BadRequest(w, "invalid trigger_type")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.campaigns.Update(r.Context(), id, postgres.CampaignUpdate{
		Name:              req.Name,
		TriggerType:       req.TriggerType,
		TargetAudience:    req.TargetAudience,
		AudienceFilter:    req.AudienceFilter,
		Active:            req.Active,
		AIPersonalization: req.AIPersonalization,
	})
	if err == trigger.ErrCampaignNotFound {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

type templateRequest struct {
	Subject               string  `json:"subject"`
	Body                  string  `json:"body"`
	PersonalizationPrompt *string `json:"personalization_prompt"`
	SendDelayMinutes      int     `json:"send_delay_minutes"`
	Position              int     `json:"position"`
	Active                bool    `json:"active"`
}

// CreateTemplate adds a template step to a campaign.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if _, err := h.campaigns.GetCampaign(r.Context(), campaignID); err != nil {
		httputil.NotFound(w, "campaign not found")
		return
	}

	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Body == "" {
		httputil.BadRequest(w, "subject and body are required")
		return
	}
	if _, err := h.preview.Validate(req.Subject); err != nil {
		httputil.BadRequest(w, "subject does not parse: "+err.Error())
		return
	}
	if _, err := h.preview.Validate(req.Body); err != nil {
		httputil.BadRequest(w, "body does not parse: "+err.Error())
		return
	}

	t := &domain.Template{
		ID:                    uuid.New().String(),
		CampaignID:            campaignID,
		Subject:               req.Subject,
		Body:                  req.Body,
		PersonalizationPrompt: req.PersonalizationPrompt,
		SendDelayMinutes:      req.SendDelayMinutes,
		Position:              req.Position,
		Active:                req.Active,
		CreatedAt:             time.Now().UTC(),
	}
	if err := h.campaigns.CreateTemplate(r.Context(), t); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, t)
}

type templateUpdateRequest struct {
	Subject               *string `json:"subject"`
	Body                  *string `json:"body"`
	PersonalizationPrompt *string `json:"personalization_prompt"`
	SendDelayMinutes      *int    `json:"send_delay_minutes"`
	Position              *int    `json:"position"`
	Active                *bool   `json:"active"`
}

// UpdateTemplate applies a partial template update.
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "templateID")
	err := h.campaigns.UpdateTemplate(r.Context(), id, postgres.TemplateUpdate{
		Subject:               req.Subject,
		Body:                  req.Body,
		PersonalizationPrompt: req.PersonalizationPrompt,
		SendDelayMinutes:      req.SendDelayMinutes,
		Position:              req.Position,
		Active:                req.Active,
	})
	if err != nil {
		httputil.NotFound(w, "template not found")
		return
	}
	httputil.NoContent(w)
}

type previewRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	LeadID  string `json:"lead_id"`
}

// PreviewTemplate renders a template against a lead (or sample data) with
// strict validation.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	var lead *domain.Lead
	if req.LeadID != "" {
		var err error
		lead, err = h.leads.GetLead(r.Context(), req.LeadID)
		if err != nil {
			httputil.NotFound(w, "lead not found")
			return
		}
	}

	result, err := h.preview.Preview(req.Subject, req.Body, lead)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, result)
}

type manualTriggerRequest struct {
	LeadID string `json:"lead_id"`
}

// TriggerCampaign fires a campaign for one lead from the admin dashboard.
func (h *Handlers) TriggerCampaign(w http.ResponseWriter, r *http.Request) {
	var req manualTriggerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.LeadID == "" {
		httputil.BadRequest(w, "lead_id is required")
		return
	}

	session, _ := h.sessionFrom(r)
	triggeredBy := ""
	if session != nil {
		triggeredBy = session.Email
	}

	campaignID := chi.URLParam(r, "id")
	res, err := h.trigger.FireManual(r.Context(), campaignID, req.LeadID, triggeredBy)
	switch err {
	case nil:
		httputil.OK(w, res)
	case trigger.ErrCampaignNotFound:
		httputil.NotFound(w, "campaign not found")
	case trigger.ErrCampaignInactive:
		httputil.Conflict(w, "campaign is not active")
	case trigger.ErrLeadNotFound:
		httputil.NotFound(w, "lead not found")
	default:
		httputil.InternalError(w, err)
	}
}

func (h *Handlers) sessionFrom(r *http.Request) (*domain.AdminSession, error) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil {
		return nil, err
	}
	return h.auth.ValidateSession(r.Context(), cookie.Value)
}

// ListApplications returns applications, optionally filtered by ?status=.
func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.commerce.ListApplications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, apps)
}

type applicationStatusRequest struct {
	Status string `json:"status"`
}

// UpdateApplicationStatus moves an application through the review flow.
func (h *Handlers) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req applicationStatusRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	switch req.Status {
	case domain.ApplicationNew, domain.ApplicationReviewed,
		domain.ApplicationAccepted, domain.ApplicationDeclined:
	default:
		httputil.BadRequest(w, "invalid status")
		return
	}
	if err := h.commerce.UpdateApplicationStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		httputil.NotFound(w, "application not found")
		return
	}
	httputil.NoContent(w)
}

// ListWaitlist returns waitlist entries, optionally filtered by ?program=.
func (h *Handlers) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.commerce.ListWaitlist(r.Context(), r.URL.Query().Get("program"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, entries)
}

type affiliateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

// CreateAffiliate registers a referral partner.
func (h *Handlers) CreateAffiliate(w http.ResponseWriter, r *http.Request) {
	var req affiliateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Code == "" {
		httputil.BadRequest(w, "name and code are required")
		return
	}

	a := &domain.Affiliate{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     normalizeEmail(req.Email),
		Code:      req.Code,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.commerce.CreateAffiliate(r.Context(), a); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, a)
}

// ListAffiliates returns affiliates with their click counts.
func (h *Handlers) ListAffiliates(w http.ResponseWriter, r *http.Request) {
	affiliates, err := h.commerce.ListAffiliates(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	type affiliateWithClicks struct {
		domain.Affiliate
		Clicks int `json:"clicks"`
	}
	out := make([]affiliateWithClicks, 0, len(affiliates))
	for _, a := range affiliates {
		clicks, err := h.commerce.CountAffiliateClicks(r.Context(), a.ID)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		out = append(out, affiliateWithClicks{Affiliate: a, Clicks: clicks})
	}
	httputil.OK(w, out)
}

// InspectQueue lists queue entries for the admin dashboard, optionally
// filtered by ?status=.
func (h *Handlers) InspectQueue(w http.ResponseWriter, r *http.Request) {
	status := domain.QueueStatus(r.URL.Query().Get("status"))
	entries, err := h.queue.ListByStatus(r.Context(), status, queryInt(r, "limit", 100))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, entries)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
