package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/httputil"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/innerpath/studio/internal/service/trigger"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type quizRequest struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Result  string          `json:"result"`
	Answers json.RawMessage `json:"answers"`
}

// SubmitQuiz creates a lead from a completed archetype quiz and fires the
// quiz_completion trigger.
func (h *Handlers) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Result == "" {
		httputil.BadRequest(w, "email and result are required")
		return
	}

	lead := &domain.Lead{
		ID:          uuid.New().String(),
		Email:       req.Email,
		Name:        optional(req.Name),
		Source:      domain.SourceQuiz,
		QuizResult:  &req.Result,
		QuizAnswers: req.Answers,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.leads.Create(r.Context(), lead); err != nil {
		httputil.InternalError(w, err)
		return
	}

	res, err := h.trigger.Fire(r.Context(), lead.ID, domain.TriggerQuizCompletion, lead.ID,
		trigger.QuizCompletion{Result: req.Result, Answers: req.Answers})
	if err != nil {
		logger.Error("quiz trigger failed", "lead_id", lead.ID, "error", err)
	}

	httputil.Created(w, map[string]interface{}{
		"lead":    lead,
		"trigger": res,
	})
}

type meditationRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Item  string `json:"item"`
}

// SubmitMeditation creates a lead from a meditation download and fires the
// meditation_download trigger.
func (h *Handlers) SubmitMeditation(w http.ResponseWriter, r *http.Request) {
	var req meditationRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}

	lead := &domain.Lead{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Name:      optional(req.Name),
		Source:    domain.SourceMeditation,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.leads.Create(r.Context(), lead); err != nil {
		httputil.InternalError(w, err)
		return
	}

	res, err := h.trigger.Fire(r.Context(), lead.ID, domain.TriggerMeditationDownload, lead.ID,
		trigger.MeditationDownload{Item: req.Item})
	if err != nil {
		logger.Error("meditation trigger failed", "lead_id", lead.ID, "error", err)
	}

	httputil.Created(w, map[string]interface{}{
		"lead":    lead,
		"trigger": res,
	})
}

type applicationRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Goals     string `json:"goals"`
	Obstacles string `json:"obstacles"`
	Budget    string `json:"budget"`
}

// SubmitApplication records a coaching application, creates a lead for the
// applicant, and fires the lead_created trigger.
func (h *Handlers) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Name == "" || req.Goals == "" {
		httputil.BadRequest(w, "name, email, and goals are required")
		return
	}

	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Name:      &req.Name,
		Source:    domain.SourceApplication,
		CreatedAt: now,
	}
	if err := h.leads.Create(r.Context(), lead); err != nil {
		httputil.InternalError(w, err)
		return
	}

	app := &domain.Application{
		ID:        uuid.New().String(),
		LeadID:    lead.ID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Goals:     req.Goals,
		Obstacles: req.Obstacles,
		Budget:    req.Budget,
		Status:    domain.ApplicationNew,
		CreatedAt: now,
	}
	if err := h.commerce.CreateApplication(r.Context(), app); err != nil {
		httputil.InternalError(w, err)
		return
	}

	if _, err := h.trigger.Fire(r.Context(), lead.ID, domain.TriggerLeadCreated, app.ID,
		trigger.LeadCreated{Source: domain.SourceApplication}); err != nil {
		logger.Error("application trigger failed", "lead_id", lead.ID, "error", err)
	}

	httputil.Created(w, app)
}

type waitlistRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Program string `json:"program"`
}

// JoinWaitlist records waitlist interest and creates a lead.
func (h *Handlers) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Program == "" {
		httputil.BadRequest(w, "email and program are required")
		return
	}

	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Name:      optional(req.Name),
		Source:    domain.SourceWaitlist,
		CreatedAt: now,
	}
	if err := h.leads.Create(r.Context(), lead); err != nil {
		httputil.InternalError(w, err)
		return
	}

	entry := &domain.WaitlistEntry{
		ID:        uuid.New().String(),
		LeadID:    lead.ID,
		Email:     req.Email,
		Program:   req.Program,
		CreatedAt: now,
	}
	if err := h.commerce.CreateWaitlistEntry(r.Context(), entry); err != nil {
		httputil.InternalError(w, err)
		return
	}

	if _, err := h.trigger.Fire(r.Context(), lead.ID, domain.TriggerLeadCreated, entry.ID,
		trigger.LeadCreated{Source: domain.SourceWaitlist}); err != nil {
		logger.Error("waitlist trigger failed", "lead_id", lead.ID, "error", err)
	}

	httputil.Created(w, entry)
}

type affiliateClickRequest struct {
	Code        string `json:"code"`
	LandingPath string `json:"landing_path"`
	Referrer    string `json:"referrer"`
}

// RecordAffiliateClick tracks a referral visit by affiliate code. Unknown
// codes 404 so the frontend can drop the ref parameter.
func (h *Handlers) RecordAffiliateClick(w http.ResponseWriter, r *http.Request) {
	var req affiliateClickRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		httputil.BadRequest(w, "code is required")
		return
	}

	affiliate, err := h.commerce.GetAffiliateByCode(r.Context(), req.Code)
	if err != nil {
		httputil.NotFound(w, "unknown affiliate code")
		return
	}

	click := &domain.AffiliateClick{
		ID:          uuid.New().String(),
		AffiliateID: affiliate.ID,
		LandingPath: req.LandingPath,
		Referrer:    req.Referrer,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.commerce.RecordAffiliateClick(r.Context(), click); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, click)
}

type paymentIntentRequest struct {
	Email   string `json:"email"`
	Product string `json:"product"`
}

// CreatePaymentIntent starts a Stripe checkout for a catalog product.
func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Product == "" {
		httputil.BadRequest(w, "email and product are required")
		return
	}

	intent, err := h.billing.CreateIntent(r.Context(), req.Email, req.Product)
	if err == billing.ErrUnknownProduct {
		httputil.BadRequest(w, "unknown product")
		return
	}
	if err == billing.ErrNotConfigured {
		httputil.Error(w, http.StatusServiceUnavailable, "payments are not available")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, intent)
}

type paymentConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmPayment verifies a payment intent server-side and records the
// purchase as succeeded.
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentConfirmRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.PaymentIntentID == "" {
		httputil.BadRequest(w, "payment_intent_id is required")
		return
	}

	purchase, err := h.billing.Confirm(r.Context(), req.PaymentIntentID)
	switch err {
	case nil:
		httputil.OK(w, purchase)
	case billing.ErrPurchaseNotFound:
		httputil.NotFound(w, "purchase not found")
	case billing.ErrNotSucceeded:
		httputil.Error(w, http.StatusPaymentRequired, "payment has not succeeded")
	case billing.ErrNotConfigured:
		httputil.Error(w, http.StatusServiceUnavailable, "payments are not available")
	default:
		httputil.InternalError(w, err)
	}
}

// VerifyPurchase answers purchase-gated content checks by email. The
// optional ?product= query narrows the check.
func (h *Handlers) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	ok, err := h.billing.VerifyPurchase(r.Context(), email, r.URL.Query().Get("product"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"purchased": ok})
}
