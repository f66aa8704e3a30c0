package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/innerpath/studio/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the router: public funnel endpoints and the
// session-gated admin surface.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Credentials on for the admin session cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public funnel
		r.Post("/quiz", h.SubmitQuiz)
		r.Post("/meditation", h.SubmitMeditation)
		r.Post("/applications", h.SubmitApplication)
		r.Post("/waitlist", h.JoinWaitlist)
		r.Post("/affiliate/click", h.RecordAffiliateClick)
		r.Post("/payments/intent", h.CreatePaymentIntent)
		r.Post("/payments/confirm", h.ConfirmPayment)
		r.Get("/verify-purchase/{email}", h.VerifyPurchase)

		// Admin login flow (no session yet)
		r.Post("/admin/request-magic-link", h.RequestMagicLink)
		r.Post("/admin/verify-magic-link", h.VerifyMagicLink)

		// Admin surface behind the session cookie
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireSession)

			r.Post("/logout", h.Logout)

			r.Get("/leads", h.ListLeads)
			r.Get("/leads/{id}", h.GetLead)

			r.Get("/campaigns", h.ListCampaigns)
			r.Post("/campaigns", h.CreateCampaign)
			r.Get("/campaigns/{id}", h.GetCampaign)
			r.Patch("/campaigns/{id}", h.UpdateCampaign)
			r.Post("/campaigns/{id}/templates", h.CreateTemplate)
			r.Post("/campaigns/{id}/trigger", h.TriggerCampaign)
			r.Patch("/templates/{templateID}", h.UpdateTemplate)
			r.Post("/templates/preview", h.PreviewTemplate)

			r.Get("/applications", h.ListApplications)
			r.Patch("/applications/{id}", h.UpdateApplicationStatus)

			r.Get("/waitlist", h.ListWaitlist)

			r.Get("/affiliates", h.ListAffiliates)
			r.Post("/affiliates", h.CreateAffiliate)

			r.Get("/queue", h.InspectQueue)
		})
	})

	return r
}
