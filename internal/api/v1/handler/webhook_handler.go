package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// WebhookHandler mounts the payment provider endpoints. Signature and
// shared-secret checks live in the services; this layer only routes.
type WebhookHandler struct {
	stripe   *service.StripeService
	gumroad  *service.GumroadService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(stripe *service.StripeService, gumroad *service.GumroadService, validate *validator.Validate, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{stripe: stripe, gumroad: gumroad, validate: validate, logger: logger}
}

// RegisterRoutes mounts webhook and checkout routes. Webhooks authenticate
// themselves, checkout needs a session.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.HandleFunc("/webhooks/stripe", h.stripeWebhook)
	mux.HandleFunc("/webhooks/gumroad", h.gumroadWebhook)
	mux.Handle("/billing/checkout", authMw(http.HandlerFunc(h.checkout)))
}

// stripeWebhook godoc
// @Summary Stripe webhook receiver
// @Description Verifies the event signature and credits subscription time for paid invoices.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {string} string "Invalid signature or payload"
// @Failure 503 {string} string "Stripe is not configured"
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.stripe.HandleWebhook(w, r)
}

// gumroadWebhook godoc
// @Summary Gumroad webhook receiver
// @Description Checks the shared secret and credits subscription time for sales.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 401 {string} string "Bad shared secret"
// @Failure 503 {string} string "Gumroad is not configured"
// @Router /webhooks/gumroad [post]
func (h *WebhookHandler) gumroadWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.gumroad.HandleWebhook(w, r)
}

// checkout godoc
// @Summary Create a Stripe checkout session
// @Description Returns a Stripe-hosted checkout URL for the chosen plan.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutSessionDTO true "Checkout request"
// @Success 200 {object} dto.CheckoutSessionResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 503 {string} string "Stripe is not configured"
// @Router /billing/checkout [post]
func (h *WebhookHandler) checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	var req dto.CheckoutSessionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	url, err := h.stripe.CreateCheckoutSession(r.Context(), userID, req.Plan)
	if err != nil {
		if errors.Is(err, service.ErrStripeNotConfigured) {
			http.Error(w, "Stripe is not configured", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Checkout session failed")
		http.Error(w, "Failed to create checkout session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.CheckoutSessionResponseDTO{URL: url})
}
