package handler

import (
	"errors"
	"net/http"

	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// VerifyHandler handles email verification links. The endpoint is opened from
// an email client, so every outcome is a redirect back to the app.
type VerifyHandler struct {
	ledger  service.LedgerService
	baseURL string
	logger  zerolog.Logger
}

// NewVerifyHandler creates a new VerifyHandler
func NewVerifyHandler(ledger service.LedgerService, baseURL string, logger zerolog.Logger) *VerifyHandler {
	return &VerifyHandler{ledger: ledger, baseURL: baseURL, logger: logger}
}

// RegisterRoutes mounts the verification route. It is public: the token in
// the query string is the credential.
func (h *VerifyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/verify-email", h.verify)
}

// verify godoc
// @Summary Verify an email address
// @Description Consumes a verification token, credits the one-day reward and redirects to the app.
// @Tags auth
// @Param token query string true "Verification token"
// @Success 302 {string} string "Redirect to the app with ?verified=1 or ?error=..."
// @Router /verify-email [get]
func (h *VerifyHandler) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, h.baseURL+"/?error=missing_token", http.StatusFound)
		return
	}

	_, err := h.ledger.VerifyEmail(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenNotFound):
			http.Redirect(w, r, h.baseURL+"/?error=invalid_or_expired_token", http.StatusFound)
		case errors.Is(err, repository.ErrNotFound):
			http.Redirect(w, r, h.baseURL+"/?error=user_not_found", http.StatusFound)
		default:
			h.logger.Error().Err(err).Msg("Email verification failed")
			http.Redirect(w, r, h.baseURL+"/?error=verification_failed", http.StatusFound)
		}
		return
	}

	http.Redirect(w, r, h.baseURL+"/?verified=1", http.StatusFound)
}
