package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// LicenseHandler handles license key redemption
type LicenseHandler struct {
	ledger   service.LedgerService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewLicenseHandler creates a new LicenseHandler
func NewLicenseHandler(ledger service.LedgerService, validate *validator.Validate, logger zerolog.Logger) *LicenseHandler {
	return &LicenseHandler{ledger: ledger, validate: validate, logger: logger}
}

// RegisterRoutes mounts license routes
func (h *LicenseHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/license/redeem", authMw(http.HandlerFunc(h.redeem)))
}

// redeem godoc
// @Summary Redeem a license key
// @Description Credits the key's token amount to the authenticated user. Each key works exactly once.
// @Tags license
// @Accept json
// @Produce json
// @Param redeem body dto.LicenseRedeemDTO true "Redemption request"
// @Success 200 {object} dto.LicenseRedeemResponseDTO
// @Failure 400 {string} string "Invalid, already used, or already redeemed key"
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Router /license/redeem [post]
func (h *LicenseHandler) redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	var req dto.LicenseRedeemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := h.ledger.RedeemLicenseKey(r.Context(), userID, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrKeyNotFound):
			http.Error(w, "invalid_key", http.StatusBadRequest)
		case errors.Is(err, repository.ErrKeyAlreadyUsedBySelf):
			http.Error(w, "key_already_redeemed", http.StatusBadRequest)
		case errors.Is(err, repository.ErrKeyAlreadyUsed):
			http.Error(w, "key_already_used", http.StatusBadRequest)
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("Redemption failed")
			http.Error(w, "Failed to redeem key", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.LicenseRedeemResponseDTO{Amount: amount})
}
