package handler

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// AdminHandler exposes operator endpoints: scheduled promotions and license
// key batch generation. Both are gated by the admin shared secret.
type AdminHandler struct {
	promo  *service.PromoService
	keygen *service.KeygenService
	secret string
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(promo *service.PromoService, keygen *service.KeygenService, secret string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{promo: promo, keygen: keygen, secret: secret, logger: logger}
}

// RegisterRoutes mounts admin routes. The secret travels as a query parameter
// so the endpoints can be driven by a plain cron scheduler.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/promo", h.runPromo)
	mux.HandleFunc("/admin/license-keys", h.generateKeys)
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	given := r.URL.Query().Get("secret")
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}

// runPromo godoc
// @Summary Run a free subscription promotion
// @Description Grants every user a number of free subscription days. Reruns with the same day key are no-ops.
// @Tags admin
// @Produce json
// @Param secret query string true "Admin shared secret"
// @Param days query int false "Days to grant (default 1)"
// @Param dry_run query bool false "Report without granting"
// @Success 200 {object} dto.PromoResponseDTO
// @Failure 401 {string} string "Bad admin secret"
// @Router /admin/promo [get]
func (h *AdminHandler) runPromo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		days = n
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	// One run key per calendar day keeps scheduler retries idempotent.
	runKey := fmt.Sprintf("free-days-%s", timeNow().UTC().Format(time.DateOnly))

	result, err := h.promo.Run(r.Context(), days, runKey, dryRun)
	if err != nil {
		h.logger.Error().Err(err).Msg("Promotion run failed")
		http.Error(w, "Promotion run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.PromoResponseDTO{
		Ok:         true,
		TotalUsers: result.TotalUsers,
		Updated:    result.Updated,
		Skipped:    result.Skipped,
		EmailsSent: result.EmailsSent,
		DryRun:     result.DryRun,
		Errors:     result.Errors,
	})
}

// generateKeys godoc
// @Summary Generate a batch of license keys
// @Description Creates a fixed denomination mix of unused license keys and returns the codes.
// @Tags admin
// @Produce json
// @Param secret query string true "Admin shared secret"
// @Success 200 {object} dto.KeyBatchResponseDTO
// @Failure 401 {string} string "Bad admin secret"
// @Router /admin/license-keys [get]
func (h *AdminHandler) generateKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	batch, err := h.keygen.GenerateBatch(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Key batch generation failed")
		http.Error(w, "Key generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.KeyBatchResponseDTO{
		Codes:  batch.Codes,
		Counts: batch.Counts,
		Total:  batch.Total,
	})
}
