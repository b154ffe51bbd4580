package service

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// gumroadSale is the canonical form of a Gumroad ping. Payloads arrive as
// JSON or form-urlencoded with the purchase fields either at the top level or
// nested under a "sale" object; decodeGumroadPayload maps every shape here.
type gumroadSale struct {
	Email          string
	ProductID      string
	ProductName    string
	SaleID         string
	SubscriptionID string
	Recurrence     string
	Refunded       bool
}

// GumroadService translates Gumroad sale pings into subscription grants.
type GumroadService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	ledger   LedgerService
	logger   zerolog.Logger
}

// NewGumroadService returns the service with a scoped logger.
func NewGumroadService(cfg *config.Config, userRepo repository.UserRepository, ledger LedgerService, logger zerolog.Logger) *GumroadService {
	return &GumroadService{
		cfg:      cfg,
		userRepo: userRepo,
		ledger:   ledger,
		logger:   logger.With().Str("service", "GumroadService").Logger(),
	}
}

// HandleWebhook processes a Gumroad ping. Every intake that can mutate
// entitlements verifies authenticity, so the configured shared secret is
// required here just like the Stripe signature is on the Stripe path.
// Refunded sales and unrecognized products are acknowledged without mutation.
func (s *GumroadService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GumroadWebhookSecret == "" {
		s.logger.Error().Msg("Gumroad webhook received but no shared secret is configured")
		http.Error(w, "gumroad not configured", http.StatusServiceUnavailable)
		return
	}
	secret := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.GumroadWebhookSecret)) != 1 {
		s.logger.Warn().Msg("Gumroad webhook rejected, bad shared secret")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sale, err := decodeGumroadPayload(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Unprocessable Gumroad payload")
		http.Error(w, "unprocessable payload", http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("sale_id", sale.SaleID).Str("product_id", sale.ProductID).Bool("refunded", sale.Refunded).Msg("Gumroad webhook received")

	if sale.Refunded {
		s.logger.Info().Str("sale_id", sale.SaleID).Msg("Refunded sale, acknowledging without grant")
		s.ack(w)
		return
	}

	var days int
	switch sale.ProductID {
	case s.cfg.GumroadProductIDMonthly:
		days = 30
	case s.cfg.GumroadProductIDYearly:
		days = 365
	default:
		s.logger.Warn().Str("product_id", sale.ProductID).Msg("Unrecognized Gumroad product, acknowledging without grant")
		s.ack(w)
		return
	}

	if sale.Email == "" {
		s.logger.Warn().Str("sale_id", sale.SaleID).Msg("No purchaser email in payload, acknowledging without grant")
		s.ack(w)
		return
	}
	user, err := s.userRepo.GetUserByEmail(r.Context(), sale.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Str("sale_id", sale.SaleID).Str("email", sale.Email).Msg("No local user for sale, acknowledging without grant")
			s.ack(w)
			return
		}
		s.logger.Error().Err(err).Str("sale_id", sale.SaleID).Msg("Failed to look up user for sale")
		http.Error(w, "failed to identify user", http.StatusInternalServerError)
		return
	}

	eventID := ""
	if sale.SaleID != "" {
		eventID = "sale:" + sale.SaleID
	}
	meta := map[string]any{
		"sale_id":         sale.SaleID,
		"product_id":      sale.ProductID,
		"product_name":    sale.ProductName,
		"subscription_id": sale.SubscriptionID,
		"recurrence":      sale.Recurrence,
	}
	_, err = s.ledger.GrantSubscriptionDays(r.Context(), user.UserID, days, model.SourceGumroad, meta, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventAlreadyProcessed) {
			s.logger.Info().Str("sale_id", sale.SaleID).Msg("Sale already processed, acknowledging duplicate delivery")
			s.ack(w)
			return
		}
		s.logger.Error().Err(err).Str("sale_id", sale.SaleID).Msg("Failed to grant subscription days from sale")
		http.Error(w, "failed to apply sale", http.StatusInternalServerError)
		return
	}
	s.ack(w)
}

func (s *GumroadService) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func decodeGumroadPayload(r *http.Request) (*gumroadSale, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode json payload: %w", err)
		}
		return saleFromMap(raw), nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form payload: %w", err)
	}
	return saleFromForm(r.PostForm), nil
}

func saleFromMap(raw map[string]any) *gumroadSale {
	// Purchase fields may be nested under "sale".
	if nested, ok := raw["sale"].(map[string]any); ok {
		for k, v := range nested {
			if _, exists := raw[k]; !exists {
				raw[k] = v
			}
		}
	}
	return &gumroadSale{
		Email:          firstString(raw, "email", "purchaser_email", "buyer_email"),
		ProductID:      firstString(raw, "product_id"),
		ProductName:    firstString(raw, "product_name"),
		SaleID:         firstString(raw, "sale_id", "id"),
		SubscriptionID: firstString(raw, "subscription_id"),
		Recurrence:     firstString(raw, "recurrence"),
		Refunded:       truthy(raw["refunded"]),
	}
}

func saleFromForm(form url.Values) *gumroadSale {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := form.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return &gumroadSale{
		Email:          get("email", "purchaser_email", "buyer_email"),
		ProductID:      get("product_id"),
		ProductName:    get("product_name"),
		SaleID:         get("sale_id", "id"),
		SubscriptionID: get("subscription_id"),
		Recurrence:     get("recurrence"),
		Refunded:       truthy(form.Get("refunded")),
	}
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// truthy interprets the bool-ish values Gumroad sends for refunded.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}
