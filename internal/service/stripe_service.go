package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrStripeNotConfigured is returned when a Stripe operation is attempted
// without a configured secret key.
var ErrStripeNotConfigured = errors.New("stripe is not configured")

// StripeService manages Stripe integration: checkout session creation and the
// webhook intake that feeds the ledger.
type StripeService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	ledger   LedgerService
	logger   zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service with a
// scoped logger.
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, ledger LedgerService, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, ledger: ledger, logger: lg}
}

func (s *StripeService) configured() bool {
	return s.cfg.StripeSecretKey != "" && s.cfg.StripeWebhookSecret != ""
}

// CreateCheckoutSession creates a Stripe Checkout session for a plan upgrade.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, plan string) (string, error) {
	if s.cfg.StripeSecretKey == "" {
		return "", ErrStripeNotConfigured
	}
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	customerID, err := s.getOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	var priceID string
	switch plan {
	case "monthly":
		priceID = s.cfg.StripePriceMonthly
	case "annual":
		priceID = s.cfg.StripePriceAnnual
	default:
		return "", fmt.Errorf("invalid plan: %s", plan)
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		SuccessURL:         stripe.String(s.cfg.StripeCheckoutReturn + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripeCheckoutReturn + "?status=cancel"),
		Metadata:           map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", plan).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *StripeService) getOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// HandleWebhook processes Stripe webhook events. Only invoice.paid mutates
// state: it fires for the first invoice and every renewal, giving exactly one
// credit point per billing cycle, so the checkout-completed event is
// deliberately ignored. Unresolvable events are acknowledged with 200 so
// Stripe does not retry them forever.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.configured() {
		s.logger.Error().Msg("Stripe webhook received but Stripe is not configured")
		http.Error(w, "stripe not configured", http.StatusServiceUnavailable)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	if event.Type != "invoice.paid" {
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Ignoring Stripe webhook event")
		s.ack(w)
		return
	}

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		s.logger.Error().Err(err).Msg("Invalid invoice.paid payload")
		http.Error(w, "invalid invoice data", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	email := s.resolveCustomerEmail(&invoice)
	if email == "" {
		s.logger.Warn().Str("invoice_id", invoice.ID).Msg("Could not resolve customer email, acknowledging without grant")
		s.ack(w)
		return
	}

	subID, days := s.resolveBillingDays(&invoice)
	if days == 0 {
		s.logger.Warn().Str("invoice_id", invoice.ID).Msg("Could not resolve billing interval, acknowledging without grant")
		s.ack(w)
		return
	}

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Str("invoice_id", invoice.ID).Str("email", email).Msg("No local user for invoice, acknowledging without grant")
			s.ack(w)
			return
		}
		s.logger.Error().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to look up user for invoice")
		http.Error(w, "failed to identify user", http.StatusInternalServerError)
		return
	}

	meta := map[string]any{
		"invoice_id":      invoice.ID,
		"subscription_id": subID,
	}
	_, err = s.ledger.GrantSubscriptionDays(ctx, user.UserID, days, model.SourceStripe, meta, "invoice:"+invoice.ID)
	if err != nil {
		if errors.Is(err, repository.ErrEventAlreadyProcessed) {
			s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice already processed, acknowledging duplicate delivery")
			s.ack(w)
			return
		}
		s.logger.Error().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to grant subscription days from invoice")
		http.Error(w, "failed to apply invoice", http.StatusInternalServerError)
		return
	}
	s.ack(w)
}

func (s *StripeService) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

// resolveCustomerEmail prefers the denormalized invoice field and falls back
// to fetching the customer object.
func (s *StripeService) resolveCustomerEmail(invoice *stripe.Invoice) string {
	if invoice.CustomerEmail != "" {
		return invoice.CustomerEmail
	}
	if invoice.Customer == nil || invoice.Customer.ID == "" {
		return ""
	}
	cust, err := customerpkg.Get(invoice.Customer.ID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("customer_id", invoice.Customer.ID).Msg("Failed to fetch Stripe customer")
		return ""
	}
	return cust.Email
}

// resolveBillingDays maps the billing interval to a fixed day count:
// month -> 30, year -> 365. The interval is read from the invoice line's own
// period when the payload carries one; the subscription object is only fetched
// when it does not. Returns 0 days when the interval cannot be determined.
func (s *StripeService) resolveBillingDays(invoice *stripe.Invoice) (string, int) {
	var subID string
	var periodDays int
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				subID = line.Subscription.ID
				if line.Period != nil && line.Period.End > line.Period.Start {
					span := time.Duration(line.Period.End-line.Period.Start) * time.Second
					periodDays = intervalDays(span)
				}
				break
			}
		}
	}
	if subID == "" {
		// Likely a one-time invoice.
		return "", 0
	}
	if periodDays != 0 {
		return subID, periodDays
	}
	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to fetch subscription for interval")
		return subID, 0
	}
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil || sub.Items.Data[0].Price.Recurring == nil {
		return subID, 0
	}
	switch sub.Items.Data[0].Price.Recurring.Interval {
	case stripe.PriceRecurringIntervalMonth:
		return subID, 30
	case stripe.PriceRecurringIntervalYear:
		return subID, 365
	default:
		return subID, 0
	}
}

// intervalDays classifies a billing period span as monthly or yearly. Spans
// that fit neither are left to the subscription lookup.
func intervalDays(span time.Duration) int {
	days := int(span / (24 * time.Hour))
	switch {
	case days >= 300:
		return 365
	case days >= 20 && days <= 40:
		return 30
	default:
		return 0
	}
}
