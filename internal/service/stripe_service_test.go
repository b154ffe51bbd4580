package service

import (
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const stripeWebhookSecret = "whsec_test"

// stripeAPIVersion must match the API version pinned by the stripe-go client
// or ConstructEvent rejects the event.
const stripeAPIVersion = "2025-07-30.basil"

func newStripeFixture(t *testing.T) (*fakeLedgerRepo, *StripeService) {
	t.Helper()
	users := newFakeUserRepo()
	ledgerRepo := newFakeLedgerRepo(users)
	ledger := NewLedgerService(ledgerRepo, users, nil, zerolog.Nop())
	cfg := &config.Config{
		StripeSecretKey:     "sk_test_x",
		StripeWebhookSecret: stripeWebhookSecret,
	}
	return ledgerRepo, NewStripeService(cfg, users, ledger, zerolog.Nop())
}

// signStripePayload builds a Stripe-Signature header the verifier accepts.
func signStripePayload(payload string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), stripeWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	users := newFakeUserRepo()
	ledger := NewLedgerService(newFakeLedgerRepo(users), users, nil, zerolog.Nop())
	svc := NewStripeService(&config.Config{}, users, ledger, zerolog.Nop())

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	svc.HandleWebhook(w, req)
	assert.Equal(t, 503, w.Code)
}

func TestStripeWebhookBadSignature(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"type":"invoice.paid"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	svc.HandleWebhook(w, req)

	assert.Equal(t, 400, w.Code)
	assert.Empty(t, ledgerRepo.grants)
}

func postStripe(svc *StripeService, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload))
	w := httptest.NewRecorder()
	svc.HandleWebhook(w, req)
	return w
}

// invoicePaidPayload builds a signed-ready invoice.paid event whose line item
// carries the subscription id and the covered billing period.
func invoicePaidPayload(invoiceID, email string, periodDays int) string {
	start := time.Now().Unix()
	end := start + int64(periodDays)*24*60*60
	return fmt.Sprintf(
		`{"id":"evt_%s","api_version":%q,"type":"invoice.paid","data":{"object":{"id":%q,"customer_email":%q,"lines":{"data":[{"subscription":"sub_1","period":{"start":%d,"end":%d}}]}}}}`,
		invoiceID, stripeAPIVersion, invoiceID, email, start, end,
	)
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)

	payload := fmt.Sprintf(`{"id":"evt_1","api_version":%q,"type":"checkout.session.completed","data":{"object":{}}}`, stripeAPIVersion)
	w := postStripe(svc, payload)

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.Empty(t, ledgerRepo.grants)
}

func TestStripeWebhookInvoicePaidGrantsMonthly(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)
	svc.userRepo.(*fakeUserRepo).add(model.User{UserID: "u1", Email: "payer@example.com"})

	w := postStripe(svc, invoicePaidPayload("in_1", "payer@example.com", 30))

	require.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	require.Len(t, ledgerRepo.grants, 1)
	g := ledgerRepo.grants[0]
	assert.Equal(t, "u1", g.UserID)
	assert.Equal(t, 30, g.Days)
	assert.Equal(t, model.SourceStripe, g.Source)
	assert.Equal(t, "invoice:in_1", g.EventID)
}

func TestStripeWebhookInvoicePaidGrantsYearly(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)
	svc.userRepo.(*fakeUserRepo).add(model.User{UserID: "u1", Email: "payer@example.com"})

	w := postStripe(svc, invoicePaidPayload("in_2", "payer@example.com", 365))

	require.Equal(t, 200, w.Code)
	require.Len(t, ledgerRepo.grants, 1)
	assert.Equal(t, 365, ledgerRepo.grants[0].Days)
}

func TestStripeWebhookDuplicateInvoiceGrantsOnce(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)
	svc.userRepo.(*fakeUserRepo).add(model.User{UserID: "u1", Email: "payer@example.com"})

	payload := invoicePaidPayload("in_1", "payer@example.com", 30)
	first := postStripe(svc, payload)
	second := postStripe(svc, payload)

	assert.Equal(t, 200, first.Code)
	assert.Equal(t, 200, second.Code)
	assert.Len(t, ledgerRepo.grants, 1)
}

func TestStripeWebhookUnknownUserAcked(t *testing.T) {
	ledgerRepo, svc := newStripeFixture(t)

	w := postStripe(svc, invoicePaidPayload("in_3", "ghost@example.com", 30))

	assert.Equal(t, 200, w.Code)
	assert.Empty(t, ledgerRepo.grants)
}

func TestStripeCheckoutUnconfigured(t *testing.T) {
	users := newFakeUserRepo()
	ledger := NewLedgerService(newFakeLedgerRepo(users), users, nil, zerolog.Nop())
	svc := NewStripeService(&config.Config{}, users, ledger, zerolog.Nop())

	_, err := svc.CreateCheckoutSession(t.Context(), "u1", "monthly")
	assert.ErrorIs(t, err, ErrStripeNotConfigured)
}
