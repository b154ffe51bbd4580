package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"app/internal/middleware"
	"app/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func postRedeem(ledger *fakeLedger, body string, authed bool) *httptest.ResponseRecorder {
	h := NewLicenseHandler(ledger, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	req := httptest.NewRequest("POST", "/license/redeem", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		ctx := context.WithValue(req.Context(), middleware.UserContextKey, "u1")
		req = req.WithContext(ctx)
	}
	w := httptest.NewRecorder()
	h.redeem(w, req)
	return w
}

func TestRedeemSuccess(t *testing.T) {
	w := postRedeem(&fakeLedger{redeemAmount: 50}, `{"licenseKey":"ABCD-EFGH-JKLM-NPQR"}`, true)
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"amount":50}`, w.Body.String())
}

func TestRedeemRequiresAuth(t *testing.T) {
	w := postRedeem(&fakeLedger{}, `{"licenseKey":"ABCD"}`, false)
	assert.Equal(t, 401, w.Code)
}

func TestRedeemErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{repository.ErrKeyNotFound, 400, "invalid_key"},
		{repository.ErrKeyAlreadyUsedBySelf, 400, "key_already_redeemed"},
		{repository.ErrKeyAlreadyUsed, 400, "key_already_used"},
	}
	for _, tc := range cases {
		w := postRedeem(&fakeLedger{redeemErr: tc.err}, `{"licenseKey":"ABCD-EFGH-JKLM-NPQR"}`, true)
		assert.Equal(t, tc.code, w.Code, tc.body)
		assert.Contains(t, w.Body.String(), tc.body)
	}
}

func TestRedeemValidation(t *testing.T) {
	w := postRedeem(&fakeLedger{}, `{}`, true)
	assert.Equal(t, 400, w.Code)

	w = postRedeem(&fakeLedger{}, `not json`, true)
	assert.Equal(t, 400, w.Code)
}
