package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserService struct {
	lastSignup service.SignupInput
	signupErr  error
	loginErr   error
	user       *model.User
}

var _ service.UserService = (*fakeUserService)(nil)

func (f *fakeUserService) Signup(_ context.Context, in service.SignupInput) (*model.User, error) {
	f.lastSignup = in
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return f.user, nil
}

func (f *fakeUserService) Login(context.Context, string, string) (string, *model.User, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return "session-token", f.user, nil
}

func (f *fakeUserService) Get(context.Context, string) (*model.User, error) {
	return f.user, nil
}

func newAuthMux(svc service.UserService) *http.ServeMux {
	h := NewAuthHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func postSignup(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSignupWithoutName(t *testing.T) {
	svc := &fakeUserService{user: &model.User{UserID: "u1", Email: "a@example.com", WaitlistNumber: 234}}
	mux := newAuthMux(svc)

	rec := postSignup(mux, `{"email":"a@example.com","password":"password123"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp dto.AuthResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "session-token", resp.Token)
	assert.Equal(t, "u1", resp.User.UserID)
	assert.Empty(t, svc.lastSignup.Name)
}

func TestSignupForwardsReferrer(t *testing.T) {
	svc := &fakeUserService{user: &model.User{UserID: "u1", Email: "a@example.com", WaitlistNumber: 234}}
	mux := newAuthMux(svc)

	rec := postSignup(mux, `{"email":"a@example.com","password":"password123","name":"Ada","referredBy":"ref-9"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ref-9", svc.lastSignup.ReferredBy)
	assert.Equal(t, "Ada", svc.lastSignup.Name)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := &fakeUserService{signupErr: service.ErrEmailAlreadyRegistered}
	mux := newAuthMux(svc)

	rec := postSignup(mux, `{"email":"a@example.com","password":"password123"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered")
}

func TestSignupValidation(t *testing.T) {
	mux := newAuthMux(&fakeUserService{})

	assert.Equal(t, http.StatusBadRequest, postSignup(mux, `{"email":"not-an-email","password":"password123"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postSignup(mux, `{"email":"a@example.com","password":"short"}`).Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := &fakeUserService{loginErr: service.ErrInvalidCredentials}
	mux := newAuthMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"wrongpassword"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
