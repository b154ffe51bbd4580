package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AuthHandler handles signup and login endpoints
type AuthHandler struct {
	userService service.UserService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userService service.UserService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, validate: validate, logger: logger}
}

// RegisterRoutes mounts auth routes. Both endpoints are public.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/signup", h.signup)
	mux.HandleFunc("/auth/login", h.login)
}

// signup godoc
// @Summary Create an account
// @Description Registers a new user, assigns a waitlist number and sends a verification email.
// @Tags auth
// @Accept json
// @Produce json
// @Param signup body dto.SignupDTO true "Signup request"
// @Success 201 {object} dto.AuthResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 400 {string} string "Email already registered"
// @Router /auth/signup [post]
func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req dto.SignupDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userService.Signup(r.Context(), service.SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		ReferredBy: req.ReferredBy,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			http.Error(w, "Email already registered", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("Signup failed")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	token, _, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error().Err(err).Msg("Post-signup login failed")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dto.AuthResponseDTO{Token: token, User: toUserResponse(user)})
}

// login godoc
// @Summary Log in
// @Description Exchanges email and password for a session token.
// @Tags auth
// @Accept json
// @Produce json
// @Param login body dto.LoginDTO true "Login request"
// @Success 200 {object} dto.AuthResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req dto.LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	token, user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error().Err(err).Msg("Login failed")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.AuthResponseDTO{Token: token, User: toUserResponse(user)})
}

func toUserResponse(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		UserID:                u.UserID,
		Email:                 u.Email,
		Name:                  u.Name,
		Tokens:                u.Tokens,
		WaitlistNumber:        u.WaitlistNumber,
		Subscribed:            u.Subscribed(timeNow()),
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
		EmailVerified:         u.EmailVerifiedAt != nil,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}
