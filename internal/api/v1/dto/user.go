package dto

import "time"

// SignupDTO is used for incoming signup requests
type SignupDTO struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Name       string `json:"name,omitempty"`
	ReferredBy string `json:"referredBy,omitempty"`
}

// LoginDTO is used for incoming login requests
type LoginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponseDTO is returned after a successful signup or login
type AuthResponseDTO struct {
	Token string          `json:"token"`
	User  UserResponseDTO `json:"user"`
}

// UserResponseDTO is returned in API responses
type UserResponseDTO struct {
	UserID                string     `json:"user_id"`
	Email                 string     `json:"email"`
	Name                  string     `json:"name"`
	Tokens                int        `json:"tokens"`
	WaitlistNumber        int        `json:"waitlist_number"`
	Subscribed            bool       `json:"subscribed"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	EmailVerified         bool       `json:"email_verified"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
