package model

import "time"

// User represents an account and its entitlement state.
type User struct {
	UserID       string `db:"user_id" json:"user_id"`
	Email        string `db:"email" json:"email"`
	Name         string `db:"name" json:"name"`
	PasswordHash *string `db:"password_hash" json:"-"`

	// Entitlement fields. A user is subscribed iff SubscriptionExpiresAt is
	// set and strictly in the future.
	SubscriptionExpiresAt *time.Time `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	Tokens                int        `db:"tokens" json:"tokens"`
	WaitlistNumber        int        `db:"waitlist_number" json:"waitlist_number"`
	EmailVerifiedAt       *time.Time `db:"email_verified_at" json:"email_verified_at,omitempty"`

	StripeCustomerID *string `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Subscribed reports whether the user has an active subscription at t.
func (u *User) Subscribed(t time.Time) bool {
	return u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(t)
}
