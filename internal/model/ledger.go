package model

import "time"

// Transaction types.
const (
	TransactionDeposit = "deposit"
	TransactionCost    = "cost"
)

// History actions.
const (
	ActionSubscriptionStarted  = "subscription_started"
	ActionSubscriptionRenewed  = "subscription_renewed"
	ActionSubscriptionExtended = "subscription_extended"
	ActionReferralReward       = "referral_reward"
)

// Grant sources.
const (
	SourceStripe            = "stripe"
	SourceGumroad           = "gumroad"
	SourceEmailVerification = "email_verification"
	SourceFreeSubscription  = "job_free_subscription"
	SourceReferral          = "referral"
)

// Transaction is an append-only ledger entry for a token movement. The sum of
// a user's transaction amounts reconciles with their current token balance.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Amount      int       `db:"amount" json:"amount"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// History is an append-only audit entry for a subscription or waitlist change.
type History struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"user_id"`
	Action      string         `db:"action" json:"action"`
	Description string         `db:"description" json:"description"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
