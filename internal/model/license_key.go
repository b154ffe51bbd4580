package model

import "time"

// LicenseKey is a single-use code that credits tokens when redeemed.
type LicenseKey struct {
	ID     string     `db:"id" json:"id"`
	Code   string     `db:"code" json:"code"`
	Amount int        `db:"amount" json:"amount"`
	Used   bool       `db:"used" json:"used"`
	UsedBy *string    `db:"used_by" json:"used_by,omitempty"`
	UsedAt *time.Time `db:"used_at" json:"used_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
