package model

import "time"

// VerificationToken verifies ownership of an email address. At most one live
// token exists per identifier; a new signup for the same email replaces it.
type VerificationToken struct {
	Identifier string    `db:"identifier" json:"identifier"`
	Token      string    `db:"token" json:"-"`
	Expires    time.Time `db:"expires" json:"expires"`
}
