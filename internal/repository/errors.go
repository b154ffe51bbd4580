package repository

import "errors"

// Sentinel errors surfaced to services, which map them to machine-readable
// failure reasons at the adapter boundary.
var (
	ErrNotFound              = errors.New("not_found")
	ErrDuplicateEmail        = errors.New("email_already_registered")
	ErrKeyNotFound           = errors.New("invalid_key")
	ErrKeyAlreadyUsed        = errors.New("key_already_used")
	ErrKeyAlreadyUsedBySelf  = errors.New("key_already_used_by_you")
	ErrInsufficientTokens    = errors.New("insufficient_tokens")
	ErrTokenNotFound         = errors.New("invalid_or_expired_token")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
