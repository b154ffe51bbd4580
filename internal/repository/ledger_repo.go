package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GrantResult describes a committed subscription grant.
type GrantResult struct {
	NewExpiresAt time.Time
	// Action is the history action that was recorded: subscription_started
	// when there was no active subscription, subscription_renewed for billing
	// sources, subscription_extended otherwise.
	Action string
}

// ReferralResult describes a committed referral reward.
type ReferralResult struct {
	WaitlistNumber int
	NewExpiresAt   time.Time
}

// LedgerRepository owns the atomic state transitions on entitlement data.
// Every method commits the field update(s) together with exactly one audit row
// in a single transaction; on any failure nothing is applied. The target row
// is locked for the duration of the transaction, so concurrent operations on
// the same user serialize at the commit and the "extend from the greater of
// current expiry and now" base is always evaluated against the committed value.
type LedgerRepository interface {
	// GrantSubscriptionDays extends the user's subscription by days, counting
	// from the current expiry when it is still in the future and from now
	// otherwise. A non-empty eventID is claimed in the same transaction;
	// ErrEventAlreadyProcessed is returned if it was claimed before, making
	// duplicate webhook deliveries and promotion reruns no-ops.
	GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*GrantResult, error)
	// RedeemLicenseKey consumes an unused key and credits its amount of
	// tokens, recording a deposit transaction. The used flip is the
	// serialization point: a concurrent second redemption fails with
	// ErrKeyAlreadyUsed (or ErrKeyAlreadyUsedBySelf for the same user).
	RedeemLicenseKey(ctx context.Context, userID, code string) (int, error)
	// ApplyReferralReward moves the referrer one waitlist rank up (floored at
	// 1) and extends their subscription by one day.
	ApplyReferralReward(ctx context.Context, referrerID, referredEmail string) (*ReferralResult, error)
	// VerifyEmail consumes an unexpired verification token: marks the email
	// verified, grants one subscription day, and deletes every token for the
	// identifier so the link cannot be replayed.
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	// SpendTokens decrements the balance by amount, recording a cost
	// transaction. Returns ErrInsufficientTokens without mutating anything if
	// the balance is too low; the balance never goes negative.
	SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error)
}

type ledgerRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedgerRepo creates a new LedgerRepository.
func NewLedgerRepo(pool *pgxpool.Pool) LedgerRepository {
	return &ledgerRepo{pool: pool, now: time.Now}
}

// claimEvent inserts the idempotency marker inside tx. Returns
// ErrEventAlreadyProcessed when (source, eventID) was claimed before.
func claimEvent(ctx context.Context, tx pgx.Tx, source, eventID string) error {
	const q = `INSERT INTO webhook_events (source, external_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	tag, err := tx.Exec(ctx, q, source, eventID)
	if err != nil {
		return fmt.Errorf("claim event %s/%s: %w", source, eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventAlreadyProcessed
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, userID, action, description string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal history metadata: %w", err)
	}
	const q = `INSERT INTO history (user_id, action, description, metadata) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, q, userID, action, description, raw); err != nil {
		return fmt.Errorf("insert history row for user %s: %w", userID, err)
	}
	return nil
}

// extendSubscription applies the stacking rule against the locked row and
// returns the new expiry plus the history action for the change.
func extendSubscription(ctx context.Context, tx pgx.Tx, userID string, days int, source string, now time.Time) (time.Time, string, time.Time, bool, error) {
	var current *time.Time
	const sel = `SELECT subscription_expires_at FROM users WHERE user_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, sel, userID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, "", time.Time{}, false, ErrNotFound
		}
		return time.Time{}, "", time.Time{}, false, fmt.Errorf("lock user %s: %w", userID, err)
	}

	base := now
	active := current != nil && current.After(now)
	if active {
		base = *current
	}
	newExpiresAt := base.AddDate(0, 0, days)

	action := model.ActionSubscriptionStarted
	if active {
		switch source {
		case model.SourceStripe, model.SourceGumroad:
			action = model.ActionSubscriptionRenewed
		default:
			action = model.ActionSubscriptionExtended
		}
	}

	const upd = `UPDATE users SET subscription_expires_at = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := tx.Exec(ctx, upd, userID, newExpiresAt); err != nil {
		return time.Time{}, "", time.Time{}, false, fmt.Errorf("update expiry for user %s: %w", userID, err)
	}

	var prev time.Time
	if current != nil {
		prev = *current
	}
	return newExpiresAt, action, prev, active, nil
}

func (r *ledgerRepo) GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*GrantResult, error) {
	if days <= 0 {
		return nil, fmt.Errorf("grant days must be positive, got %d", days)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin grant transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if eventID != "" {
		if err := claimEvent(ctx, tx, source, eventID); err != nil {
			return nil, err
		}
	}

	now := r.now().UTC()
	newExpiresAt, action, prev, wasActive, err := extendSubscription(ctx, tx, userID, days, source, now)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"source":         source,
		"days":           days,
		"new_expires_at": newExpiresAt,
	}
	if wasActive {
		meta["previous_expires_at"] = prev
	}
	for k, v := range metadata {
		meta[k] = v
	}
	desc := fmt.Sprintf("subscription extended by %d day(s) via %s", days, source)
	if err := insertHistory(ctx, tx, userID, action, desc, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit grant for user %s: %w", userID, err)
	}
	return &GrantResult{NewExpiresAt: newExpiresAt, Action: action}, nil
}

func (r *ledgerRepo) RedeemLicenseKey(ctx context.Context, userID, code string) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin redemption transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		keyID  string
		amount int
		used   bool
		usedBy *string
	)
	const sel = `SELECT id, amount, used, used_by FROM license_keys WHERE code = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, sel, code).Scan(&keyID, &amount, &used, &usedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrKeyNotFound
		}
		return 0, fmt.Errorf("lock license key: %w", err)
	}
	if used {
		if usedBy != nil && *usedBy == userID {
			return 0, ErrKeyAlreadyUsedBySelf
		}
		return 0, ErrKeyAlreadyUsed
	}

	const markUsed = `UPDATE license_keys SET used = TRUE, used_by = $2, used_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, markUsed, keyID, userID); err != nil {
		return 0, fmt.Errorf("mark license key used: %w", err)
	}

	const credit = `UPDATE users SET tokens = tokens + $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := tx.Exec(ctx, credit, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit tokens for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	const insertTx = `INSERT INTO transactions (user_id, type, amount, description) VALUES ($1, $2, $3, $4)`
	desc := fmt.Sprintf("license key %s redeemed", obfuscateKey(code))
	if _, err := tx.Exec(ctx, insertTx, userID, model.TransactionDeposit, amount, desc); err != nil {
		return 0, fmt.Errorf("insert deposit transaction for user %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit redemption for user %s: %w", userID, err)
	}
	return amount, nil
}

func (r *ledgerRepo) ApplyReferralReward(ctx context.Context, referrerID, referredEmail string) (*ReferralResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin referral transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		current  *time.Time
		waitlist int
	)
	const sel = `SELECT subscription_expires_at, waitlist_number FROM users WHERE user_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, sel, referrerID).Scan(&current, &waitlist); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock referrer %s: %w", referrerID, err)
	}

	newWaitlist := waitlist - 1
	if newWaitlist < 1 {
		newWaitlist = 1
	}

	now := r.now().UTC()
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	newExpiresAt := base.AddDate(0, 0, 1)

	const upd = `UPDATE users SET waitlist_number = $2, subscription_expires_at = $3, updated_at = NOW() WHERE user_id = $1`
	if _, err := tx.Exec(ctx, upd, referrerID, newWaitlist, newExpiresAt); err != nil {
		return nil, fmt.Errorf("update referrer %s: %w", referrerID, err)
	}

	meta := map[string]any{
		"source":            model.SourceReferral,
		"referred_email":    referredEmail,
		"previous_waitlist": waitlist,
		"new_waitlist":      newWaitlist,
		"new_expires_at":    newExpiresAt,
	}
	desc := fmt.Sprintf("referral reward: waitlist #%d, +1 subscription day", newWaitlist)
	if err := insertHistory(ctx, tx, referrerID, model.ActionReferralReward, desc, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit referral reward for %s: %w", referrerID, err)
	}
	return &ReferralResult{WaitlistNumber: newWaitlist, NewExpiresAt: newExpiresAt}, nil
}

func (r *ledgerRepo) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin verification transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var identifier string
	const selToken = `SELECT identifier FROM verification_tokens WHERE token = $1 AND expires > NOW()`
	if err := tx.QueryRow(ctx, selToken, token).Scan(&identifier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("look up verification token: %w", err)
	}

	var userID string
	const selUser = `SELECT user_id FROM users WHERE LOWER(email) = LOWER($1) FOR UPDATE`
	if err := tx.QueryRow(ctx, selUser, identifier).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user for %s: %w", identifier, err)
	}

	now := r.now().UTC()
	const markVerified = `UPDATE users SET email_verified_at = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := tx.Exec(ctx, markVerified, userID, now); err != nil {
		return nil, fmt.Errorf("mark email verified for user %s: %w", userID, err)
	}

	newExpiresAt, action, prev, wasActive, err := extendSubscription(ctx, tx, userID, 1, model.SourceEmailVerification, now)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"source":         model.SourceEmailVerification,
		"days":           1,
		"new_expires_at": newExpiresAt,
	}
	if wasActive {
		meta["previous_expires_at"] = prev
	}
	if err := insertHistory(ctx, tx, userID, action, "email verified, 1 subscription day granted", meta); err != nil {
		return nil, err
	}

	// Single-use by construction: every token for the identifier goes away.
	const del = `DELETE FROM verification_tokens WHERE identifier = $1`
	if _, err := tx.Exec(ctx, del, identifier); err != nil {
		return nil, fmt.Errorf("delete verification tokens for %s: %w", identifier, err)
	}

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("reload verified user %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit verification for user %s: %w", userID, err)
	}
	return user, nil
}

func (r *ledgerRepo) SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive, got %d", amount)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin spend transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var balance int
	const sel = `SELECT tokens FROM users WHERE user_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, sel, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock user %s: %w", userID, err)
	}
	if balance < amount {
		return 0, ErrInsufficientTokens
	}

	remaining := balance - amount
	const upd = `UPDATE users SET tokens = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := tx.Exec(ctx, upd, userID, remaining); err != nil {
		return 0, fmt.Errorf("decrement tokens for user %s: %w", userID, err)
	}

	const insertTx = `INSERT INTO transactions (user_id, type, amount, description) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insertTx, userID, model.TransactionCost, -amount, description); err != nil {
		return 0, fmt.Errorf("insert cost transaction for user %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit spend for user %s: %w", userID, err)
	}
	return remaining, nil
}

// obfuscateKey keeps the first group of a key readable in transaction
// descriptions without exposing the whole code.
func obfuscateKey(code string) string {
	if len(code) <= 4 {
		return code
	}
	return code[:4] + "-****"
}
