package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationTokenRepository manages email verification tokens. Consumption
// happens atomically with the verification effect on LedgerRepository.
type VerificationTokenRepository interface {
	// Replace installs a fresh token for the identifier, superseding any prior
	// token for the same email in the same transaction.
	Replace(ctx context.Context, t *model.VerificationToken) error
}

type verificationTokenRepo struct {
	pool *pgxpool.Pool
}

// NewVerificationTokenRepo creates a new VerificationTokenRepository.
func NewVerificationTokenRepo(pool *pgxpool.Pool) VerificationTokenRepository {
	return &verificationTokenRepo{pool: pool}
}

func (r *verificationTokenRepo) Replace(ctx context.Context, t *model.VerificationToken) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin token replace transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1`, t.Identifier); err != nil {
		return fmt.Errorf("delete prior tokens for %s: %w", t.Identifier, err)
	}
	const ins = `INSERT INTO verification_tokens (identifier, token, expires) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, ins, t.Identifier, t.Token, t.Expires); err != nil {
		return fmt.Errorf("insert verification token for %s: %w", t.Identifier, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit token replace for %s: %w", t.Identifier, err)
	}
	return nil
}
