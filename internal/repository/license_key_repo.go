package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LicenseKeyRepository persists generated license keys. Redemption lives on
// LedgerRepository since it mutates the token balance.
type LicenseKeyRepository interface {
	// CreateBatch inserts the given keys in one transaction. Codes must be
	// unique; a collision fails the whole batch.
	CreateBatch(ctx context.Context, keys []model.LicenseKey) error
}

type licenseKeyRepo struct {
	pool *pgxpool.Pool
}

// NewLicenseKeyRepo creates a new LicenseKeyRepository.
func NewLicenseKeyRepo(pool *pgxpool.Pool) LicenseKeyRepository {
	return &licenseKeyRepo{pool: pool}
}

func (r *licenseKeyRepo) CreateBatch(ctx context.Context, keys []model.LicenseKey) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin key batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	const q = `INSERT INTO license_keys (code, amount) VALUES ($1, $2)`
	for _, k := range keys {
		if _, err := tx.Exec(ctx, q, k.Code, k.Amount); err != nil {
			return fmt.Errorf("insert license key: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit key batch: %w", err)
	}
	return nil
}
