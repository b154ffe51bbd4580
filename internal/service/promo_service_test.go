package service

import (
	"context"
	"testing"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPromoFixture(t *testing.T) (*fakeUserRepo, *fakeLedgerRepo, *PromoService) {
	t.Helper()
	users := newFakeUserRepo()
	ledgerRepo := newFakeLedgerRepo(users)
	ledger := NewLedgerService(ledgerRepo, users, nil, zerolog.Nop())
	return users, ledgerRepo, NewPromoService(users, ledger, nil, zerolog.Nop())
}

func TestPromoRunGrantsEveryUser(t *testing.T) {
	users, ledgerRepo, promo := newPromoFixture(t)
	users.add(model.User{UserID: "a", Email: "a@example.com"})
	users.add(model.User{UserID: "b", Email: "b@example.com"})
	users.add(model.User{UserID: "c", Email: "c@example.com"})

	res, err := promo.Run(context.Background(), 1, "free-days-2026-08-31", false)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalUsers)
	assert.Equal(t, 3, res.Updated)
	assert.Equal(t, 0, res.Skipped)
	assert.Empty(t, res.Errors)
	assert.Len(t, ledgerRepo.grants, 3)
	for _, g := range ledgerRepo.grants {
		assert.Equal(t, model.SourceFreeSubscription, g.Source)
		assert.Equal(t, 1, g.Days)
	}
}

func TestPromoRerunSkipsGrantedUsers(t *testing.T) {
	users, ledgerRepo, promo := newPromoFixture(t)
	users.add(model.User{UserID: "a", Email: "a@example.com"})
	users.add(model.User{UserID: "b", Email: "b@example.com"})

	_, err := promo.Run(context.Background(), 1, "free-days-2026-08-31", false)
	require.NoError(t, err)

	res, err := promo.Run(context.Background(), 1, "free-days-2026-08-31", false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, ledgerRepo.grants, 2, "rerun must not grant again")

	// A different run key grants again.
	res, err = promo.Run(context.Background(), 1, "free-days-2026-09-01", false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
}

func TestPromoDryRunTouchesNothing(t *testing.T) {
	users, ledgerRepo, promo := newPromoFixture(t)
	users.add(model.User{UserID: "a", Email: "a@example.com"})

	res, err := promo.Run(context.Background(), 5, "free-days-2026-08-31", true)
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.TotalUsers)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Empty(t, ledgerRepo.grants)

	u, err := users.GetUserByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, u.SubscriptionExpiresAt)

	// A real run after the dry run still grants: dry runs claim no event IDs.
	res, err = promo.Run(context.Background(), 5, "free-days-2026-08-31", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
}

func TestPromoRejectsBadInput(t *testing.T) {
	_, _, promo := newPromoFixture(t)

	_, err := promo.Run(context.Background(), 0, "key", false)
	assert.Error(t, err)

	_, err = promo.Run(context.Background(), 1, "", false)
	assert.Error(t, err)
}
