package handler

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"
)

// fakeLedger implements service.LedgerService with canned responses.
type fakeLedger struct {
	redeemAmount int
	redeemErr    error
	verifyUser   *model.User
	verifyErr    error
	grants       int
	spendErr     error
}

func (f *fakeLedger) GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*repository.GrantResult, error) {
	f.grants++
	return &repository.GrantResult{NewExpiresAt: time.Now().AddDate(0, 0, days), Action: model.ActionSubscriptionStarted}, nil
}

func (f *fakeLedger) RedeemLicenseKey(ctx context.Context, userID, rawKey string) (int, error) {
	return f.redeemAmount, f.redeemErr
}

func (f *fakeLedger) ApplyReferralReward(ctx context.Context, referrerID, newUserID, newUserEmail string) error {
	return nil
}

func (f *fakeLedger) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	return f.verifyUser, f.verifyErr
}

func (f *fakeLedger) SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error) {
	return 0, f.spendErr
}

var _ service.LedgerService = (*fakeLedger)(nil)

// fakeUserRepo is the minimal repository.UserRepository for handler tests.
type fakeUserRepo struct {
	users []model.User
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, u *model.User) error { return nil }

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	for i := range f.users {
		if f.users[i].UserID == id {
			return &f.users[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for i := range f.users {
		if f.users[i].Email == email {
			return &f.users[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	return nil
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	return f.users, nil
}

// fakeLicenseKeyRepo accepts any batch.
type fakeLicenseKeyRepo struct {
	created []model.LicenseKey
}

func (f *fakeLicenseKeyRepo) CreateBatch(ctx context.Context, keys []model.LicenseKey) error {
	f.created = append(f.created, keys...)
	return nil
}
