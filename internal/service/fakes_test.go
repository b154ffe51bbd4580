package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"app/internal/model"
	"app/internal/repository"
)

// fakeUserRepo is an in-memory UserRepository for service tests.
type fakeUserRepo struct {
	mu           sync.Mutex
	users        map[string]*model.User
	nextWaitlist int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}, nextWaitlist: 234}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if u.UserID == "" {
		u.UserID = fmt.Sprintf("user-%d", len(f.users)+1)
	}
	u.WaitlistNumber = f.nextWaitlist
	f.nextWaitlist++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.UserID] = &cp
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.StripeCustomerID = &customerID
	return nil
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserRepo) add(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.UserID] = &cp
}

// grantCall records one GrantSubscriptionDays invocation.
type grantCall struct {
	UserID  string
	Days    int
	Source  string
	EventID string
}

// fakeLedgerRepo is an in-memory LedgerRepository. It mirrors the dedupe and
// balance semantics of the real one closely enough for service tests.
type fakeLedgerRepo struct {
	mu          sync.Mutex
	users       *fakeUserRepo
	claimed     map[string]bool
	grants      []grantCall
	spends      map[string]int
	grantErr    error
	tokens      map[string]*model.VerificationToken
	licenseKeys map[string]*model.LicenseKey
}

func newFakeLedgerRepo(users *fakeUserRepo) *fakeLedgerRepo {
	return &fakeLedgerRepo{
		users:       users,
		claimed:     map[string]bool{},
		spends:      map[string]int{},
		tokens:      map[string]*model.VerificationToken{},
		licenseKeys: map[string]*model.LicenseKey{},
	}
}

func (f *fakeLedgerRepo) addKey(code string, amount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.licenseKeys[code] = &model.LicenseKey{Code: code, Amount: amount}
}

func (f *fakeLedgerRepo) GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*repository.GrantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	if eventID != "" {
		key := source + ":" + eventID
		if f.claimed[key] {
			return nil, repository.ErrEventAlreadyProcessed
		}
		f.claimed[key] = true
	}
	u, ok := f.users.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	now := time.Now()
	base := now
	action := model.ActionSubscriptionStarted
	if u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now) {
		base = *u.SubscriptionExpiresAt
		action = model.ActionSubscriptionExtended
	}
	exp := base.AddDate(0, 0, days)
	u.SubscriptionExpiresAt = &exp
	f.grants = append(f.grants, grantCall{UserID: userID, Days: days, Source: source, EventID: eventID})
	return &repository.GrantResult{NewExpiresAt: exp, Action: action}, nil
}

func (f *fakeLedgerRepo) RedeemLicenseKey(ctx context.Context, userID, code string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.licenseKeys[code]
	if !ok {
		return 0, repository.ErrKeyNotFound
	}
	if k.Used {
		if k.UsedBy != nil && *k.UsedBy == userID {
			return 0, repository.ErrKeyAlreadyUsedBySelf
		}
		return 0, repository.ErrKeyAlreadyUsed
	}
	u, ok := f.users.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	now := time.Now()
	k.Used = true
	k.UsedBy = &userID
	k.UsedAt = &now
	u.Tokens += k.Amount
	return k.Amount, nil
}

func (f *fakeLedgerRepo) ApplyReferralReward(ctx context.Context, referrerID, referredEmail string) (*repository.ReferralResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users.users[referrerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.WaitlistNumber > 1 {
		u.WaitlistNumber--
	}
	now := time.Now()
	base := now
	if u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now) {
		base = *u.SubscriptionExpiresAt
	}
	exp := base.AddDate(0, 0, 1)
	u.SubscriptionExpiresAt = &exp
	return &repository.ReferralResult{WaitlistNumber: u.WaitlistNumber, NewExpiresAt: exp}, nil
}

func (f *fakeLedgerRepo) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vt, ok := f.tokens[token]
	if !ok || vt.Expires.Before(time.Now()) {
		return nil, repository.ErrTokenNotFound
	}
	delete(f.tokens, token)
	for _, u := range f.users.users {
		if u.Email == vt.Identifier {
			now := time.Now()
			u.EmailVerifiedAt = &now
			exp := now.AddDate(0, 0, 1)
			u.SubscriptionExpiresAt = &exp
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLedgerRepo) SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if u.Tokens < amount {
		return 0, repository.ErrInsufficientTokens
	}
	u.Tokens -= amount
	f.spends[userID] += amount
	return u.Tokens, nil
}

// fakeTokenRepo records installed verification tokens.
type fakeTokenRepo struct {
	mu     sync.Mutex
	byMail map[string]*model.VerificationToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byMail: map[string]*model.VerificationToken{}}
}

func (f *fakeTokenRepo) Replace(ctx context.Context, t *model.VerificationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.byMail[t.Identifier] = &cp
	return nil
}

// fakeLicenseKeyRepo stores generated batches in memory.
type fakeLicenseKeyRepo struct {
	mu   sync.Mutex
	keys map[string]model.LicenseKey
}

func newFakeLicenseKeyRepo() *fakeLicenseKeyRepo {
	return &fakeLicenseKeyRepo{keys: map[string]model.LicenseKey{}}
}

func (f *fakeLicenseKeyRepo) CreateBatch(ctx context.Context, keys []model.LicenseKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		if _, exists := f.keys[k.Code]; exists {
			return fmt.Errorf("duplicate key code %s", k.Code)
		}
		f.keys[k.Code] = k
	}
	return nil
}

func (f *fakeLicenseKeyRepo) GetByCode(ctx context.Context, code string) (*model.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[code]
	if !ok {
		return nil, repository.ErrKeyNotFound
	}
	return &k, nil
}
