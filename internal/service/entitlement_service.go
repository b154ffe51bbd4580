package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/repository"

	"github.com/rs/zerolog"
)

// Gate denial reasons. Callers branch on these to show upgrade vs top-up UI.
var (
	ErrSubscriptionRequired = errors.New("subscription_required")
	ErrInsufficientTokens   = errors.New("insufficient_tokens")
	ErrUnknownAction        = errors.New("unknown_action")
)

// Policy describes how a single action is gated: either an active
// subscription is required, or a fixed number of tokens is charged.
type Policy struct {
	SubscriptionRequired bool
	TokenCost            int
}

// actionPolicies is the single source of truth for per-action gating. Every
// paid endpoint consults this table through Authorize; no endpoint carries its
// own ad hoc check.
var actionPolicies = map[string]Policy{
	"merge":        {SubscriptionRequired: true},
	"sign":         {SubscriptionRequired: true},
	"summarize":    {SubscriptionRequired: true},
	"image_prompt": {SubscriptionRequired: true},
	"convert":      {TokenCost: 1},
}

// EntitlementService is the read side of the ledger: it decides whether a
// user may perform a paid action right now. Checks always read fresh state;
// token-metered actions charge atomically through the ledger so the balance
// can never go negative under concurrent requests.
type EntitlementService interface {
	// Authorize gates the action for the user, charging tokens when the
	// policy is token-metered. Returns ErrSubscriptionRequired or
	// ErrInsufficientTokens on denial.
	Authorize(ctx context.Context, userID, action string) error
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	HasTokens(ctx context.Context, userID string, required int) (bool, error)
}

type entitlementService struct {
	userRepo repository.UserRepository
	ledger   LedgerService
	now      func() time.Time
	logger   zerolog.Logger
}

// NewEntitlementService creates an EntitlementService with a scoped logger.
func NewEntitlementService(userRepo repository.UserRepository, ledger LedgerService, logger zerolog.Logger) EntitlementService {
	return &entitlementService{
		userRepo: userRepo,
		ledger:   ledger,
		now:      time.Now,
		logger:   logger.With().Str("service", "EntitlementService").Logger(),
	}
}

func (s *entitlementService) Authorize(ctx context.Context, userID, action string) error {
	policy, ok := actionPolicies[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if policy.SubscriptionRequired {
		active, err := s.HasActiveSubscription(ctx, userID)
		if err != nil {
			return err
		}
		if !active {
			s.logger.Info().Str("user_id", userID).Str("action", action).Msg("Gate denied, no active subscription")
			return ErrSubscriptionRequired
		}
		return nil
	}
	desc := fmt.Sprintf("%s action", action)
	if _, err := s.ledger.SpendTokens(ctx, userID, policy.TokenCost, desc); err != nil {
		if errors.Is(err, repository.ErrInsufficientTokens) {
			s.logger.Info().Str("user_id", userID).Str("action", action).Msg("Gate denied, insufficient tokens")
			return ErrInsufficientTokens
		}
		return err
	}
	return nil
}

func (s *entitlementService) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.Subscribed(s.now()), nil
}

func (s *entitlementService) HasTokens(ctx context.Context, userID string, required int) (bool, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.Tokens >= required, nil
}
