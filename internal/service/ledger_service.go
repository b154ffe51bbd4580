package service

import (
	"context"
	"errors"
	"strings"

	"app/internal/model"
	"app/internal/notify"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// LedgerService exposes the atomic entitlement transitions to intake adapters.
// The repository owns atomicity; this layer owns logging and the post-commit
// notifications.
type LedgerService interface {
	GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*repository.GrantResult, error)
	RedeemLicenseKey(ctx context.Context, userID, rawKey string) (int, error)
	// ApplyReferralReward is best-effort: a referrer id that does not resolve
	// to a user is a silent no-op so a bad referral never blocks signup.
	ApplyReferralReward(ctx context.Context, referrerID, newUserID, newUserEmail string) error
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error)
}

type ledgerService struct {
	repo     repository.LedgerRepository
	userRepo repository.UserRepository
	notifier *notify.Notifier
	logger   zerolog.Logger
}

// NewLedgerService creates a LedgerService with a scoped logger.
func NewLedgerService(repo repository.LedgerRepository, userRepo repository.UserRepository, notifier *notify.Notifier, logger zerolog.Logger) LedgerService {
	return &ledgerService{
		repo:     repo,
		userRepo: userRepo,
		notifier: notifier,
		logger:   logger.With().Str("service", "LedgerService").Logger(),
	}
}

func (s *ledgerService) GrantSubscriptionDays(ctx context.Context, userID string, days int, source string, metadata map[string]any, eventID string) (*repository.GrantResult, error) {
	res, err := s.repo.GrantSubscriptionDays(ctx, userID, days, source, metadata, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventAlreadyProcessed) {
			s.logger.Info().Str("user_id", userID).Str("source", source).Str("event_id", eventID).Msg("Duplicate event, grant skipped")
		} else {
			s.logger.Error().Err(err).Str("user_id", userID).Str("source", source).Msg("Failed to grant subscription days")
		}
		return nil, err
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("source", source).
		Int("days", days).
		Time("new_expires_at", res.NewExpiresAt).
		Str("action", res.Action).
		Msg("Subscription days granted")

	if s.notifier != nil && (source == model.SourceStripe || source == model.SourceGumroad) {
		if u, uerr := s.userRepo.GetUserByID(ctx, userID); uerr == nil {
			s.notifier.Send(notify.MailJob{
				Template: notify.MailSubscriptionActivated,
				To:       u.Email,
				Data: map[string]string{
					"source":     source,
					"expires_at": res.NewExpiresAt.Format("2006-01-02"),
				},
			})
		}
	}
	return res, nil
}

func (s *ledgerService) RedeemLicenseKey(ctx context.Context, userID, rawKey string) (int, error) {
	code := strings.ToUpper(strings.TrimSpace(rawKey))
	amount, err := s.repo.RedeemLicenseKey(ctx, userID, code)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrKeyNotFound),
			errors.Is(err, repository.ErrKeyAlreadyUsed),
			errors.Is(err, repository.ErrKeyAlreadyUsedBySelf):
			s.logger.Info().Str("user_id", userID).Err(err).Msg("License key redemption rejected")
		default:
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to redeem license key")
		}
		return 0, err
	}
	s.logger.Info().Str("user_id", userID).Int("amount", amount).Msg("License key redeemed")
	return amount, nil
}

func (s *ledgerService) ApplyReferralReward(ctx context.Context, referrerID, newUserID, newUserEmail string) error {
	if referrerID == "" || referrerID == newUserID {
		return nil
	}
	res, err := s.repo.ApplyReferralReward(ctx, referrerID, newUserEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info().Str("referrer_id", referrerID).Msg("Referrer not found, skipping reward")
			return nil
		}
		s.logger.Error().Err(err).Str("referrer_id", referrerID).Msg("Failed to apply referral reward")
		return err
	}
	s.logger.Info().
		Str("referrer_id", referrerID).
		Int("waitlist_number", res.WaitlistNumber).
		Time("new_expires_at", res.NewExpiresAt).
		Msg("Referral reward applied")
	return nil
}

func (s *ledgerService) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	user, err := s.repo.VerifyEmail(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) || errors.Is(err, repository.ErrNotFound) {
			s.logger.Info().Err(err).Msg("Email verification rejected")
		} else {
			s.logger.Error().Err(err).Msg("Failed to verify email")
		}
		return nil, err
	}
	s.logger.Info().Str("user_id", user.UserID).Msg("Email verified, 1 subscription day granted")
	return user, nil
}

func (s *ledgerService) SpendTokens(ctx context.Context, userID string, amount int, description string) (int, error) {
	remaining, err := s.repo.SpendTokens(ctx, userID, amount, description)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientTokens) {
			s.logger.Info().Str("user_id", userID).Int("amount", amount).Msg("Token spend rejected, insufficient balance")
		} else {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to spend tokens")
		}
		return 0, err
	}
	return remaining, nil
}
