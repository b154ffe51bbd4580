package service

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"
	"app/internal/notify"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// PromoResult summarizes one promotion run.
type PromoResult struct {
	TotalUsers int      `json:"totalUsers"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	EmailsSent int      `json:"emailsSent"`
	DryRun     bool     `json:"dryRun"`
	Errors     []string `json:"errors,omitempty"`
}

// PromoService runs the scheduled free-subscription promotion: every user
// gets the configured number of days. Per-user failures are collected, never
// aborting the run. A run key makes reruns idempotent: users already granted
// under the same key are skipped. Dry-run suppresses the grant, the audit row
// and the mail together, so the audit trail never claims a change that did
// not happen.
type PromoService struct {
	userRepo repository.UserRepository
	ledger   LedgerService
	notifier *notify.Notifier
	logger   zerolog.Logger
}

// NewPromoService returns the service with a scoped logger.
func NewPromoService(userRepo repository.UserRepository, ledger LedgerService, notifier *notify.Notifier, logger zerolog.Logger) *PromoService {
	return &PromoService{
		userRepo: userRepo,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With().Str("service", "PromoService").Logger(),
	}
}

// Run executes the promotion for every user.
func (s *PromoService) Run(ctx context.Context, days int, runKey string, dryRun bool) (*PromoResult, error) {
	if days <= 0 {
		return nil, fmt.Errorf("promotion days must be positive, got %d", days)
	}
	if runKey == "" {
		return nil, errors.New("promotion run key is required")
	}

	users, err := s.userRepo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users for promotion: %w", err)
	}

	res := &PromoResult{TotalUsers: len(users), DryRun: dryRun}
	for _, u := range users {
		if dryRun {
			continue
		}
		eventID := fmt.Sprintf("promo:%s:%s", runKey, u.UserID)
		meta := map[string]any{"run_key": runKey}
		_, err := s.ledger.GrantSubscriptionDays(ctx, u.UserID, days, model.SourceFreeSubscription, meta, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventAlreadyProcessed) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", u.UserID, err))
			continue
		}
		res.Updated++
		if s.notifier != nil {
			s.notifier.Send(notify.MailJob{
				Template: notify.MailFreeSubscription,
				To:       u.Email,
				Data:     map[string]string{"days": fmt.Sprintf("%d", days)},
			})
			res.EmailsSent++
		}
	}

	s.logger.Info().
		Str("run_key", runKey).
		Bool("dry_run", dryRun).
		Int("total", res.TotalUsers).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Msg("Promotion run finished")
	return res, nil
}
