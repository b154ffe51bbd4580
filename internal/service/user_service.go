package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"app/internal/model"
	"app/internal/notify"
	"app/internal/repository"
	"app/internal/util"

	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound           = errors.New("user_not_found")
	ErrEmailAlreadyRegistered = errors.New("email_already_registered")
	ErrInvalidCredentials     = errors.New("invalid_credentials")
)

// SignupInput carries everything the referral-aware signup needs.
type SignupInput struct {
	Email      string
	Password   string
	Name       string
	ReferredBy string
}

type UserService interface {
	// Signup creates the account, assigns its waitlist rank, rewards the
	// referrer when one is given, installs a fresh verification token and
	// queues the welcome mail.
	Signup(ctx context.Context, in SignupInput) (*model.User, error)
	// Login checks credentials and returns a session token.
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.VerificationTokenRepository
	ledger    LedgerService
	notifier  *notify.Notifier
	jwtSecret string
	baseURL   string
	tokenTTL  time.Duration
	logger    zerolog.Logger
}

func NewUserService(
	userRepo repository.UserRepository,
	tokenRepo repository.VerificationTokenRepository,
	ledger LedgerService,
	notifier *notify.Notifier,
	jwtSecret, baseURL string,
	tokenTTL time.Duration,
	logger zerolog.Logger,
) UserService {
	return &userService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		ledger:    ledger,
		notifier:  notifier,
		jwtSecret: jwtSecret,
		baseURL:   baseURL,
		tokenTTL:  tokenTTL,
		logger:    logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        strings.TrimSpace(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: &hash,
	}
	if err := s.userRepo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyRegistered
		}
		s.logger.Error().Err(err).Msg("Failed to create user")
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID).Int("waitlist_number", u.WaitlistNumber).Msg("User created")

	// Best-effort: a nonexistent or self referrer never fails the signup.
	if err := s.ledger.ApplyReferralReward(ctx, strings.TrimSpace(in.ReferredBy), u.UserID, u.Email); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.UserID).Msg("Referral reward failed, signup continues")
	}

	token, err := util.RandomToken(32)
	if err != nil {
		return nil, err
	}
	vt := &model.VerificationToken{
		Identifier: u.Email,
		Token:      token,
		Expires:    time.Now().Add(s.tokenTTL),
	}
	if err := s.tokenRepo.Replace(ctx, vt); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.UserID).Msg("Failed to install verification token")
		return nil, err
	}

	if s.notifier != nil {
		verifyURL := fmt.Sprintf("%s/api/verify-email?token=%s", s.baseURL, token)
		s.notifier.Send(notify.MailJob{
			Template: notify.MailWelcome,
			To:       u.Email,
			Data:     map[string]string{"name": u.Name, "verify_url": verifyURL},
		})
	}
	return u, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.userRepo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if u.PasswordHash == nil || !util.CheckPassword(*u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := util.GenerateJWT(u.UserID, u.Email, s.jwtSecret, 24*time.Hour)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", u.UserID).Msg("Failed to issue session token")
		return "", nil, err
	}
	return token, u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
