package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// keyAlphabet excludes the characters that are ambiguous when a key is read
// aloud or typed from paper: 0/O, 1/I.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keyGroups    = 4
	keyGroupSize = 4
)

// keyDenominations fixes how many keys of each token amount one batch yields.
var keyDenominations = map[int]int{
	10:  40,
	20:  40,
	50:  15,
	100: 5,
}

// KeyBatch is the result of one generation run.
type KeyBatch struct {
	Codes  map[int][]string `json:"codes"`
	Counts map[int]int      `json:"counts"`
	Total  int              `json:"total"`
}

// KeygenService creates license key batches for offline distribution.
type KeygenService struct {
	repo   repository.LicenseKeyRepository
	logger zerolog.Logger
}

// NewKeygenService returns the service with a scoped logger.
func NewKeygenService(repo repository.LicenseKeyRepository, logger zerolog.Logger) *KeygenService {
	return &KeygenService{
		repo:   repo,
		logger: logger.With().Str("service", "KeygenService").Logger(),
	}
}

// GenerateBatch creates and persists one batch across the fixed
// denominations, returning the codes grouped by amount.
func (s *KeygenService) GenerateBatch(ctx context.Context) (*KeyBatch, error) {
	batch := &KeyBatch{
		Codes:  make(map[int][]string),
		Counts: make(map[int]int),
	}
	var keys []model.LicenseKey
	seen := make(map[string]bool)
	for amount, count := range keyDenominations {
		for i := 0; i < count; i++ {
			code, err := generateKeyCode()
			if err != nil {
				return nil, err
			}
			// The code space is large enough that an in-batch collision is
			// effectively impossible, but regenerating is cheap.
			for seen[code] {
				if code, err = generateKeyCode(); err != nil {
					return nil, err
				}
			}
			seen[code] = true
			keys = append(keys, model.LicenseKey{Code: code, Amount: amount})
			batch.Codes[amount] = append(batch.Codes[amount], code)
			batch.Counts[amount]++
			batch.Total++
		}
	}
	if err := s.repo.CreateBatch(ctx, keys); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist license key batch")
		return nil, err
	}
	s.logger.Info().Int("total", batch.Total).Msg("License key batch generated")
	return batch, nil
}

// generateKeyCode produces a grouped code like ABCD-EFGH-JKLM-NPQR.
func generateKeyCode() (string, error) {
	buf := make([]byte, keyGroups*keyGroupSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes for key: %w", err)
	}
	groups := make([]string, keyGroups)
	for g := 0; g < keyGroups; g++ {
		var b strings.Builder
		for i := 0; i < keyGroupSize; i++ {
			b.WriteByte(keyAlphabet[int(buf[g*keyGroupSize+i])%len(keyAlphabet)])
		}
		groups[g] = b.String()
	}
	return strings.Join(groups, "-"), nil
}
