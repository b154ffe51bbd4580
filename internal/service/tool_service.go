package service

import (
	"context"
	"fmt"

	"app/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ToolService fronts the paid PDF tools. Every operation consults the
// entitlement gate before any paid work happens; processed output goes to the
// object store and the caller gets a short-lived download link.
type ToolService interface {
	Merge(ctx context.Context, userID string, files map[string][]byte) (string, error)
	Convert(ctx context.Context, userID, filename string, file []byte, format string) (string, error)
	Sign(ctx context.Context, userID, filename string, file, signature []byte, page int) (string, error)
	Summarize(ctx context.Context, userID, filename string, file []byte) (string, error)
	ImagePrompt(ctx context.Context, userID, filename string, image []byte) (string, error)
}

type toolService struct {
	gate   EntitlementService
	pdf    PDFClient
	store  storage.ObjectStore
	logger zerolog.Logger
}

// NewToolService returns the service with a scoped logger.
func NewToolService(gate EntitlementService, pdf PDFClient, store storage.ObjectStore, logger zerolog.Logger) ToolService {
	return &toolService{
		gate:   gate,
		pdf:    pdf,
		store:  store,
		logger: logger.With().Str("service", "ToolService").Logger(),
	}
}

// storeResult uploads the processed document and returns a presigned link.
func (s *toolService) storeResult(ctx context.Context, userID, tool string, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("output/%s/%s/%s", userID, tool, uuid.NewString())
	if err := s.store.Put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, key)
}

func (s *toolService) Merge(ctx context.Context, userID string, files map[string][]byte) (string, error) {
	if err := s.gate.Authorize(ctx, userID, "merge"); err != nil {
		return "", err
	}
	if len(files) < 2 {
		return "", fmt.Errorf("merge requires at least two files")
	}
	out, err := s.pdf.Merge(ctx, files)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Merge failed")
		return "", err
	}
	return s.storeResult(ctx, userID, "merge", out, "application/pdf")
}

func (s *toolService) Convert(ctx context.Context, userID, filename string, file []byte, format string) (string, error) {
	if err := s.gate.Authorize(ctx, userID, "convert"); err != nil {
		return "", err
	}
	out, err := s.pdf.Convert(ctx, filename, file, format)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("format", format).Msg("Convert failed")
		return "", err
	}
	return s.storeResult(ctx, userID, "convert", out, "application/pdf")
}

func (s *toolService) Sign(ctx context.Context, userID, filename string, file, signature []byte, page int) (string, error) {
	if err := s.gate.Authorize(ctx, userID, "sign"); err != nil {
		return "", err
	}
	out, err := s.pdf.Sign(ctx, filename, file, signature, page)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Sign failed")
		return "", err
	}
	return s.storeResult(ctx, userID, "sign", out, "application/pdf")
}

func (s *toolService) Summarize(ctx context.Context, userID, filename string, file []byte) (string, error) {
	if err := s.gate.Authorize(ctx, userID, "summarize"); err != nil {
		return "", err
	}
	text, err := s.pdf.Summarize(ctx, filename, file)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Summarize failed")
		return "", err
	}
	return text, nil
}

func (s *toolService) ImagePrompt(ctx context.Context, userID, filename string, image []byte) (string, error) {
	if err := s.gate.Authorize(ctx, userID, "image_prompt"); err != nil {
		return "", err
	}
	text, err := s.pdf.ImagePrompt(ctx, filename, image)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Image prompt failed")
		return "", err
	}
	return text, nil
}
