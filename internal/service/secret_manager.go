package service

import (
	"context"
	"fmt"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretManagerService reads deployment secrets from GCP Secret Manager so
// they never have to live in the environment of the running container.
type SecretManagerService interface {
	GetSecret(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManagerService(ctx context.Context, cfg *config.Config) (SecretManagerService, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}

	var opts []option.ClientOption
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerService{
		client:    client,
		projectID: cfg.GCPProjectID,
	}, nil
}

func (s *secretManagerService) GetSecret(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}

// LoadManagedSecrets fills in payment and admin secrets that were left out of
// the environment. Values already present in the environment win.
func LoadManagedSecrets(ctx context.Context, cfg *config.Config, secrets SecretManagerService) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{"stripe-secret-key", &cfg.StripeSecretKey},
		{"stripe-webhook-secret", &cfg.StripeWebhookSecret},
		{"gumroad-webhook-secret", &cfg.GumroadWebhookSecret},
		{"admin-secret", &cfg.AdminSecret},
		{"jwt-secret", &cfg.JWTSecret},
	}

	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		value, err := secrets.GetSecret(ctx, t.name)
		if err != nil {
			return fmt.Errorf("failed to load secret %q: %w", t.name, err)
		}
		*t.dst = value
	}

	return nil
}
