package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

// ProviderSecret is the payload stored for one merchant's provider connection
type ProviderSecret struct {
	Provider    models.Provider   `json:"provider"`
	Credentials map[string]string `json:"credentials"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CredentialStore saves and loads provider credentials for merchants
type CredentialStore interface {
	GetCredentials(ctx context.Context, merchantID string, provider models.Provider) (clients.RawCredentials, error)
	SaveCredentials(ctx context.Context, merchantID string, provider models.Provider, creds clients.RawCredentials) error
	DeleteCredentials(ctx context.Context, merchantID string, provider models.Provider) error
}

type cacheEntry struct {
	secret    *ProviderSecret
	expiresAt time.Time
}

// GCPSecretManager keeps provider credentials in Google Cloud Secret Manager
type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

var _ CredentialStore = (*GCPSecretManager)(nil)

// NewGCPSecretManager creates a new GCP Secret Manager client
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}, nil
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// BuildSecretName constructs the secret name for a merchant's provider connection
// Format: projects/{project}/secrets/storefront-{merchant_id}-{provider}
func BuildSecretName(projectID, merchantID string, provider models.Provider) string {
	secretID := fmt.Sprintf("storefront-%s-%s",
		sanitizeSecretID(merchantID),
		sanitizeSecretID(strings.ToLower(string(provider))),
	)
	return fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
}

// GetCredentials returns the stored credentials for a merchant and provider
func (sm *GCPSecretManager) GetCredentials(ctx context.Context, merchantID string, provider models.Provider) (clients.RawCredentials, error) {
	secret, err := sm.getSecret(ctx, BuildSecretName(sm.projectID, merchantID, provider))
	if err != nil {
		return nil, err
	}
	if secret.Provider != provider {
		return nil, fmt.Errorf("stored secret is for %s, not %s", secret.Provider, provider)
	}
	return clients.RawCredentials(secret.Credentials), nil
}

// SaveCredentials creates the secret if needed and adds a new version
func (sm *GCPSecretManager) SaveCredentials(ctx context.Context, merchantID string, provider models.Provider, creds clients.RawCredentials) error {
	secretName := BuildSecretName(sm.projectID, merchantID, provider)
	now := time.Now()
	secret := &ProviderSecret{
		Provider:    provider,
		Credentials: creds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := sm.getSecret(ctx, secretName); err == nil {
		secret.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	_, err = sm.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", sm.projectID),
		SecretId: extractSecretID(secretName),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil && !isAlreadyExistsError(err) {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	_, err = sm.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  secretName,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	if err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}

	sm.invalidate(secretName)
	return nil
}

// DeleteCredentials removes the stored credentials
func (sm *GCPSecretManager) DeleteCredentials(ctx context.Context, merchantID string, provider models.Provider) error {
	secretName := BuildSecretName(sm.projectID, merchantID, provider)
	if err := sm.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: secretName}); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	sm.invalidate(secretName)
	return nil
}

func (sm *GCPSecretManager) getSecret(ctx context.Context, secretName string) (*ProviderSecret, error) {
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.secret, nil
	}
	sm.cacheMu.RUnlock()

	result, err := sm.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName + "/versions/latest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	secret, err := decodeSecret(result.Payload.Data)
	if err != nil {
		return nil, err
	}

	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{secret: secret, expiresAt: time.Now().Add(sm.cacheTTL)}
	sm.cacheMu.Unlock()

	return secret, nil
}

func (sm *GCPSecretManager) invalidate(secretName string) {
	sm.cacheMu.Lock()
	delete(sm.cache, secretName)
	sm.cacheMu.Unlock()
}

func decodeSecret(data []byte) (*ProviderSecret, error) {
	var secret ProviderSecret
	if err := json.Unmarshal(data, &secret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}
	if len(secret.Credentials) == 0 {
		return nil, fmt.Errorf("secret has no credentials")
	}
	return &secret, nil
}

// sanitizeSecretID replaces characters GCP secret IDs do not allow
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}

func extractSecretID(secretName string) string {
	parts := strings.Split(secretName, "/")
	if len(parts) >= 4 {
		return parts[3]
	}
	return secretName
}

func isAlreadyExistsError(err error) bool {
	return strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already exists")
}
