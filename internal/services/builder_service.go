package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/generation"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/secrets"
	"storefront-builder-service/internal/store"
	"storefront-builder-service/internal/wizard"
)

// ErrCredentialsUnavailable is returned when a wizard is opened without
// credentials and none are stored for the merchant
var ErrCredentialsUnavailable = errors.New("no stored credentials for this provider")

// WizardFactory builds a fresh set of provider sessions
type WizardFactory func() *wizard.Manager

// Builder is the entry point the HTTP layer talks to. It owns one wizard
// manager per merchant and routes everything else to the generation
// orchestrator and the dual-write store.
type Builder struct {
	stores      *store.DualWriteStore
	generator   *generation.Orchestrator
	newWizard   WizardFactory
	credentials secrets.CredentialStore
	limiter     *MerchantLimiter
	logger      *logrus.Entry

	mu      sync.Mutex
	wizards map[string]*wizard.Manager
}

// NewBuilder creates the builder facade. credentials may be nil, which
// disables stored provider credentials.
func NewBuilder(
	stores *store.DualWriteStore,
	generator *generation.Orchestrator,
	newWizard WizardFactory,
	credentials secrets.CredentialStore,
	limiter *MerchantLimiter,
	logger *logrus.Logger,
) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	if limiter == nil {
		limiter = NewMerchantLimiter(nil)
	}
	return &Builder{
		stores:      stores,
		generator:   generator,
		newWizard:   newWizard,
		credentials: credentials,
		limiter:     limiter,
		logger:      logger.WithField("component", "builder"),
		wizards:     make(map[string]*wizard.Manager),
	}
}

// =============================================================================
// Prompt generation
// =============================================================================

// CreateFromPrompt starts a generation job and runs it to its first pause
// or to completion
func (b *Builder) CreateFromPrompt(ctx context.Context, merchantID string, req generation.Request) (*generation.Step, error) {
	release, err := b.limiter.Acquire(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	defer release()

	req.MerchantID = merchantID
	return b.generator.Start(ctx, req)
}

// ResumeGeneration continues a paused job with the reviewed artifact
func (b *Builder) ResumeGeneration(ctx context.Context, merchantID, jobID string, artifact *generation.Artifact) (*generation.Step, error) {
	release, err := b.limiter.Acquire(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	defer release()

	return b.generator.Resume(ctx, merchantID, jobID, artifact)
}

// CancelGeneration abandons one of the merchant's jobs
func (b *Builder) CancelGeneration(merchantID, jobID string) error {
	return b.generator.Cancel(merchantID, jobID)
}

// GenerationProgress returns the progress of one of the merchant's jobs
func (b *Builder) GenerationProgress(merchantID, jobID string) (generation.Progress, error) {
	return b.generator.Progress(merchantID, jobID)
}

// GetGeneration returns the current step of one of the merchant's jobs
func (b *Builder) GetGeneration(merchantID, jobID string) (*generation.Step, error) {
	return b.generator.Get(merchantID, jobID)
}

// =============================================================================
// Catalog import wizard
// =============================================================================

// OpenWizardRequest opens a provider session. When Credentials is empty the
// merchant's stored credentials are used.
type OpenWizardRequest struct {
	Credentials     clients.RawCredentials `json:"credentials,omitempty"`
	SaveCredentials bool                   `json:"saveCredentials"`
}

// WizardProviders lists the providers that can be imported from
func (b *Builder) WizardProviders(merchantID string) []models.Provider {
	return b.wizard(merchantID).Providers()
}

// OpenWizard activates a provider session for the merchant, resetting any
// other provider's session
func (b *Builder) OpenWizard(ctx context.Context, merchantID string, provider models.Provider, req OpenWizardRequest) (wizard.Snapshot, error) {
	raw := req.Credentials
	if len(raw) == 0 {
		stored, err := b.storedCredentials(ctx, merchantID, provider)
		if err != nil {
			return wizard.Snapshot{Provider: provider}, err
		}
		raw = stored
	}

	snap, err := b.wizard(merchantID).Open(ctx, provider, raw, merchantID)
	if err != nil {
		return snap, err
	}

	if req.SaveCredentials && len(req.Credentials) > 0 && merchantID != "" && b.credentials != nil {
		if err := b.credentials.SaveCredentials(ctx, merchantID, provider, req.Credentials); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"merchant_id": merchantID,
				"provider":    provider,
			}).Warn("Failed to store provider credentials")
		}
	}
	return snap, nil
}

// AdvanceWizard moves the provider session to its next step
func (b *Builder) AdvanceWizard(ctx context.Context, merchantID string, provider models.Provider) (wizard.Snapshot, error) {
	return b.wizard(merchantID).Advance(ctx, provider)
}

// LoadMoreWizard fetches the next product page of the provider session
func (b *Builder) LoadMoreWizard(ctx context.Context, merchantID string, provider models.Provider) (wizard.Snapshot, error) {
	return b.wizard(merchantID).LoadMore(ctx, provider)
}

// CancelWizard resets the provider session
func (b *Builder) CancelWizard(merchantID string, provider models.Provider) error {
	return b.wizard(merchantID).Cancel(provider)
}

// WizardSnapshot returns the provider session state
func (b *Builder) WizardSnapshot(merchantID string, provider models.Provider) (wizard.Snapshot, error) {
	return b.wizard(merchantID).Snapshot(provider)
}

// CreateFromWizardSession advances an open session through its remaining
// steps and returns the persisted store
func (b *Builder) CreateFromWizardSession(ctx context.Context, merchantID string, provider models.Provider) (*models.Store, error) {
	manager := b.wizard(merchantID)

	// connecting, preview metadata, preview items, finalize
	for i := 0; i < 4; i++ {
		snap, err := manager.Advance(ctx, provider)
		if err != nil {
			return nil, err
		}
		if snap.Store != nil {
			return snap.Store, nil
		}
	}
	return nil, fmt.Errorf("wizard for %s did not reach finalize", provider)
}

// DisconnectProvider removes the merchant's stored credentials
func (b *Builder) DisconnectProvider(ctx context.Context, merchantID string, provider models.Provider) error {
	if b.credentials == nil || merchantID == "" {
		return ErrCredentialsUnavailable
	}
	if err := b.wizard(merchantID).Cancel(provider); err != nil {
		return err
	}
	return b.credentials.DeleteCredentials(ctx, merchantID, provider)
}

func (b *Builder) storedCredentials(ctx context.Context, merchantID string, provider models.Provider) (clients.RawCredentials, error) {
	if b.credentials == nil || merchantID == "" {
		return nil, &wizard.CredentialsError{Provider: provider, Err: ErrCredentialsUnavailable}
	}
	raw, err := b.credentials.GetCredentials(ctx, merchantID, provider)
	if err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id": merchantID,
			"provider":    provider,
		}).Warn("Stored credentials lookup failed")
		return nil, &wizard.CredentialsError{Provider: provider, Err: ErrCredentialsUnavailable}
	}
	return raw, nil
}

func (b *Builder) wizard(merchantID string) *wizard.Manager {
	b.mu.Lock()
	defer b.mu.Unlock()
	manager, ok := b.wizards[merchantID]
	if !ok {
		manager = b.newWizard()
		b.wizards[merchantID] = manager
	}
	return manager
}

// =============================================================================
// Stores
// =============================================================================

// CreateStore persists a draft for the merchant
func (b *Builder) CreateStore(ctx context.Context, merchantID string, draft *models.Store) (*models.Store, error) {
	if draft == nil {
		return nil, &store.ValidationError{Field: "store", Message: "draft is required"}
	}
	draft.MerchantID = merchantID
	return b.stores.Create(ctx, draft)
}

// GetStore returns a store the merchant owns
func (b *Builder) GetStore(ctx context.Context, merchantID, storeID string) (*models.StoreView, error) {
	view, err := b.stores.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if view.MerchantID != merchantID {
		return nil, store.ErrStoreNotFound
	}
	return view, nil
}

// ListStores returns the merchant's stores
func (b *Builder) ListStores(ctx context.Context, merchantID string) ([]models.StoreView, error) {
	views, err := b.stores.List(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if merchantID != "" {
		return views, nil
	}
	// anonymous callers only see stores without an owner
	out := views[:0]
	for _, v := range views {
		if v.MerchantID == "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// UpdateStore changes a store the merchant owns
func (b *Builder) UpdateStore(ctx context.Context, merchantID, storeID string, update store.StoreUpdate) (*models.Store, error) {
	if _, err := b.GetStore(ctx, merchantID, storeID); err != nil {
		return nil, err
	}
	return b.stores.Update(ctx, storeID, update)
}

// DeleteStore deletes a store the merchant owns
func (b *Builder) DeleteStore(ctx context.Context, merchantID, storeID string) error {
	if _, err := b.GetStore(ctx, merchantID, storeID); err != nil {
		return err
	}
	return b.stores.Delete(ctx, storeID)
}

// UpdateProduct changes one product of a store the merchant owns
func (b *Builder) UpdateProduct(ctx context.Context, merchantID, storeID, productID string, update store.ProductUpdate) (*models.Product, error) {
	if _, err := b.GetStore(ctx, merchantID, storeID); err != nil {
		return nil, err
	}
	return b.stores.UpdateProduct(ctx, storeID, productID, update)
}

// DeleteProduct removes one product of a store the merchant owns
func (b *Builder) DeleteProduct(ctx context.Context, merchantID, storeID, productID string) error {
	if _, err := b.GetStore(ctx, merchantID, storeID); err != nil {
		return err
	}
	return b.stores.DeleteProduct(ctx, storeID, productID)
}

// RefreshFromCloud reloads the merchant's stores from the document store
func (b *Builder) RefreshFromCloud(ctx context.Context, merchantID string) (int, error) {
	return b.stores.LoadFromCloud(ctx, merchantID)
}

// LimiterStats exposes generation slot usage
func (b *Builder) LimiterStats() map[string]interface{} {
	return b.limiter.Stats()
}
