package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-builder-service/internal/ai"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/generation"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/repository"
	"storefront-builder-service/internal/store"
	"storefront-builder-service/internal/wizard"
)

type stubCreds struct {
	Token string
}

func parseStubCreds(raw clients.RawCredentials) (stubCreds, error) {
	if raw["token"] == "" {
		return stubCreds{}, errors.New("missing token")
	}
	return stubCreds{Token: raw["token"]}, nil
}

// stubAdapter serves a fixed two-product catalog
type stubAdapter struct{}

func (stubAdapter) GetProvider() models.Provider { return models.ProviderShopify }

func (stubAdapter) FetchMetadata(_ context.Context, creds stubCreds) (*clients.CatalogMetadata, error) {
	if creds.Token != "valid" {
		return nil, &clients.AuthError{Provider: models.ProviderShopify, Message: "token rejected"}
	}
	return &clients.CatalogMetadata{Name: "Acme", Currency: "USD"}, nil
}

func (stubAdapter) FetchProducts(context.Context, stubCreds, int, string) (*clients.ProductPage, error) {
	return &clients.ProductPage{Items: []clients.CatalogProduct{
		{ID: "1", Title: "Mug", Price: clients.MinorUnits(500, 100, "USD")},
		{ID: "2", Title: "Shirt", Price: clients.MinorUnits(2000, 100, "USD")},
	}}, nil
}

func (stubAdapter) FetchCollections(context.Context, stubCreds, int, string) (*clients.CollectionPage, error) {
	return &clients.CollectionPage{Items: []clients.CatalogCollection{
		{ID: "c", Title: "Featured", ProductRefs: []string{"Mug", "Shirt"}},
	}}, nil
}

// stubAI answers every generation call with canned content
type stubAI struct{}

func (stubAI) GenerateDesign(context.Context, string, *ai.Image) (*ai.Image, error) {
	return &ai.Image{Data: []byte("design"), MimeType: "image/png"}, nil
}

func (stubAI) GenerateProductCopy(_ context.Context, brief ai.ProductBrief, _ ai.StoreContext) (*ai.ProductCopy, error) {
	return &ai.ProductCopy{Description: "Freshly packed " + brief.Name}, nil
}

func (stubAI) VisualizeOnMockup(context.Context, ai.Image, ai.Image, string, string) (*ai.MockupResult, error) {
	return nil, errors.New("mockups unavailable")
}

func (stubAI) GenerateCatalog(context.Context, ai.CatalogRequest) (*ai.CatalogIdea, error) {
	return &ai.CatalogIdea{
		StoreName: "Tea Time",
		Currency:  "USD",
		Products: []ai.ProductIdea{
			{Name: "Green Tea", Price: "12.00"},
			{Name: "Black Tea", Price: "9.50"},
		},
		Collections: []ai.CollectionIdea{{Name: "Teas", ProductNames: []string{"Green Tea", "Black Tea"}}},
	}, nil
}

type memoryCredentials struct {
	saved map[string]clients.RawCredentials
}

func (m *memoryCredentials) key(merchantID string, provider models.Provider) string {
	return merchantID + "/" + string(provider)
}

func (m *memoryCredentials) GetCredentials(_ context.Context, merchantID string, provider models.Provider) (clients.RawCredentials, error) {
	raw, ok := m.saved[m.key(merchantID, provider)]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return raw, nil
}

func (m *memoryCredentials) SaveCredentials(_ context.Context, merchantID string, provider models.Provider, creds clients.RawCredentials) error {
	m.saved[m.key(merchantID, provider)] = creds
	return nil
}

func (m *memoryCredentials) DeleteCredentials(_ context.Context, merchantID string, provider models.Provider) error {
	delete(m.saved, m.key(merchantID, provider))
	return nil
}

func newTestBuilder(t *testing.T, credentials *memoryCredentials) *Builder {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	local, err := repository.OpenLocalCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	stores := store.NewDualWriteStore(local, nil, nil, nil, nil, store.Config{}, logger)
	orchestrator := generation.NewOrchestrator(stubAI{}, stores, generation.Config{}, logger)
	factory := func() *wizard.Manager {
		return wizard.NewManager(
			wizard.NewMachine[stubCreds](stubAdapter{}, parseStubCreds, stores, wizard.Options{}, logger),
		)
	}

	if credentials == nil {
		return NewBuilder(stores, orchestrator, factory, nil, nil, logger)
	}
	return NewBuilder(stores, orchestrator, factory, credentials, nil, logger)
}

func TestBuilder_CreateFromWizardSession(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	snap, err := b.OpenWizard(ctx, "m-1", models.ProviderShopify, OpenWizardRequest{
		Credentials: clients.RawCredentials{"token": "valid"},
	})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepPreviewMetadata, snap.Step)

	created, err := b.CreateFromWizardSession(ctx, "m-1", models.ProviderShopify)
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Name)
	assert.Equal(t, "m-1", created.MerchantID)

	view, err := b.GetStore(ctx, "m-1", created.ID)
	require.NoError(t, err)
	require.Len(t, view.Collections, 1)
	products := view.Collections[0].Products
	require.Len(t, products, 2)
	assert.Equal(t, "5.00", products[0].Price.StringFixed(2))
	assert.Equal(t, "20.00", products[1].Price.StringFixed(2))

	snap, err = b.WizardSnapshot("m-1", models.ProviderShopify)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepIdle, snap.Step)
}

func TestBuilder_WizardsAreScopedPerMerchant(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	_, err := b.OpenWizard(ctx, "m-1", models.ProviderShopify, OpenWizardRequest{
		Credentials: clients.RawCredentials{"token": "valid"},
	})
	require.NoError(t, err)

	other, err := b.WizardSnapshot("m-2", models.ProviderShopify)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepIdle, other.Step)
	assert.Equal(t, []models.Provider{models.ProviderShopify}, b.WizardProviders("m-2"))
}

func TestBuilder_OpenWizardAuthFailure(t *testing.T) {
	b := newTestBuilder(t, nil)

	snap, err := b.OpenWizard(context.Background(), "m-1", models.ProviderShopify, OpenWizardRequest{
		Credentials: clients.RawCredentials{"token": "expired"},
	})

	var authErr *clients.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.NotEmpty(t, snap.LastError)
}

func TestBuilder_OpenWizardWithoutCredentials(t *testing.T) {
	b := newTestBuilder(t, nil)

	_, err := b.OpenWizard(context.Background(), "m-1", models.ProviderShopify, OpenWizardRequest{})

	var credErr *wizard.CredentialsError
	require.True(t, errors.As(err, &credErr))
	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
}

func TestBuilder_StoredCredentials(t *testing.T) {
	credentials := &memoryCredentials{saved: map[string]clients.RawCredentials{}}
	b := newTestBuilder(t, credentials)
	ctx := context.Background()

	_, err := b.OpenWizard(ctx, "m-1", models.ProviderShopify, OpenWizardRequest{
		Credentials:     clients.RawCredentials{"token": "valid"},
		SaveCredentials: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "valid", credentials.saved["m-1/SHOPIFY"]["token"])

	require.NoError(t, b.CancelWizard("m-1", models.ProviderShopify))

	snap, err := b.OpenWizard(ctx, "m-1", models.ProviderShopify, OpenWizardRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Acme", snap.Metadata.Name)

	require.NoError(t, b.DisconnectProvider(ctx, "m-1", models.ProviderShopify))
	assert.Empty(t, credentials.saved)
}

func TestBuilder_CreateFromPrompt(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	step, err := b.CreateFromPrompt(ctx, "m-1", generation.Request{Prompt: "a cozy tea shop", SkipReview: true})
	require.NoError(t, err)
	assert.Equal(t, generation.StageComplete, step.Stage)
	require.NotNil(t, step.Store)
	assert.Equal(t, "m-1", step.Store.MerchantID)
	assert.Len(t, step.Store.Products, 2)
	assert.Equal(t, 0, b.limiter.Active("m-1"))

	views, err := b.ListStores(ctx, "m-1")
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestBuilder_PromptReviewAndResume(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	step, err := b.CreateFromPrompt(ctx, "m-1", generation.Request{Prompt: "a cozy tea shop"})
	require.NoError(t, err)
	require.Equal(t, generation.StageProductReview, step.Stage)

	progress, err := b.GenerationProgress("m-1", step.JobID)
	require.NoError(t, err)
	assert.Equal(t, 90, progress.Percent)

	done, err := b.ResumeGeneration(ctx, "m-1", step.JobID, nil)
	require.NoError(t, err)
	assert.Equal(t, generation.StageComplete, done.Stage)
}

func TestBuilder_ResumeGenerationOwnership(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	step, err := b.CreateFromPrompt(ctx, "m-1", generation.Request{Prompt: "a cozy tea shop"})
	require.NoError(t, err)
	require.Equal(t, generation.StageProductReview, step.Stage)

	foreign := step.Draft.Clone()
	foreign.MerchantID = "m-2"
	_, err = b.ResumeGeneration(ctx, "m-2", step.JobID, &generation.Artifact{Draft: foreign})
	assert.ErrorIs(t, err, generation.ErrJobNotFound)
	_, err = b.GetGeneration("m-2", step.JobID)
	assert.ErrorIs(t, err, generation.ErrJobNotFound)
	assert.ErrorIs(t, b.CancelGeneration("m-2", step.JobID), generation.ErrJobNotFound)

	stolen, err := b.ListStores(ctx, "m-2")
	require.NoError(t, err)
	assert.Empty(t, stolen)
}

func TestBuilder_ResumeWithDraftMissingOwner(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	step, err := b.CreateFromPrompt(ctx, "m-1", generation.Request{Prompt: "a cozy tea shop"})
	require.NoError(t, err)

	edited := step.Draft.Clone()
	edited.MerchantID = ""
	edited.Name = "Tea Time Deluxe"
	done, err := b.ResumeGeneration(ctx, "m-1", step.JobID, &generation.Artifact{Draft: edited})
	require.NoError(t, err)
	require.NotNil(t, done.Store)
	assert.Equal(t, "m-1", done.Store.MerchantID)

	views, err := b.ListStores(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Tea Time Deluxe", views[0].Name)
}

func TestBuilder_StoreOwnership(t *testing.T) {
	b := newTestBuilder(t, nil)
	ctx := context.Background()

	created, err := b.CreateStore(ctx, "m-1", &models.Store{Name: "Bolt"})
	require.NoError(t, err)

	_, err = b.GetStore(ctx, "m-2", created.ID)
	assert.ErrorIs(t, err, store.ErrStoreNotFound)
	assert.ErrorIs(t, b.DeleteStore(ctx, "m-2", created.ID), store.ErrStoreNotFound)

	anonymous, err := b.ListStores(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, anonymous)

	require.NoError(t, b.DeleteStore(ctx, "m-1", created.ID))
}

func TestMerchantLimiter_BusyWhenSlotsTaken(t *testing.T) {
	limiter := NewMerchantLimiter(&LimiterConfig{MaxPerMerchant: 1, MaxTotal: 4, QueueTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	release, err := limiter.Acquire(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Active("m-1"))

	_, err = limiter.Acquire(ctx, "m-1")
	var busy *BusyError
	require.True(t, errors.As(err, &busy))

	other, err := limiter.Acquire(ctx, "m-2")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Equal(t, 0, limiter.Active("m-1"))

	again, err := limiter.Acquire(ctx, "m-1")
	require.NoError(t, err)
	again()
}
