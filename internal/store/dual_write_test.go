package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-builder-service/internal/models"
)

const pngDataURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

func acmeDraft(merchantID string) *models.Store {
	return &models.Store{
		Name:       "Acme",
		MerchantID: merchantID,
		Products: []models.Product{
			{Key: "Mug", Name: "Mug", Price: decimal.RequireFromString("5.00"), Currency: "USD", Images: []string{"https://img.test/mug.png"}},
			{Key: "Shirt", Name: "Shirt", Price: decimal.RequireFromString("20.00"), Currency: "USD", Images: []string{"https://img.test/shirt.png"}},
		},
		Collections: []models.Collection{
			{Name: "Featured", ProductIDs: []string{"Mug", "Shirt"}},
		},
	}
}

func TestCreate_LocalOnlyWithoutCloud(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft(""))
	require.NoError(t, err)
	h.store.Wait()

	assert.Equal(t, "acme", created.URLSlug)
	assert.NotEmpty(t, created.ID)

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusLocalOnly, view.SyncStatus)

	require.Len(t, view.Collections, 1)
	products := view.Collections[0].Products
	require.Len(t, products, 2)
	assert.Equal(t, "Mug", products[0].Name)
	assert.Equal(t, "5.00", products[0].Price.StringFixed(2))
	assert.Equal(t, "Shirt", products[1].Name)
	assert.Equal(t, "20.00", products[1].Price.StringFixed(2))
	assert.Equal(t, []string{created.Products[0].ID, created.Products[1].ID}, view.Store.Collections[0].ProductIDs)
}

func TestCreate_OwnedStoreWithoutMerchantStaysLocal(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)

	created, err := h.store.Create(context.Background(), acmeDraft(""))
	require.NoError(t, err)
	h.store.Wait()

	status, err := h.store.Status(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusLocalOnly, status)
	assert.Zero(t, cloud.callCount("UpsertStore"))
}

func TestCreate_SyncReconcilesCloudIDs(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, h.entries(t)[0].SyncStatus)

	h.store.Wait()

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, view.SyncStatus)
	assert.NoError(t, h.store.LastSyncError(created.ID))

	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 2)
	assert.Equal(t, docs[0].ID.String(), view.Products[0].ID)
	assert.Equal(t, docs[1].ID.String(), view.Products[1].ID)
	assert.NotEqual(t, created.Products[0].ID, view.Products[0].ID)

	collections := cloud.collectionsOf(created.ID)
	require.Len(t, collections, 1)
	assert.Equal(t, []interface{}{docs[0].ID.String(), docs[1].ID.String()}, collections[0].Data["productIds"])
	assert.Equal(t, collections[0].ID.String(), view.Collections[0].ID)
	assert.Equal(t, []string{docs[0].ID.String(), docs[1].ID.String()}, view.Store.Collections[0].ProductIDs)
	require.Len(t, view.Collections[0].Products, 2)

	doc, ok := cloud.storeDoc(created.ID)
	require.True(t, ok)
	assert.Equal(t, "acme", doc.URLSlug)
	assert.Equal(t, "m-1", doc.MerchantID)
	assert.NotContains(t, doc.Data, "products")

	assert.Equal(t, []models.SyncEventType{models.SyncEventSynced}, h.publisher.types())
}

func TestCreate_NameConflictBeforeAnyWrite(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	_, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()
	upserts := cloud.callCount("UpsertStore")

	draft := acmeDraft("m-1")
	draft.Name = "acme!"
	_, err = h.store.Create(ctx, draft)
	h.store.Wait()

	var conflict *NameConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "acme", conflict.Slug)
	assert.Len(t, h.entries(t), 1)
	assert.Equal(t, upserts, cloud.callCount("UpsertStore"))
}

func TestCreate_NameConflictFromCloudRegistry(t *testing.T) {
	cloud := newFakeCloud()
	cloud.stores["other"] = models.StoreDocument{ID: "other", MerchantID: "m-2", URLSlug: "acme", Name: "Acme"}
	h := newHarness(t, cloud)

	_, err := h.store.Create(context.Background(), acmeDraft("m-1"))

	var conflict *NameConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Empty(t, h.entries(t))
	assert.False(t, h.slugs.held("acme"))
}

func TestCreate_NameConflictFromLocalCache(t *testing.T) {
	h := newHarness(t, nil)
	h.store.slugs = nil
	ctx := context.Background()

	_, err := h.store.Create(ctx, acmeDraft(""))
	require.NoError(t, err)

	_, err = h.store.Create(ctx, acmeDraft(""))

	var conflict *NameConflictError
	assert.True(t, errors.As(err, &conflict))
	assert.Len(t, h.entries(t), 1)
}

func TestCreate_RejectsInvalidNames(t *testing.T) {
	h := newHarness(t, nil)

	for _, name := range []string{"", "   ", "!!!"} {
		draft := acmeDraft("")
		draft.Name = name
		_, err := h.store.Create(context.Background(), draft)

		var validation *ValidationError
		assert.True(t, errors.As(err, &validation), "name %q", name)
	}
	assert.Empty(t, h.entries(t))
}

func TestCreate_EmptyImagesGetPlaceholder(t *testing.T) {
	h := newHarness(t, nil)
	draft := acmeDraft("")
	draft.Products[0].Images = nil

	created, err := h.store.Create(context.Background(), draft)

	require.NoError(t, err)
	assert.Equal(t, []string{testPlaceholder}, created.Products[0].Images)
}

func TestCreate_UploadFailureFallsBackToPlaceholder(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	h.blobs.err = errors.New("bucket unavailable")
	ctx := context.Background()

	draft := acmeDraft("m-1")
	draft.Products[0].Images = []string{pngDataURI}

	created, err := h.store.Create(ctx, draft)
	require.NoError(t, err)
	h.store.Wait()

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, view.SyncStatus)
	assert.Equal(t, []string{testPlaceholder}, view.Products[0].Images)
	assert.Equal(t, []string{"https://img.test/shirt.png"}, view.Products[1].Images)
}

func TestCreate_UploadsInlineImages(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	draft := acmeDraft("m-1")
	draft.Products[0].Images = []string{pngDataURI, "https://img.test/mug-2.png"}

	created, err := h.store.Create(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, pngDataURI, created.Products[0].Images[0])
	h.store.Wait()

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	images := view.Products[0].Images
	require.Len(t, images, 2)
	assert.Contains(t, images[0], "https://cdn.test/stores/"+created.ID+"/products/")
	assert.Equal(t, "https://img.test/mug-2.png", images[1])

	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 2)
	assert.Equal(t, []interface{}{images[0], images[1]}, docs[0].Data["images"])
}

func TestCreate_CloudFailureKeepsLocalAndRetriesOnUpdate(t *testing.T) {
	cloud := newFakeCloud()
	cloud.failOn("CreateProduct", errors.New("connection reset"))
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncFailed, view.SyncStatus)
	assert.NotEmpty(t, view.LastSyncError)
	assert.Equal(t, created.Products[0].ID, view.Products[0].ID)

	var syncErr *CloudSyncError
	require.True(t, errors.As(h.store.LastSyncError(created.ID), &syncErr))
	assert.Equal(t, "product documents", syncErr.Op)
	assert.Contains(t, h.publisher.types(), models.SyncEventSyncFailed)

	cloud.failOn("CreateProduct", nil)
	name := "Acme Goods"
	_, err = h.store.Update(ctx, created.ID, StoreUpdate{Name: &name})
	require.NoError(t, err)
	h.store.Wait()

	view, err = h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, view.SyncStatus)
	assert.Empty(t, view.LastSyncError)
	assert.NoError(t, h.store.LastSyncError(created.ID))
	assert.Equal(t, "acme", view.URLSlug)

	doc, ok := cloud.storeDoc(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Acme Goods", doc.Name)
	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 2)
	assert.Equal(t, docs[0].ID.String(), view.Products[0].ID)
}

func TestUpdate_StoreFieldsOnlyUpsertsStoreDocument(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()
	require.Equal(t, 2, cloud.callCount("CreateProduct"))

	_, err = h.store.Update(ctx, created.ID, StoreUpdate{Tags: []string{"mugs"}})
	require.NoError(t, err)
	h.store.Wait()

	assert.Equal(t, 2, cloud.callCount("CreateProduct"))
	assert.Equal(t, 2, cloud.callCount("UpsertStore"))
	doc, _ := cloud.storeDoc(created.ID)
	assert.Equal(t, []interface{}{"mugs"}, doc.Data["tags"])
}

func TestUpdate_ChildrenTriggerFullSync(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	products := append(view.Products, models.Product{Key: "Cap", Name: "Cap", Price: decimal.NewFromInt(12)})
	collections := []models.Collection{{Name: "Hats", ProductIDs: []string{"Cap"}}}

	_, err = h.store.Update(ctx, created.ID, StoreUpdate{Products: products, Collections: collections})
	require.NoError(t, err)
	h.store.Wait()

	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 3)
	view, err = h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, view.SyncStatus)
	assert.Equal(t, docs[0].ID.String(), view.Products[0].ID)
	require.Len(t, view.Collections, 1)
	require.Len(t, view.Collections[0].Products, 1)
	assert.Equal(t, "Cap", view.Collections[0].Products[0].Name)
	assert.Equal(t, []string{testPlaceholder}, view.Collections[0].Products[0].Images)
}

func TestUpdate_UnknownStore(t *testing.T) {
	h := newHarness(t, nil)
	name := "Bolt"

	_, err := h.store.Update(context.Background(), "missing", StoreUpdate{Name: &name})

	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestUpdateProduct_SyncsSingleDocument(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()
	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	productID := view.Products[0].ID

	price := decimal.RequireFromString("7.5")
	updated, err := h.store.UpdateProduct(ctx, created.ID, productID, ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "7.50", updated.Price.StringFixed(2))
	h.store.Wait()

	assert.Equal(t, 1, cloud.callCount("UpdateProduct"))
	assert.Equal(t, 2, cloud.callCount("CreateProduct"))
	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 2)
	assert.Equal(t, "7.5", docs[0].Data["price"])

	status, err := h.store.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, status)
}

func TestUpdateProduct_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	created, err := h.store.Create(ctx, acmeDraft(""))
	require.NoError(t, err)

	negative := decimal.NewFromInt(-1)
	_, err = h.store.UpdateProduct(ctx, created.ID, created.Products[0].ID, ProductUpdate{Price: &negative})
	var validation *ValidationError
	assert.True(t, errors.As(err, &validation))

	_, err = h.store.UpdateProduct(ctx, created.ID, "missing", ProductUpdate{})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = h.store.UpdateProduct(ctx, created.ID, created.Products[0].ID, ProductUpdate{Images: []string{}})
	require.NoError(t, err)
	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{testPlaceholder}, view.Products[0].Images)
}

func TestDeleteProduct_HydrationDropsDanglingReferences(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	draft := acmeDraft("")
	draft.Collections[0].ProductIDs = []string{"Shirt", "Mug", "ghost"}
	created, err := h.store.Create(ctx, draft)
	require.NoError(t, err)
	mugID := created.Products[0].ID

	require.NoError(t, h.store.DeleteProduct(ctx, created.ID, mugID))

	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, view.Products, 1)
	require.Len(t, view.Collections[0].Products, 1)
	assert.Equal(t, "Shirt", view.Collections[0].Products[0].Name)
	assert.Contains(t, view.Store.Collections[0].ProductIDs, mugID)
	assert.Contains(t, view.Store.Collections[0].ProductIDs, "ghost")

	assert.ErrorIs(t, h.store.DeleteProduct(ctx, created.ID, mugID), ErrProductNotFound)
}

func TestDeleteProduct_RemovesCloudDocument(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()
	view, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, h.store.DeleteProduct(ctx, created.ID, view.Products[0].ID))
	h.store.Wait()

	assert.Equal(t, 1, cloud.callCount("DeleteProduct"))
	docs := cloud.productsOf(created.ID)
	require.Len(t, docs, 1)
	assert.Equal(t, view.Products[1].ID, docs[0].ID.String())
}

func TestDelete_RemovesCloudDocumentsAndReleasesSlug(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()
	require.True(t, h.slugs.held("acme"))

	require.NoError(t, h.store.Delete(ctx, created.ID))
	h.store.Wait()

	assert.Empty(t, h.entries(t))
	_, ok := cloud.storeDoc(created.ID)
	assert.False(t, ok)
	assert.Empty(t, cloud.productsOf(created.ID))
	assert.Empty(t, cloud.collectionsOf(created.ID))
	assert.False(t, h.slugs.held("acme"))
	assert.Contains(t, h.publisher.types(), models.SyncEventDeleted)

	_, err = h.store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestDelete_CloudFailureRestoresLocalEntry(t *testing.T) {
	cloud := newFakeCloud()
	h := newHarness(t, cloud)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Acme", "Bolt", "Cobalt"} {
		draft := acmeDraft("m-1")
		draft.Name = name
		created, err := h.store.Create(ctx, draft)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	h.store.Wait()

	gate := cloud.blockOn("DeleteProducts")
	cloud.failOn("DeleteStore", errors.New("permission denied"))

	require.NoError(t, h.store.Delete(ctx, ids[1]))

	views, err := h.store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, views, 2)

	close(gate)
	h.store.Wait()

	entries := h.entries(t)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[1], entries[1].Store.ID)
	assert.Equal(t, models.SyncStatusSyncFailed, entries[1].SyncStatus)
	assert.Contains(t, entries[1].LastSyncError, "delete store document")
	assert.True(t, h.slugs.held("bolt"))

	var syncErr *CloudSyncError
	require.True(t, errors.As(h.store.LastSyncError(ids[1]), &syncErr))

	// the next update rebuilds the cloud copy that the partial delete removed
	cloud.failOn("DeleteStore", nil)
	_, err = h.store.Update(ctx, ids[1], StoreUpdate{Tags: []string{"restored"}})
	require.NoError(t, err)
	h.store.Wait()

	status, err := h.store.Status(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, status)
	assert.Len(t, cloud.productsOf(ids[1]), 2)
}

func TestList_FiltersByMerchant(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := acmeDraft("m-1")
	second := acmeDraft("m-2")
	second.Name = "Bolt"
	_, err := h.store.Create(ctx, first)
	require.NoError(t, err)
	_, err = h.store.Create(ctx, second)
	require.NoError(t, err)

	all, err := h.store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := h.store.List(ctx, "m-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Bolt", mine[0].Name)
}

func TestLoadFromCloud_RebuildsLocalCache(t *testing.T) {
	cloud := newFakeCloud()
	source := newHarness(t, cloud)
	ctx := context.Background()

	created, err := source.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	source.store.Wait()
	expected, err := source.store.Get(ctx, created.ID)
	require.NoError(t, err)

	fresh := newHarness(t, cloud)
	loaded, err := fresh.store.LoadFromCloud(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	view, err := fresh.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, view.SyncStatus)
	assert.Equal(t, "Acme", view.Name)
	require.Len(t, view.Products, 2)
	assert.Equal(t, expected.Products[0].ID, view.Products[0].ID)
	assert.Equal(t, "Mug", view.Products[0].Name)
	assert.True(t, view.Products[1].Price.Equal(decimal.NewFromInt(20)))
	require.Len(t, view.Collections, 1)
	assert.Len(t, view.Collections[0].Products, 2)

	_, err = fresh.store.LoadFromCloud(ctx, "")
	var validation *ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestLoadFromCloud_RequiresCloud(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.store.LoadFromCloud(context.Background(), "m-1")

	assert.Error(t, err)
}

func TestRetryPending_SyncsFailedStores(t *testing.T) {
	cloud := newFakeCloud()
	cloud.failOn("UpsertStore", errors.New("timeout"))
	h := newHarness(t, cloud)
	ctx := context.Background()

	created, err := h.store.Create(ctx, acmeDraft("m-1"))
	require.NoError(t, err)
	h.store.Wait()

	status, err := h.store.Status(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusSyncFailed, status)

	cloud.failOn("UpsertStore", nil)
	scheduled, err := h.store.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	h.store.Wait()

	status, err = h.store.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, status)
}
