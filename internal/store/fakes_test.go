package store

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"storefront-builder-service/internal/assets"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/repository"
)

const testPlaceholder = "https://placehold.test/product.png"

// fakeCloud is an in-memory DocumentStore with per-operation failure and
// blocking hooks
type fakeCloud struct {
	mu          sync.Mutex
	stores      map[string]models.StoreDocument
	products    map[uuid.UUID]models.ProductDocument
	collections map[uuid.UUID]models.CollectionDocument
	fail        map[string]error
	block       map[string]chan struct{}
	calls       map[string]int
}

var _ repository.DocumentStore = (*fakeCloud)(nil)

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		stores:      make(map[string]models.StoreDocument),
		products:    make(map[uuid.UUID]models.ProductDocument),
		collections: make(map[uuid.UUID]models.CollectionDocument),
		fail:        make(map[string]error),
		block:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
	}
}

func (f *fakeCloud) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeCloud) blockOn(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.block[op] = gate
	return gate
}

func (f *fakeCloud) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter waits on any gate for op, then records the call and returns the
// injected failure. It returns with f.mu held.
func (f *fakeCloud) enter(op string) error {
	f.mu.Lock()
	gate := f.block[op]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeCloud) storeDoc(id string) (models.StoreDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.stores[id]
	return doc, ok
}

func (f *fakeCloud) productsOf(storeID string) []models.ProductDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProductDocument
	for _, d := range f.products {
		if d.StoreID == storeID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (f *fakeCloud) collectionsOf(storeID string) []models.CollectionDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CollectionDocument
	for _, d := range f.collections {
		if d.StoreID == storeID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (f *fakeCloud) UpsertStore(_ context.Context, doc *models.StoreDocument) error {
	err := f.enter("UpsertStore")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.stores[doc.ID] = *doc
	return nil
}

func (f *fakeCloud) GetStore(_ context.Context, id string) (*models.StoreDocument, error) {
	err := f.enter("GetStore")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	doc, ok := f.stores[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeCloud) ListStoresByMerchant(_ context.Context, merchantID string) ([]models.StoreDocument, error) {
	err := f.enter("ListStoresByMerchant")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []models.StoreDocument
	for _, doc := range f.stores {
		if doc.MerchantID == merchantID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeCloud) SlugTaken(_ context.Context, slug, excludeStoreID string) (bool, error) {
	err := f.enter("SlugTaken")
	defer f.mu.Unlock()
	if err != nil {
		return false, err
	}
	for _, doc := range f.stores {
		if doc.URLSlug == slug && doc.ID != excludeStoreID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCloud) DeleteStore(_ context.Context, id string) error {
	err := f.enter("DeleteStore")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	delete(f.stores, id)
	return nil
}

func (f *fakeCloud) CreateProduct(_ context.Context, doc *models.ProductDocument) error {
	err := f.enter("CreateProduct")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	f.products[doc.ID] = *doc
	return nil
}

func (f *fakeCloud) UpdateProduct(_ context.Context, doc *models.ProductDocument) error {
	err := f.enter("UpdateProduct")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := f.products[doc.ID]; !ok {
		return repository.ErrNotFound
	}
	f.products[doc.ID] = *doc
	return nil
}

func (f *fakeCloud) ListProducts(_ context.Context, storeID string) ([]models.ProductDocument, error) {
	err := f.enter("ListProducts")
	var out []models.ProductDocument
	for _, d := range f.products {
		if d.StoreID == storeID {
			out = append(out, d)
		}
	}
	f.mu.Unlock()
	return out, err
}

func (f *fakeCloud) DeleteProduct(_ context.Context, id uuid.UUID) error {
	err := f.enter("DeleteProduct")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	delete(f.products, id)
	return nil
}

func (f *fakeCloud) DeleteProducts(_ context.Context, storeID string) error {
	err := f.enter("DeleteProducts")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	for id, d := range f.products {
		if d.StoreID == storeID {
			delete(f.products, id)
		}
	}
	return nil
}

func (f *fakeCloud) CreateCollection(_ context.Context, doc *models.CollectionDocument) error {
	err := f.enter("CreateCollection")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	f.collections[doc.ID] = *doc
	return nil
}

func (f *fakeCloud) ListCollections(_ context.Context, storeID string) ([]models.CollectionDocument, error) {
	err := f.enter("ListCollections")
	var out []models.CollectionDocument
	for _, d := range f.collections {
		if d.StoreID == storeID {
			out = append(out, d)
		}
	}
	f.mu.Unlock()
	return out, err
}

func (f *fakeCloud) DeleteCollections(_ context.Context, storeID string) error {
	err := f.enter("DeleteCollections")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	for id, d := range f.collections {
		if d.StoreID == storeID {
			delete(f.collections, id)
		}
	}
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	err     error
	uploads []string
}

func (b *fakeBlobs) Upload(_ context.Context, path, _ string, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.uploads = append(b.uploads, path)
	return "https://cdn.test/" + path, nil
}

type fakeSlugs struct {
	mu     sync.Mutex
	owners map[string]string
}

func newFakeSlugs() *fakeSlugs {
	return &fakeSlugs{owners: make(map[string]string)}
}

func (r *fakeSlugs) Reserve(_ context.Context, slug, storeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[slug]; ok {
		return owner == storeID, nil
	}
	r.owners[slug] = storeID
	return true, nil
}

func (r *fakeSlugs) Release(_ context.Context, slug, storeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[slug] == storeID {
		delete(r.owners, slug)
	}
	return nil
}

func (r *fakeSlugs) held(slug string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[slug]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SyncEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *models.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) types() []models.SyncEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SyncEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

type harness struct {
	store     *DualWriteStore
	local     *repository.LocalCache
	blobs     *fakeBlobs
	slugs     *fakeSlugs
	publisher *recordingPublisher
}

func newHarness(t *testing.T, cloud repository.DocumentStore) *harness {
	t.Helper()

	local, err := repository.OpenLocalCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		local:     local,
		blobs:     &fakeBlobs{},
		slugs:     newFakeSlugs(),
		publisher: &recordingPublisher{},
	}
	pipeline := assets.NewPipeline(h.blobs, assets.Config{PlaceholderURL: testPlaceholder}, logger)
	h.store = NewDualWriteStore(local, cloud, h.slugs, pipeline, h.publisher, Config{Retry: clients.NoRetryConfig()}, logger)
	return h
}

func (h *harness) entries(t *testing.T) []models.CachedStore {
	t.Helper()
	entries, err := h.local.Load(context.Background())
	require.NoError(t, err)
	return entries
}
