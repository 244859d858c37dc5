// Package store persists storefronts to a local cache first and mirrors them
// to the cloud document store in the background.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/assets"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/events"
	"storefront-builder-service/internal/mapper"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/repository"
)

// SlugReserver claims URL slugs across service instances
type SlugReserver interface {
	Reserve(ctx context.Context, slug, storeID string) (bool, error)
	Release(ctx context.Context, slug, storeID string) error
}

// Assets turns inline image references into durable URLs
type Assets interface {
	Placeholder() string
	MaterializeOrPlaceholder(ctx context.Context, ref, destinationPath string) string
	MaterializeAll(ctx context.Context, refs []string, pathPrefix string) []string
}

// Config tunes the dual-write store
type Config struct {
	Retry *clients.RetryConfig
	// SyncTimeout bounds a single background cloud phase
	SyncTimeout time.Duration
}

// StoreUpdate holds the store fields to change. Nil fields are left alone;
// a non-nil empty Products or Collections slice clears them.
type StoreUpdate struct {
	Name        *string             `json:"name,omitempty"`
	Type        *string             `json:"type,omitempty"`
	Theme       models.JSONB        `json:"theme,omitempty"`
	Content     models.JSONB        `json:"content,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Products    []models.Product    `json:"products,omitempty"`
	Collections []models.Collection `json:"collections,omitempty"`
}

func (u StoreUpdate) touchesChildren() bool {
	return u.Products != nil || u.Collections != nil
}

// ProductUpdate holds the product fields to change
type ProductUpdate struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Images         []string         `json:"images,omitempty"`
	Variants       []models.Variant `json:"variants,omitempty"`
	InventoryCount *int             `json:"inventoryCount,omitempty"`
}

// DualWriteStore writes every change to the local cache synchronously and
// replays it against the document store on a background goroutine. The local
// write is never rolled back because of a cloud failure, except for deletes.
type DualWriteStore struct {
	local     repository.LocalStore
	cloud     repository.DocumentStore
	slugs     SlugReserver
	assets    Assets
	publisher events.Publisher
	retrier   *clients.Retrier
	config    Config
	logger    *logrus.Entry

	// mu serializes read-merge-write cycles on the local cache and guards
	// the maps below
	mu       sync.Mutex
	lastErrs map[string]*CloudSyncError
	dirty    map[string]bool
	pending  map[string]int

	lockMu    sync.Mutex
	syncLocks map[string]*sync.Mutex

	wg sync.WaitGroup
}

// NewDualWriteStore creates the store. cloud and slugs may be nil, in which
// case stores stay LOCAL_ONLY and slug uniqueness rests on the local cache.
func NewDualWriteStore(
	local repository.LocalStore,
	cloud repository.DocumentStore,
	slugs SlugReserver,
	pipeline Assets,
	publisher events.Publisher,
	cfg Config,
	logger *logrus.Logger,
) *DualWriteStore {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Minute
	}
	retry := clients.DefaultRetryConfig()
	if cfg.Retry != nil {
		copied := *cfg.Retry
		retry = &copied
	}
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool {
			return !errors.Is(err, repository.ErrNotFound)
		}
	}
	if pipeline == nil {
		pipeline = assets.NewPipeline(nil, assets.Config{}, logger)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &DualWriteStore{
		local:     local,
		cloud:     cloud,
		slugs:     slugs,
		assets:    pipeline,
		publisher: publisher,
		retrier:   clients.NewRetrier(retry),
		config:    cfg,
		logger:    logger.WithField("component", "dual-write-store"),
		lastErrs:  make(map[string]*CloudSyncError),
		dirty:     make(map[string]bool),
		pending:   make(map[string]int),
		syncLocks: make(map[string]*sync.Mutex),
	}
}

// Create persists a draft store. The slug is checked before anything is
// written; the local entry is written synchronously and, when the store has
// an owner, mirrored to the cloud in the background.
func (s *DualWriteStore) Create(ctx context.Context, draft *models.Store) (*models.Store, error) {
	if draft == nil {
		return nil, &ValidationError{Field: "store", Message: "draft is required"}
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "store name is required"}
	}
	slug := mapper.GenerateSlug(name)
	if slug == "" {
		return nil, &ValidationError{Field: "name", Message: "store name must contain letters or digits"}
	}

	st := draft.Clone()
	st.Name = name
	st.URLSlug = slug
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.Type == "" {
		st.Type = mapper.DefaultStoreType
	}

	if err := s.reserveSlug(ctx, st.ID, name, slug); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	s.prepareChildren(st)

	entry := models.CachedStore{Store: st, SyncStatus: models.SyncStatusLocalOnly}
	cloudEnabled := s.cloudEnabled(st)
	if cloudEnabled {
		entry.SyncStatus = models.SyncStatusSyncing
	}

	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		for _, e := range entries {
			if e.Store.ID == st.ID {
				return nil, &ValidationError{Field: "id", Message: "store already exists"}
			}
			if e.Store.URLSlug == slug {
				return nil, &NameConflictError{Name: name, Slug: slug}
			}
		}
		return append(entries, entry), nil
	})
	if err != nil {
		s.releaseSlug(ctx, slug, st.ID)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"store_id":    st.ID,
		"slug":        slug,
		"products":    len(st.Products),
		"collections": len(st.Collections),
		"sync_status": entry.SyncStatus,
	}).Info("Store saved locally")

	if cloudEnabled {
		s.markDirty(st.ID)
		s.requestSync(st.ID, "create", nil)
	}
	return st.Clone(), nil
}

// Update applies fields to a store locally, then mirrors the change. The URL
// slug stays stable across renames.
func (s *DualWriteStore) Update(ctx context.Context, id string, update StoreUpdate) (*models.Store, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "store name is required"}
	}

	var updated *models.Store
	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, id)
		if idx < 0 {
			return nil, ErrStoreNotFound
		}
		st := entries[idx].Store
		if update.Name != nil {
			st.Name = strings.TrimSpace(*update.Name)
		}
		if update.Type != nil {
			st.Type = *update.Type
		}
		if update.Theme != nil {
			st.Theme = update.Theme.Clone()
		}
		if update.Content != nil {
			st.Content = update.Content.Clone()
		}
		if update.Tags != nil {
			st.Tags = append([]string(nil), update.Tags...)
		}
		if update.Products != nil {
			st.Products = make([]models.Product, len(update.Products))
			for i, p := range update.Products {
				st.Products[i] = p.Clone()
			}
		}
		if update.Collections != nil {
			st.Collections = make([]models.Collection, len(update.Collections))
			for i, c := range update.Collections {
				c.ProductIDs = append([]string(nil), c.ProductIDs...)
				st.Collections[i] = c
			}
		}
		if update.touchesChildren() {
			s.prepareChildren(st)
		}
		st.UpdatedAt = time.Now().UTC()
		if s.cloudEnabled(st) {
			entries[idx].SyncStatus = models.SyncStatusSyncing
		}
		updated = st.Clone()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("store_id", id).Info("Store updated locally")

	if s.cloudEnabled(updated) {
		if update.touchesChildren() {
			s.markDirty(id)
		}
		s.requestSync(id, "update", s.syncStoreDocument)
	}
	return updated, nil
}

// UpdateProduct applies fields to one product
func (s *DualWriteStore) UpdateProduct(ctx context.Context, storeID, productID string, update ProductUpdate) (*models.Product, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "product name is required"}
	}
	if update.Price != nil && update.Price.IsNegative() {
		return nil, &ValidationError{Field: "price", Message: "price cannot be negative"}
	}

	var (
		product      models.Product
		cloudEnabled bool
	)
	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, storeID)
		if idx < 0 {
			return nil, ErrStoreNotFound
		}
		st := entries[idx].Store
		pi := st.FindProduct(productID)
		if pi < 0 {
			return nil, ErrProductNotFound
		}
		p := &st.Products[pi]
		if update.Name != nil {
			p.Name = strings.TrimSpace(*update.Name)
		}
		if update.Description != nil {
			p.Description = *update.Description
		}
		if update.Price != nil {
			p.Price = *update.Price
		}
		if update.Images != nil {
			p.Images = append([]string(nil), update.Images...)
		}
		if update.Variants != nil {
			p.Variants = append([]models.Variant(nil), update.Variants...)
		}
		if update.InventoryCount != nil {
			n := *update.InventoryCount
			p.InventoryCount = &n
		}
		if len(p.Images) == 0 {
			p.Images = []string{s.assets.Placeholder()}
		}
		st.UpdatedAt = time.Now().UTC()
		cloudEnabled = s.cloudEnabled(st)
		if cloudEnabled {
			entries[idx].SyncStatus = models.SyncStatusSyncing
		}
		product = p.Clone()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	if cloudEnabled {
		s.requestSync(storeID, "update product", s.syncProductDocument(productID))
	}
	return &product, nil
}

// DeleteProduct removes a product. Collections keep referencing its ID;
// hydration drops references that no longer resolve.
func (s *DualWriteStore) DeleteProduct(ctx context.Context, storeID, productID string) error {
	cloudEnabled := false
	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, storeID)
		if idx < 0 {
			return nil, ErrStoreNotFound
		}
		st := entries[idx].Store
		pi := st.FindProduct(productID)
		if pi < 0 {
			return nil, ErrProductNotFound
		}
		st.Products = append(st.Products[:pi:pi], st.Products[pi+1:]...)
		st.UpdatedAt = time.Now().UTC()
		cloudEnabled = s.cloudEnabled(st)
		if cloudEnabled {
			entries[idx].SyncStatus = models.SyncStatusSyncing
		}
		return entries, nil
	})
	if err != nil {
		return err
	}

	if cloudEnabled {
		s.requestSync(storeID, "delete product", s.deleteProductDocument(productID))
	}
	return nil
}

// Delete removes the store locally right away. The cloud documents are
// deleted in the background; if that fails the local entry is restored at its
// original position and marked SYNC_FAILED.
func (s *DualWriteStore) Delete(ctx context.Context, id string) error {
	var (
		removed models.CachedStore
		index   int
	)
	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, id)
		if idx < 0 {
			return nil, ErrStoreNotFound
		}
		removed = entries[idx]
		index = idx
		return append(entries[:idx:idx], entries[idx+1:]...), nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.lastErrs, id)
	delete(s.dirty, id)
	s.mu.Unlock()

	s.logger.WithField("store_id", id).Info("Store removed locally")

	if !s.cloudEnabled(removed.Store) {
		s.releaseSlug(ctx, removed.Store.URLSlug, id)
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lock := s.storeLock(id)
		lock.Lock()
		defer lock.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
		defer cancel()
		s.deleteCloud(ctx, removed, index)
	}()
	return nil
}

// Wait blocks until every background cloud phase has finished
func (s *DualWriteStore) Wait() {
	s.wg.Wait()
}

func (s *DualWriteStore) cloudEnabled(st *models.Store) bool {
	return s.cloud != nil && st != nil && st.MerchantID != ""
}

// reserveSlug fails with NameConflictError when another store holds slug in
// the reservation registry or the document store. Lookup failures are
// logged and do not block the local write.
func (s *DualWriteStore) reserveSlug(ctx context.Context, storeID, name, slug string) error {
	reserved := false
	if s.slugs != nil {
		ok, err := s.slugs.Reserve(ctx, slug, storeID)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("slug", slug).Warn("Slug reservation unavailable")
		case !ok:
			return &NameConflictError{Name: name, Slug: slug}
		default:
			reserved = true
		}
	}

	if s.cloud != nil {
		taken, err := s.cloud.SlugTaken(ctx, slug, storeID)
		if err != nil {
			s.logger.WithError(err).WithField("slug", slug).Warn("Cloud slug lookup failed")
		} else if taken {
			if reserved {
				s.releaseSlug(ctx, slug, storeID)
			}
			return &NameConflictError{Name: name, Slug: slug}
		}
	}
	return nil
}

func (s *DualWriteStore) releaseSlug(ctx context.Context, slug, storeID string) {
	if s.slugs == nil {
		return
	}
	if err := s.slugs.Release(ctx, slug, storeID); err != nil {
		s.logger.WithError(err).WithField("slug", slug).Warn("Failed to release slug")
	}
}

// prepareChildren assigns IDs to new products and collections, rewrites
// collection references from mapping keys to product IDs and fills empty
// image lists with the placeholder.
func (s *DualWriteStore) prepareChildren(st *models.Store) {
	keys := NewReconciliationMap()
	for i := range st.Products {
		p := &st.Products[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		keys.Add(p.ID, p.Key)
		if len(p.Images) == 0 {
			p.Images = []string{s.assets.Placeholder()}
		}
	}
	for i := range st.Collections {
		c := &st.Collections[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.ProductIDs = keys.Rewrite(c.ProductIDs)
	}
}

// mutate runs one read-merge-write cycle on the local cache
func (s *DualWriteStore) mutate(ctx context.Context, fn func([]models.CachedStore) ([]models.CachedStore, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.local.Load(ctx)
	if err != nil {
		return err
	}
	out, err := fn(entries)
	if err != nil {
		return err
	}
	return s.local.Save(ctx, out)
}

func (s *DualWriteStore) markDirty(id string) {
	s.mu.Lock()
	s.dirty[id] = true
	s.mu.Unlock()
}

func (s *DualWriteStore) storeLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.syncLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.syncLocks[id] = lock
	}
	return lock
}

func findEntry(entries []models.CachedStore, id string) int {
	for i := range entries {
		if entries[i].Store != nil && entries[i].Store.ID == id {
			return i
		}
	}
	return -1
}
