package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/models"
)

// Hydrate resolves collection product references against the store's
// products. References that no longer resolve are dropped from the result
// but kept in the stored data.
func Hydrate(st *models.Store) []models.HydratedCollection {
	byID := make(map[string]models.Product, len(st.Products))
	for _, p := range st.Products {
		byID[p.ID] = p
	}

	out := make([]models.HydratedCollection, 0, len(st.Collections))
	for _, c := range st.Collections {
		hc := models.HydratedCollection{Collection: c, Products: []models.Product{}}
		for _, id := range c.ProductIDs {
			if p, ok := byID[id]; ok {
				hc.Products = append(hc.Products, p.Clone())
			}
		}
		out = append(out, hc)
	}
	return out
}

// NewView builds the read model of a cached entry
func NewView(entry models.CachedStore) models.StoreView {
	st := entry.Store.Clone()
	return models.StoreView{
		Store:         *st,
		Collections:   Hydrate(st),
		SyncStatus:    entry.SyncStatus,
		LastSyncError: entry.LastSyncError,
	}
}

// Get returns the hydrated view of one store
func (s *DualWriteStore) Get(ctx context.Context, id string) (*models.StoreView, error) {
	entry, ok, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoreNotFound
	}
	view := NewView(entry)
	return &view, nil
}

// List returns the cached stores in insertion order. A non-empty merchantID
// restricts the result to that owner.
func (s *DualWriteStore) List(ctx context.Context, merchantID string) ([]models.StoreView, error) {
	s.mu.Lock()
	entries, err := s.local.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	views := make([]models.StoreView, 0, len(entries))
	for _, entry := range entries {
		if merchantID != "" && entry.Store.MerchantID != merchantID {
			continue
		}
		views = append(views, NewView(entry))
	}
	return views, nil
}

// Status returns the sync status of a store
func (s *DualWriteStore) Status(ctx context.Context, id string) (models.SyncStatus, error) {
	entry, ok, err := s.loadEntry(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrStoreNotFound
	}
	return entry.SyncStatus, nil
}

// LastSyncError returns the error of the most recent failed cloud phase of
// the store, or nil once a later phase has succeeded
func (s *DualWriteStore) LastSyncError(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if syncErr, ok := s.lastErrs[id]; ok {
		return syncErr
	}
	return nil
}

// LoadFromCloud pulls a merchant's stores from the document store into the
// local cache. Entries with unsynced local changes are left alone.
func (s *DualWriteStore) LoadFromCloud(ctx context.Context, merchantID string) (int, error) {
	if s.cloud == nil {
		return 0, errors.New("cloud document store is not configured")
	}
	if merchantID == "" {
		return 0, &ValidationError{Field: "merchantId", Message: "merchant is required"}
	}

	docs, err := s.cloud.ListStoresByMerchant(ctx, merchantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cloud stores: %w", err)
	}

	stores := make([]*models.Store, 0, len(docs))
	for _, doc := range docs {
		products, err := s.cloud.ListProducts(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to list products of store %s: %w", doc.ID, err)
		}
		collections, err := s.cloud.ListCollections(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to list collections of store %s: %w", doc.ID, err)
		}
		st, err := storeFromDocuments(doc, products, collections)
		if err != nil {
			return 0, err
		}
		stores = append(stores, st)
	}

	loaded := 0
	err = s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		for _, st := range stores {
			entry := models.CachedStore{Store: st, SyncStatus: models.SyncStatusSynced, CloudSynced: true}
			idx := findEntry(entries, st.ID)
			if idx < 0 {
				entries = append(entries, entry)
				loaded++
				continue
			}
			switch entries[idx].SyncStatus {
			case models.SyncStatusSyncing, models.SyncStatusSyncFailed:
				continue
			}
			entries[idx] = entry
			loaded++
		}
		return entries, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"merchant_id": merchantID,
		"loaded":      loaded,
		"found":       len(stores),
	}).Info("Loaded stores from cloud")
	return loaded, nil
}

// RetryPending schedules a full sync for every owned store whose last cloud
// phase did not complete, e.g. after a restart
func (s *DualWriteStore) RetryPending(ctx context.Context) (int, error) {
	if s.cloud == nil {
		return 0, nil
	}
	s.mu.Lock()
	entries, err := s.local.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, entry := range entries {
		if !s.cloudEnabled(entry.Store) {
			continue
		}
		switch entry.SyncStatus {
		case models.SyncStatusSyncing, models.SyncStatusSyncFailed:
			s.markDirty(entry.Store.ID)
			s.requestSync(entry.Store.ID, "retry", nil)
			scheduled++
		}
	}
	return scheduled, nil
}
