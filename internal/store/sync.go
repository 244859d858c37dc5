package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/assets"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/repository"
)

// incrementalSync mirrors one change of a store that is already in the cloud.
// Returning repository.ErrNotFound falls back to a full sync.
type incrementalSync func(ctx context.Context, entry models.CachedStore) error

// requestSync schedules a cloud phase for the store. Phases of one store run
// one at a time and each reads the latest local entry when it starts.
func (s *DualWriteStore) requestSync(id, op string, incremental incrementalSync) {
	s.mu.Lock()
	s.pending[id]++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lock := s.storeLock(id)
		lock.Lock()
		defer lock.Unlock()
		defer func() {
			s.mu.Lock()
			s.pending[id]--
			if s.pending[id] <= 0 {
				delete(s.pending, id)
			}
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
		defer cancel()

		if err := s.runSync(ctx, id, incremental); err != nil {
			s.markDirty(id)
			s.recordFailure(id, op, err)
		}
	}()
}

func (s *DualWriteStore) runSync(ctx context.Context, id string, incremental incrementalSync) error {
	entry, ok, err := s.loadEntry(ctx, id)
	if err != nil {
		return &CloudSyncError{StoreID: id, Op: "local cache", Err: err}
	}
	if !ok || !s.cloudEnabled(entry.Store) {
		return nil
	}

	s.mu.Lock()
	full := s.dirty[id] || !entry.CloudSynced || incremental == nil
	delete(s.dirty, id)
	s.mu.Unlock()

	if !full {
		err := incremental(ctx, entry)
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		s.logger.WithField("store_id", id).Info("Cloud document missing, running full sync")
	}
	return s.fullSync(ctx, entry)
}

// fullSync writes the whole store graph: store document, product documents
// and collection documents whose product references are rewritten to the
// cloud IDs. Local IDs are replaced by cloud IDs once everything is written.
func (s *DualWriteStore) fullSync(ctx context.Context, entry models.CachedStore) error {
	before := entry.Store
	st := before.Clone()
	s.materialize(ctx, st)
	reuse := entry.CloudSynced

	doc, err := storeDocument(st)
	if err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "store document", Err: err}
	}
	if err := s.retry(ctx, "upsert store document", func(ctx context.Context) error {
		return s.cloud.UpsertStore(ctx, doc)
	}); err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "store document", Err: err}
	}

	// a previous partial attempt may have left children behind
	if err := s.retry(ctx, "clear collection documents", func(ctx context.Context) error {
		return s.cloud.DeleteCollections(ctx, st.ID)
	}); err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "collection documents", Err: err}
	}
	if err := s.retry(ctx, "clear product documents", func(ctx context.Context) error {
		return s.cloud.DeleteProducts(ctx, st.ID)
	}); err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "product documents", Err: err}
	}

	products := NewReconciliationMap()
	for i, p := range st.Products {
		pd, err := productDocument(st.ID, i, p, reuse)
		if err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "product documents", Err: err}
		}
		assigned := pd.ID
		if err := s.retry(ctx, "create product document", func(ctx context.Context) error {
			pd.ID = assigned
			return s.cloud.CreateProduct(ctx, pd)
		}); err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "product documents", Err: err}
		}
		products.Add(pd.ID.String(), p.ID, p.Key)
	}

	collections := NewReconciliationMap()
	for i, c := range st.Collections {
		c.ProductIDs = products.Rewrite(c.ProductIDs)
		cd, err := collectionDocument(st.ID, i, c, reuse)
		if err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "collection documents", Err: err}
		}
		assigned := cd.ID
		if err := s.retry(ctx, "create collection document", func(ctx context.Context) error {
			cd.ID = assigned
			return s.cloud.CreateCollection(ctx, cd)
		}); err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "collection documents", Err: err}
		}
		collections.Add(cd.ID.String(), c.ID)
	}

	return s.commitSync(ctx, st.ID, true, func(cur *models.Store) {
		mergeMaterialized(cur, before, st)
		for i := range cur.Products {
			if id, ok := products.Resolve(cur.Products[i].ID); ok {
				cur.Products[i].ID = id
			}
		}
		for i := range cur.Collections {
			c := &cur.Collections[i]
			c.ProductIDs = products.Rewrite(c.ProductIDs)
			if id, ok := collections.Resolve(c.ID); ok {
				c.ID = id
			}
		}
	})
}

// syncStoreDocument mirrors store-level fields only
func (s *DualWriteStore) syncStoreDocument(ctx context.Context, entry models.CachedStore) error {
	before := entry.Store
	st := before.Clone()
	s.materializeLogo(ctx, st)

	doc, err := storeDocument(st)
	if err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "store document", Err: err}
	}
	if err := s.retry(ctx, "upsert store document", func(ctx context.Context) error {
		return s.cloud.UpsertStore(ctx, doc)
	}); err != nil {
		return &CloudSyncError{StoreID: st.ID, Op: "store document", Err: err}
	}
	return s.commitSync(ctx, st.ID, false, func(cur *models.Store) {
		mergeLogo(cur, before, st)
	})
}

func (s *DualWriteStore) syncProductDocument(productID string) incrementalSync {
	return func(ctx context.Context, entry models.CachedStore) error {
		st := entry.Store
		pi := st.FindProduct(productID)
		if pi < 0 {
			return repository.ErrNotFound
		}
		before := st.Products[pi]
		p := before.Clone()
		p.Images = s.assets.MaterializeAll(ctx, p.Images, productAssetPath(st.ID, p.ID))

		pd, err := productDocument(st.ID, pi, p, true)
		if err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "product document", Err: err}
		}
		if pd.ID == uuid.Nil {
			return repository.ErrNotFound
		}
		if err := s.retry(ctx, "update product document", func(ctx context.Context) error {
			return s.cloud.UpdateProduct(ctx, pd)
		}); err != nil {
			return &CloudSyncError{StoreID: st.ID, Op: "product document", Err: err}
		}
		return s.commitSync(ctx, st.ID, false, func(cur *models.Store) {
			if i := cur.FindProduct(productID); i >= 0 && equalStrings(cur.Products[i].Images, before.Images) {
				cur.Products[i].Images = p.Images
			}
		})
	}
}

func (s *DualWriteStore) deleteProductDocument(productID string) incrementalSync {
	return func(ctx context.Context, entry models.CachedStore) error {
		id, err := uuid.Parse(productID)
		if err != nil {
			return repository.ErrNotFound
		}
		if err := s.retry(ctx, "delete product document", func(ctx context.Context) error {
			return s.cloud.DeleteProduct(ctx, id)
		}); err != nil {
			return &CloudSyncError{StoreID: entry.Store.ID, Op: "delete product document", Err: err}
		}
		return s.commitSync(ctx, entry.Store.ID, false, nil)
	}
}

// deleteCloud removes children before the parent. On failure the removed
// entry is restored at its original position.
func (s *DualWriteStore) deleteCloud(ctx context.Context, removed models.CachedStore, index int) {
	id := removed.Store.ID
	steps := []struct {
		op string
		fn clients.RetryableFunc
	}{
		{"delete product documents", func(ctx context.Context) error { return s.cloud.DeleteProducts(ctx, id) }},
		{"delete collection documents", func(ctx context.Context) error { return s.cloud.DeleteCollections(ctx, id) }},
		{"delete store document", func(ctx context.Context) error { return s.cloud.DeleteStore(ctx, id) }},
	}
	for _, step := range steps {
		if err := s.retry(ctx, step.op, step.fn); err != nil {
			s.restore(removed, index, &CloudSyncError{StoreID: id, Op: step.op, Err: err})
			return
		}
	}

	s.releaseSlug(ctx, removed.Store.URLSlug, id)
	s.logger.WithField("store_id", id).Info("Store deleted from cloud")
	s.publish(ctx, models.SyncEventDeleted, removed)
}

func (s *DualWriteStore) restore(removed models.CachedStore, index int, syncErr *CloudSyncError) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := removed.Store.ID
	entry := removed
	entry.SyncStatus = models.SyncStatusSyncFailed
	entry.LastSyncError = syncErr.Error()

	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		if findEntry(entries, id) >= 0 {
			return entries, nil
		}
		if index > len(entries) {
			index = len(entries)
		}
		entries = append(entries, models.CachedStore{})
		copy(entries[index+1:], entries[index:])
		entries[index] = entry
		return entries, nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("store_id", id).Error("Failed to restore store after cloud delete failure")
	}

	s.mu.Lock()
	s.lastErrs[id] = syncErr
	s.dirty[id] = true
	s.mu.Unlock()

	s.logger.WithError(syncErr.Err).WithFields(logrus.Fields{
		"store_id": id,
		"op":       syncErr.Op,
	}).Error("Cloud delete failed, store restored locally")
	s.publish(ctx, models.SyncEventSyncFailed, entry)
}

// commitSync merges the outcome of a cloud phase into the latest local
// entry. The status only becomes SYNCED when no other phase is queued.
func (s *DualWriteStore) commitSync(ctx context.Context, id string, full bool, merge func(*models.Store)) error {
	var (
		entry models.CachedStore
		found bool
	)
	err := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, id)
		if idx < 0 {
			return entries, nil
		}
		found = true
		if merge != nil {
			merge(entries[idx].Store)
		}
		if full {
			entries[idx].CloudSynced = true
		}
		if s.pending[id] <= 1 && !s.dirty[id] {
			entries[idx].SyncStatus = models.SyncStatusSynced
			entries[idx].LastSyncError = ""
		}
		entry = entries[idx]
		return entries, nil
	})
	if err != nil {
		return &CloudSyncError{StoreID: id, Op: "local cache", Err: err}
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	delete(s.lastErrs, id)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"store_id":    id,
		"full":        full,
		"sync_status": entry.SyncStatus,
	}).Info("Store synced to cloud")
	s.publish(ctx, models.SyncEventSynced, entry)
	return nil
}

func (s *DualWriteStore) recordFailure(id, op string, err error) {
	syncErr := asCloudSyncError(id, op, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		entry models.CachedStore
		found bool
	)
	mutateErr := s.mutate(ctx, func(entries []models.CachedStore) ([]models.CachedStore, error) {
		idx := findEntry(entries, id)
		if idx < 0 {
			return entries, nil
		}
		found = true
		entries[idx].SyncStatus = models.SyncStatusSyncFailed
		entries[idx].LastSyncError = syncErr.Error()
		entry = entries[idx]
		return entries, nil
	})
	if mutateErr != nil {
		s.logger.WithError(mutateErr).WithField("store_id", id).Error("Failed to record sync failure locally")
	}
	if !found {
		return
	}

	s.mu.Lock()
	s.lastErrs[id] = syncErr
	s.mu.Unlock()

	s.logger.WithError(syncErr.Err).WithFields(logrus.Fields{
		"store_id": id,
		"op":       syncErr.Op,
	}).Error("Cloud sync failed, local copy kept")
	s.publish(ctx, models.SyncEventSyncFailed, entry)
}

func (s *DualWriteStore) publish(ctx context.Context, eventType models.SyncEventType, entry models.CachedStore) {
	event := &models.SyncEvent{
		EventType:    eventType,
		StoreID:      entry.Store.ID,
		MerchantID:   entry.Store.MerchantID,
		URLSlug:      entry.Store.URLSlug,
		Status:       entry.SyncStatus,
		ProductCount: len(entry.Store.Products),
		Error:        entry.LastSyncError,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", eventType).Warn("Failed to publish sync event")
	}
}

func (s *DualWriteStore) retry(ctx context.Context, op string, fn clients.RetryableFunc) error {
	return s.retrier.Do(ctx, op, fn).Err()
}

func (s *DualWriteStore) loadEntry(ctx context.Context, id string) (models.CachedStore, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.local.Load(ctx)
	if err != nil {
		return models.CachedStore{}, false, err
	}
	idx := findEntry(entries, id)
	if idx < 0 {
		return models.CachedStore{}, false, nil
	}
	entry := entries[idx]
	entry.Store = entry.Store.Clone()
	return entry, true, nil
}

// materialize uploads inline images of the graph in place. Failed uploads
// become the placeholder so the sync can proceed.
func (s *DualWriteStore) materialize(ctx context.Context, st *models.Store) {
	for i := range st.Products {
		p := &st.Products[i]
		p.Images = s.assets.MaterializeAll(ctx, p.Images, productAssetPath(st.ID, p.ID))
		if len(p.Images) == 0 {
			p.Images = []string{s.assets.Placeholder()}
		}
	}
	for i := range st.Collections {
		c := &st.Collections[i]
		if c.Image != "" {
			c.Image = s.assets.MaterializeOrPlaceholder(ctx, c.Image, fmt.Sprintf("stores/%s/collections/%s", st.ID, c.ID))
		}
	}
	s.materializeLogo(ctx, st)
}

func (s *DualWriteStore) materializeLogo(ctx context.Context, st *models.Store) {
	logo, ok := st.Content["logo"].(string)
	if !ok || !assets.IsDataURI(logo) {
		return
	}
	st.Content["logo"] = s.assets.MaterializeOrPlaceholder(ctx, logo, fmt.Sprintf("stores/%s/logo", st.ID))
}

func productAssetPath(storeID, productID string) string {
	return fmt.Sprintf("stores/%s/products/%s", storeID, productID)
}

// mergeMaterialized copies durable URLs into cur for every image that has not
// changed locally since the sync started
func mergeMaterialized(cur, before, after *models.Store) {
	beforeProducts := make(map[string]models.Product, len(before.Products))
	for _, p := range before.Products {
		beforeProducts[p.ID] = p
	}
	afterProducts := make(map[string]models.Product, len(after.Products))
	for _, p := range after.Products {
		afterProducts[p.ID] = p
	}
	for i := range cur.Products {
		p := &cur.Products[i]
		orig, ok := beforeProducts[p.ID]
		if ok && equalStrings(orig.Images, p.Images) {
			p.Images = append([]string(nil), afterProducts[p.ID].Images...)
		}
	}

	beforeCollections := make(map[string]string, len(before.Collections))
	for _, c := range before.Collections {
		beforeCollections[c.ID] = c.Image
	}
	afterCollections := make(map[string]string, len(after.Collections))
	for _, c := range after.Collections {
		afterCollections[c.ID] = c.Image
	}
	for i := range cur.Collections {
		c := &cur.Collections[i]
		if orig, ok := beforeCollections[c.ID]; ok && orig == c.Image {
			c.Image = afterCollections[c.ID]
		}
	}

	mergeLogo(cur, before, after)
}

func mergeLogo(cur, before, after *models.Store) {
	was, _ := before.Content["logo"].(string)
	now, _ := cur.Content["logo"].(string)
	synced, _ := after.Content["logo"].(string)
	if was != "" && was == now && synced != was {
		cur.Content["logo"] = synced
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
