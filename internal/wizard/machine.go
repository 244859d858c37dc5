// Package wizard sequences a catalog import: connect, preview metadata,
// preview items, finalize. One Machine exists per provider; Manager makes sure
// only one of them holds a session at a time.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/mapper"
	"storefront-builder-service/internal/models"
)

var (
	ErrNotOpen     = errors.New("wizard session is not open")
	ErrBusy        = errors.New("wizard is already fetching")
	ErrCancelled   = errors.New("wizard session was cancelled")
	ErrNoMoreItems = errors.New("no more products to load")
)

// CredentialsError wraps a credential payload that could not be parsed
type CredentialsError struct {
	Provider models.Provider
	Err      error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid %s credentials: %v", e.Provider, e.Err)
}

func (e *CredentialsError) Unwrap() error {
	return e.Err
}

// Step is the wizard position. It only grows, except on cancel or reset and
// when a failed finalize drops back to PreviewItems.
type Step int

const (
	StepIdle Step = iota
	StepConnecting
	StepPreviewMetadata
	StepPreviewItems
	StepFinalizing
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepConnecting:
		return "connecting"
	case StepPreviewMetadata:
		return "preview_metadata"
	case StepPreviewItems:
		return "preview_items"
	case StepFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Finalizer commits the mapped draft
type Finalizer interface {
	Create(ctx context.Context, draft *models.Store) (*models.Store, error)
}

// Options tunes a machine
type Options struct {
	PageSize int
	Mapper   mapper.Options
}

// Snapshot is a read-only view of a session
type Snapshot struct {
	Provider        models.Provider             `json:"provider"`
	Step            Step                        `json:"step"`
	StepName        string                      `json:"stepName"`
	Metadata        *clients.CatalogMetadata    `json:"metadata,omitempty"`
	Products        []clients.CatalogProduct    `json:"products,omitempty"`
	Collections     []clients.CatalogCollection `json:"collections,omitempty"`
	HasMoreProducts bool                        `json:"hasMoreProducts"`
	IsFetching      bool                        `json:"isFetching"`
	LastError       string                      `json:"lastError,omitempty"`
	// Store is set on the snapshot returned by a successful finalize
	Store *models.Store `json:"store,omitempty"`
}

// Session is the provider-independent face of a Machine
type Session interface {
	Provider() models.Provider
	Open(ctx context.Context, raw clients.RawCredentials, merchantID string) (Snapshot, error)
	Advance(ctx context.Context) (Snapshot, error)
	LoadMore(ctx context.Context) (Snapshot, error)
	Cancel()
	Snapshot() Snapshot
}

// Machine is the wizard for one provider, generic over its credential type
type Machine[C any] struct {
	adapter   clients.CatalogAdapter[C]
	parse     func(clients.RawCredentials) (C, error)
	finalizer Finalizer
	opts      Options
	logger    *logrus.Entry

	mu                sync.Mutex
	step              Step
	epoch             uint64
	creds             C
	merchantID        string
	metadata          *clients.CatalogMetadata
	products          []clients.CatalogProduct
	productsLoaded    bool
	nextCursor        string
	hasMore           bool
	collections       []clients.CatalogCollection
	collectionsLoaded bool
	fetching          bool
	lastError         error
}

var _ Session = (*Machine[struct{}])(nil)

// NewMachine creates a wizard for one provider
func NewMachine[C any](adapter clients.CatalogAdapter[C], parse func(clients.RawCredentials) (C, error), finalizer Finalizer, opts Options, logger *logrus.Logger) *Machine[C] {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	opts.Mapper.Provider = adapter.GetProvider()
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine[C]{
		adapter:   adapter,
		parse:     parse,
		finalizer: finalizer,
		opts:      opts,
		logger: logger.WithFields(logrus.Fields{
			"component": "wizard",
			"provider":  adapter.GetProvider(),
		}),
	}
}

// Provider returns the provider this machine imports from
func (m *Machine[C]) Provider() models.Provider {
	return m.adapter.GetProvider()
}

// Open starts a fresh session and fetches the shop metadata. A failed fetch
// leaves the session at Connecting so Advance can retry it.
func (m *Machine[C]) Open(ctx context.Context, raw clients.RawCredentials, merchantID string) (Snapshot, error) {
	creds, err := m.parse(raw)

	m.mu.Lock()
	m.resetLocked()
	if err != nil {
		m.lastError = &CredentialsError{Provider: m.Provider(), Err: err}
		snap, lastErr := m.snapshotLocked(), m.lastError
		m.mu.Unlock()
		return snap, lastErr
	}
	m.creds = creds
	m.merchantID = merchantID
	m.step = StepConnecting
	m.mu.Unlock()

	m.logger.WithField("merchant_id", merchantID).Info("Wizard opened")
	return m.connect(ctx)
}

// Advance performs the transition out of the current step
func (m *Machine[C]) Advance(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	step := m.step
	m.mu.Unlock()

	switch step {
	case StepConnecting:
		return m.connect(ctx)
	case StepPreviewMetadata:
		return m.previewItems(ctx)
	case StepPreviewItems, StepFinalizing:
		return m.finalize(ctx)
	default:
		return m.Snapshot(), ErrNotOpen
	}
}

// LoadMore appends the next page of products while previewing items
func (m *Machine[C]) LoadMore(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.step != StepPreviewItems {
		snap := m.snapshotLocked()
		err := fmt.Errorf("cannot load more products at step %s", m.step)
		m.mu.Unlock()
		return snap, err
	}
	if !m.hasMore {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrNoMoreItems
	}
	epoch, creds, cursor, ok := m.beginFetchLocked()
	m.mu.Unlock()
	if !ok {
		return m.Snapshot(), ErrBusy
	}

	page, err := m.adapter.FetchProducts(ctx, creds, m.opts.PageSize, cursor)

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return m.snapshotLocked(), ErrCancelled
	}
	m.fetching = false
	if err != nil {
		m.lastError = err
		return m.snapshotLocked(), err
	}
	m.lastError = nil
	m.products = append(m.products, page.Items...)
	m.nextCursor, m.hasMore = page.NextCursor, page.HasMore
	return m.snapshotLocked(), nil
}

// Cancel discards the session. Requests already in flight complete but
// their results are dropped.
func (m *Machine[C]) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepIdle {
		m.logger.WithField("step", m.step.String()).Info("Wizard cancelled")
	}
	m.resetLocked()
}

// Snapshot returns the current session state
func (m *Machine[C]) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine[C]) connect(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	epoch, creds, _, ok := m.beginFetchLocked()
	m.mu.Unlock()
	if !ok {
		return m.Snapshot(), ErrBusy
	}

	meta, err := m.adapter.FetchMetadata(ctx, creds)

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return m.snapshotLocked(), ErrCancelled
	}
	m.fetching = false
	if err != nil {
		m.lastError = err
		m.logger.WithError(err).Warn("Metadata fetch failed")
		return m.snapshotLocked(), err
	}
	m.metadata = meta
	m.lastError = nil
	m.step = StepPreviewMetadata
	return m.snapshotLocked(), nil
}

// previewItems fetches whatever preview data is still missing. Products and
// collections are fetched concurrently; a half-successful fetch keeps the
// half that succeeded so a retry only requests the rest.
func (m *Machine[C]) previewItems(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.productsLoaded && m.collectionsLoaded {
		m.step = StepPreviewItems
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	needProducts, needCollections := !m.productsLoaded, !m.collectionsLoaded
	epoch, creds, _, ok := m.beginFetchLocked()
	m.mu.Unlock()
	if !ok {
		return m.Snapshot(), ErrBusy
	}

	var (
		wg                        sync.WaitGroup
		productPage               *clients.ProductPage
		collectionPage            *clients.CollectionPage
		productErr, collectionErr error
	)
	if needProducts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			productPage, productErr = m.adapter.FetchProducts(ctx, creds, m.opts.PageSize, "")
		}()
	}
	if needCollections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collectionPage, collectionErr = m.fetchAllCollections(ctx, creds)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return m.snapshotLocked(), ErrCancelled
	}
	m.fetching = false

	if needProducts && productErr == nil {
		m.products = productPage.Items
		m.nextCursor, m.hasMore = productPage.NextCursor, productPage.HasMore
		m.productsLoaded = true
	}
	if needCollections && collectionErr == nil {
		m.collections = collectionPage.Items
		m.collectionsLoaded = true
	}

	if err := firstError(productErr, collectionErr); err != nil {
		m.lastError = err
		m.logger.WithError(err).Warn("Preview fetch failed")
		return m.snapshotLocked(), err
	}
	m.lastError = nil
	m.step = StepPreviewItems
	return m.snapshotLocked(), nil
}

// fetchAllCollections walks every collection page; collections are few and
// the mapper needs all of them to resolve membership.
func (m *Machine[C]) fetchAllCollections(ctx context.Context, creds C) (*clients.CollectionPage, error) {
	all := &clients.CollectionPage{Items: []clients.CatalogCollection{}}
	cursor := ""
	for {
		page, err := m.adapter.FetchCollections(ctx, creds, m.opts.PageSize, cursor)
		if err != nil {
			return nil, err
		}
		all.Items = append(all.Items, page.Items...)
		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// finalize loads the product pages the preview skipped, maps the catalog and
// hands the draft to the finalizer. The session reads Finalizing only while
// that runs; on failure it returns to PreviewItems and Advance retries.
func (m *Machine[C]) finalize(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.fetching {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrBusy
	}
	m.fetching = true
	m.step = StepFinalizing
	epoch, creds, cursor, hasMore := m.epoch, m.creds, m.nextCursor, m.hasMore
	limit := 0
	if maxProducts := m.opts.Mapper.MaxProducts; maxProducts > 0 {
		limit = maxProducts - len(m.products)
		hasMore = hasMore && limit > 0
	}
	m.mu.Unlock()

	var rest []clients.CatalogProduct
	if hasMore {
		var err error
		rest, err = m.fetchRemainingProducts(ctx, creds, cursor, limit)
		if err != nil {
			m.mu.Lock()
			defer m.mu.Unlock()
			if epoch != m.epoch {
				return m.snapshotLocked(), ErrCancelled
			}
			return m.finalizeFailedLocked(err, "Remaining product fetch failed")
		}
	}

	m.mu.Lock()
	if epoch != m.epoch {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrCancelled
	}
	m.products = append(m.products, rest...)
	m.nextCursor, m.hasMore = "", false
	draft := mapper.MapToInternalStore(m.metadata, m.products, m.collections, m.opts.Mapper)
	draft.MerchantID = m.merchantID
	m.mu.Unlock()

	store, err := m.finalizer.Create(ctx, draft)

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		if err == nil {
			m.logger.WithField("store_id", store.ID).Warn("Store created after the wizard was cancelled")
		}
		return m.snapshotLocked(), ErrCancelled
	}
	if err != nil {
		return m.finalizeFailedLocked(err, "Finalize failed")
	}

	m.logger.WithFields(logrus.Fields{
		"store_id": store.ID,
		"products": len(store.Products),
	}).Info("Wizard finalized store")

	m.resetLocked()
	snap := m.snapshotLocked()
	snap.Store = store
	return snap, nil
}

func (m *Machine[C]) finalizeFailedLocked(err error, msg string) (Snapshot, error) {
	m.fetching = false
	m.step = StepPreviewItems
	m.lastError = err
	m.logger.WithError(err).Warn(msg)
	return m.snapshotLocked(), err
}

// fetchRemainingProducts walks the product pages after cursor, stopping once
// limit items are in hand when limit is positive
func (m *Machine[C]) fetchRemainingProducts(ctx context.Context, creds C, cursor string, limit int) ([]clients.CatalogProduct, error) {
	var items []clients.CatalogProduct
	for {
		page, err := m.adapter.FetchProducts(ctx, creds, m.opts.PageSize, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			return items, nil
		}
		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

func (m *Machine[C]) beginFetchLocked() (uint64, C, string, bool) {
	if m.fetching {
		var zero C
		return 0, zero, "", false
	}
	m.fetching = true
	return m.epoch, m.creds, m.nextCursor, true
}

func (m *Machine[C]) resetLocked() {
	var zero C
	m.epoch++
	m.step = StepIdle
	m.creds = zero
	m.merchantID = ""
	m.metadata = nil
	m.products = nil
	m.productsLoaded = false
	m.nextCursor = ""
	m.hasMore = false
	m.collections = nil
	m.collectionsLoaded = false
	m.fetching = false
	m.lastError = nil
}

func (m *Machine[C]) snapshotLocked() Snapshot {
	snap := Snapshot{
		Provider:        m.Provider(),
		Step:            m.step,
		StepName:        m.step.String(),
		Metadata:        m.metadata,
		HasMoreProducts: m.hasMore,
		IsFetching:      m.fetching,
	}
	if m.products != nil {
		snap.Products = append([]clients.CatalogProduct(nil), m.products...)
	}
	if m.collections != nil {
		snap.Collections = append([]clients.CatalogCollection(nil), m.collections...)
	}
	if m.lastError != nil {
		snap.LastError = clients.UserMessage(m.lastError)
	}
	return snap
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
