package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"storefront-builder-service/internal/models"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("document not found")

// DocumentStore is the authoritative cloud store: store -> products and
// store -> collections, addressed by ID
type DocumentStore interface {
	UpsertStore(ctx context.Context, doc *models.StoreDocument) error
	GetStore(ctx context.Context, id string) (*models.StoreDocument, error)
	ListStoresByMerchant(ctx context.Context, merchantID string) ([]models.StoreDocument, error)
	SlugTaken(ctx context.Context, slug, excludeStoreID string) (bool, error)
	DeleteStore(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, doc *models.ProductDocument) error
	UpdateProduct(ctx context.Context, doc *models.ProductDocument) error
	ListProducts(ctx context.Context, storeID string) ([]models.ProductDocument, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	DeleteProducts(ctx context.Context, storeID string) error

	CreateCollection(ctx context.Context, doc *models.CollectionDocument) error
	ListCollections(ctx context.Context, storeID string) ([]models.CollectionDocument, error)
	DeleteCollections(ctx context.Context, storeID string) error
}

// DocumentRepository implements DocumentStore on postgres JSONB tables
type DocumentRepository struct {
	db *gorm.DB
}

var _ DocumentStore = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// AutoMigrate creates or updates the document tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.StoreDocument{},
		&models.ProductDocument{},
		&models.CollectionDocument{},
	)
}

// UpsertStore creates the store document or overwrites its fields
func (r *DocumentRepository) UpsertStore(ctx context.Context, doc *models.StoreDocument) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"merchant_id", "url_slug", "name", "data", "updated_at"}),
	}).Create(doc).Error
}

// GetStore retrieves a store document by ID
func (r *DocumentRepository) GetStore(ctx context.Context, id string) (*models.StoreDocument, error) {
	var doc models.StoreDocument
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// ListStoresByMerchant retrieves every store document owned by a merchant
func (r *DocumentRepository) ListStoresByMerchant(ctx context.Context, merchantID string) ([]models.StoreDocument, error) {
	var docs []models.StoreDocument
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// SlugTaken reports whether another store already uses the slug
func (r *DocumentRepository) SlugTaken(ctx context.Context, slug, excludeStoreID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.StoreDocument{}).Where("url_slug = ?", slug)
	if excludeStoreID != "" {
		query = query.Where("id <> ?", excludeStoreID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteStore deletes the store document only; children are removed by the caller first
func (r *DocumentRepository) DeleteStore(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.StoreDocument{}, "id = ?", id).Error
}

// CreateProduct inserts a product document. The cloud assigns the ID.
func (r *DocumentRepository) CreateProduct(ctx context.Context, doc *models.ProductDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

// UpdateProduct overwrites an existing product document
func (r *DocumentRepository) UpdateProduct(ctx context.Context, doc *models.ProductDocument) error {
	result := r.db.WithContext(ctx).Model(&models.ProductDocument{}).
		Where("id = ? AND store_id = ?", doc.ID, doc.StoreID).
		Updates(map[string]interface{}{"data": doc.Data, "position": doc.Position})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProducts retrieves a store's product documents in display order
func (r *DocumentRepository) ListProducts(ctx context.Context, storeID string) ([]models.ProductDocument, error) {
	var docs []models.ProductDocument
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("position ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteProduct deletes a single product document
func (r *DocumentRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ProductDocument{}, "id = ?", id).Error
}

// DeleteProducts deletes every product document of a store
func (r *DocumentRepository) DeleteProducts(ctx context.Context, storeID string) error {
	return r.db.WithContext(ctx).Where("store_id = ?", storeID).Delete(&models.ProductDocument{}).Error
}

// CreateCollection inserts a collection document. The cloud assigns the ID.
func (r *DocumentRepository) CreateCollection(ctx context.Context, doc *models.CollectionDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

// ListCollections retrieves a store's collection documents in display order
func (r *DocumentRepository) ListCollections(ctx context.Context, storeID string) ([]models.CollectionDocument, error) {
	var docs []models.CollectionDocument
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("position ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteCollections deletes every collection document of a store
func (r *DocumentRepository) DeleteCollections(ctx context.Context, storeID string) error {
	return r.db.WithContext(ctx).Where("store_id = ?", storeID).Delete(&models.CollectionDocument{}).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
