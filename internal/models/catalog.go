package models

import (
	"time"

	"github.com/google/uuid"
)

// StoreDocument is the cloud copy of a store. The ID is the locally generated
// store ID so that it stays stable across syncs.
type StoreDocument struct {
	ID         string `gorm:"type:varchar(64);primaryKey" json:"id"`
	MerchantID string `gorm:"type:varchar(255);not null;index:idx_store_documents_merchant" json:"merchantId"`
	URLSlug    string `gorm:"type:varchar(255);not null;uniqueIndex:idx_store_documents_slug" json:"urlSlug"`
	Name       string `gorm:"type:varchar(500);not null" json:"name"`

	// Store fields other than the nested children
	Data JSONB `gorm:"type:jsonb;default:'{}'" json:"data"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for StoreDocument
func (StoreDocument) TableName() string {
	return "storefront_store_documents"
}

// ProductDocument is the cloud copy of a product, addressed as store -> products
type ProductDocument struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID  string    `gorm:"type:varchar(64);not null;index:idx_product_documents_store" json:"storeId"`
	Position int       `gorm:"not null;default:0" json:"position"`
	Data     JSONB     `gorm:"type:jsonb;default:'{}'" json:"data"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for ProductDocument
func (ProductDocument) TableName() string {
	return "storefront_product_documents"
}

// CollectionDocument is the cloud copy of a collection, addressed as store -> collections
type CollectionDocument struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID  string    `gorm:"type:varchar(64);not null;index:idx_collection_documents_store" json:"storeId"`
	Position int       `gorm:"not null;default:0" json:"position"`
	Data     JSONB     `gorm:"type:jsonb;default:'{}'" json:"data"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for CollectionDocument
func (CollectionDocument) TableName() string {
	return "storefront_collection_documents"
}
