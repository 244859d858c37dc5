package clients

import (
	"context"

	"storefront-builder-service/internal/models"
)

// CatalogAdapter defines the read-only contract every catalog provider implements.
// C is the provider's own credential type. Adapters never retry: every failure
// is returned classified as AuthError, NotFoundError or RateLimitOrNetworkError
// and the caller decides what to do with it.
type CatalogAdapter[C any] interface {
	// GetProvider returns the provider this adapter talks to
	GetProvider() models.Provider

	// FetchMetadata returns the shop-level details used for the store draft
	FetchMetadata(ctx context.Context, creds C) (*CatalogMetadata, error)

	// FetchProducts returns one page of products. An empty cursor means the first page.
	FetchProducts(ctx context.Context, creds C, pageSize int, cursor string) (*ProductPage, error)

	// FetchCollections returns one page of collections. Providers without
	// collections return an empty, final page.
	FetchCollections(ctx context.Context, creds C, pageSize int, cursor string) (*CollectionPage, error)
}

// RawCredentials is the untyped credential payload received from callers or secrets
type RawCredentials map[string]string

// CatalogMetadata is the uniform shape of a provider's shop details
type CatalogMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency"`
	Domain      string `json:"domain,omitempty"`
	LogoURL     string `json:"logoUrl,omitempty"`
}

// Money carries a provider price without losing its native representation.
// Exactly one of Minor or Amount is set.
type Money struct {
	// Minor is an integer amount in minor units, scaled by Divisor
	Minor   *int64 `json:"minor,omitempty"`
	Divisor int64  `json:"divisor,omitempty"`
	// Amount is a decimal string such as "19.99"
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency"`
}

// MinorUnits builds a Money value from an integer amount in minor units
func MinorUnits(amount int64, divisor int64, currency string) Money {
	return Money{Minor: &amount, Divisor: divisor, Currency: currency}
}

// DecimalAmount builds a Money value from a decimal string
func DecimalAmount(amount string, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// CatalogProduct is the uniform shape of a provider product
type CatalogProduct struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	DescriptionHTML string          `json:"descriptionHtml,omitempty"`
	Price           Money           `json:"price"`
	Vendor          string          `json:"vendor,omitempty"`
	ProductType     string          `json:"productType,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	FeaturedImage   string          `json:"featuredImage,omitempty"`
	Images          []string        `json:"images,omitempty"`
	VariantImages   []string        `json:"variantImages,omitempty"`
	Options         []CatalogOption `json:"options,omitempty"`
	// Inventory is nil when the provider does not track stock
	Inventory *int `json:"inventory,omitempty"`
}

// CatalogOption is a product option such as Size with its values
type CatalogOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// CatalogCollection is the uniform shape of a provider collection.
// ProductRefs holds provider product IDs or product titles, in display order.
type CatalogCollection struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DescriptionHTML string   `json:"descriptionHtml,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	ProductRefs     []string `json:"productRefs"`
}

// ProductPage contains one page of products
type ProductPage struct {
	Items      []CatalogProduct `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
	HasMore    bool             `json:"hasMore"`
}

// CollectionPage contains one page of collections
type CollectionPage struct {
	Items      []CatalogCollection `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
	HasMore    bool                `json:"hasMore"`
}

// EmptyCollectionPage is returned by providers without collections
func EmptyCollectionPage() *CollectionPage {
	return &CollectionPage{Items: []CatalogCollection{}}
}

// ClampPageSize keeps page sizes within what every provider accepts
func ClampPageSize(pageSize, max int) int {
	if pageSize <= 0 {
		return 50
	}
	if pageSize > max {
		return max
	}
	return pageSize
}
