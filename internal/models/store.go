package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderImageURL is substituted whenever a product would otherwise have no image
const PlaceholderImageURL = "https://placehold.co/600x600?text=Product"

// Store is the top-level storefront entity. Products and collections are
// nested so the whole graph can be cached locally as one document.
type Store struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	URLSlug         string       `json:"urlSlug"`
	Type            string       `json:"type"`
	TemplateVersion string       `json:"templateVersion"`
	Theme           JSONB        `json:"theme,omitempty"`
	Content         JSONB        `json:"content,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
	MerchantID      string       `json:"merchantId,omitempty"`
	Source          StoreSource  `json:"source,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	Products        []Product    `json:"products"`
	Collections     []Collection `json:"collections"`
}

// StoreSource records how a store was produced
type StoreSource struct {
	Provider Provider `json:"provider,omitempty"`
	Prompt   string   `json:"prompt,omitempty"`
}

// Product belongs to exactly one store
type Product struct {
	ID string `json:"id"`
	// Key is the mapping-time identifier collections refer to before
	// products have been assigned durable IDs.
	Key             string          `json:"key,omitempty"`
	SourceID        string          `json:"sourceId,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Images          []string        `json:"images"`
	Variants        []Variant       `json:"variants,omitempty"`
	InventoryCount  *int            `json:"inventoryCount,omitempty"`
	IsDropshipping  bool            `json:"isDropshipping,omitempty"`
	IsPrintOnDemand bool            `json:"isPrintOnDemand,omitempty"`
	PODDetails      JSONB           `json:"podDetails,omitempty"`
}

// Variant is a named option with its values, e.g. Size: S, M, L
type Variant struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Collection groups products of the same store
type Collection struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image,omitempty"`
	ProductIDs  []string `json:"productIds"`
}

// HydratedCollection is a collection with its product references resolved
type HydratedCollection struct {
	Collection
	Products []Product `json:"products"`
}

// StoreView is the read model handed to the presentation layer
type StoreView struct {
	Store
	Collections   []HydratedCollection `json:"collections"`
	SyncStatus    SyncStatus           `json:"syncStatus"`
	LastSyncError string               `json:"lastSyncError,omitempty"`
}

// Clone returns a deep copy of the store graph
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	out := *s
	out.Theme = s.Theme.Clone()
	out.Content = s.Content.Clone()
	out.Tags = append([]string(nil), s.Tags...)
	out.Products = make([]Product, len(s.Products))
	for i, p := range s.Products {
		out.Products[i] = p.Clone()
	}
	out.Collections = make([]Collection, len(s.Collections))
	for i, c := range s.Collections {
		c.ProductIDs = append([]string(nil), c.ProductIDs...)
		out.Collections[i] = c
	}
	return &out
}

// Clone returns a deep copy of the product
func (p Product) Clone() Product {
	out := p
	out.Images = append([]string(nil), p.Images...)
	if p.Variants != nil {
		out.Variants = make([]Variant, len(p.Variants))
		for i, v := range p.Variants {
			out.Variants[i] = Variant{Name: v.Name, Values: append([]string(nil), v.Values...)}
		}
	}
	if p.InventoryCount != nil {
		n := *p.InventoryCount
		out.InventoryCount = &n
	}
	out.PODDetails = p.PODDetails.Clone()
	return out
}

// PrimaryImage returns the first image, which storefronts render as the hero
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return PlaceholderImageURL
	}
	return p.Images[0]
}

// FindProduct returns the index of the product with the given ID, or -1
func (s *Store) FindProduct(id string) int {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return i
		}
	}
	return -1
}
