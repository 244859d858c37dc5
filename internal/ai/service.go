// Package ai defines the generative collaborator used by the prompt path and
// an OpenAI-backed implementation of it.
package ai

import (
	"context"
	"errors"

	"storefront-builder-service/internal/assets"
	"storefront-builder-service/internal/models"
)

// ErrEmptyResponse is returned when the model answers with no usable content
var ErrEmptyResponse = errors.New("model returned an empty response")

// Image is inline binary image data
type Image struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
}

// DataURI encodes the image for embedding in a draft
func (i Image) DataURI() string {
	return assets.ToDataURI(i.Data, i.MimeType)
}

// IsEmpty reports whether the image carries no bytes
func (i Image) IsEmpty() bool {
	return len(i.Data) == 0
}

// ImageFromDataURI decodes a data URI produced by DataURI
func ImageFromDataURI(uri string) (Image, error) {
	data, mimeType, err := assets.DecodeDataURI(uri)
	if err != nil {
		return Image{}, err
	}
	return Image{Data: data, MimeType: mimeType}, nil
}

// StoreContext gives copywriting calls the tone of the store
type StoreContext struct {
	StoreName string
	StoreType string
	Prompt    string
}

// ProductBrief is what the copywriter knows about a product
type ProductBrief struct {
	Name        string
	Description string
	Price       string
}

// ProductCopy is generated marketing copy
type ProductCopy struct {
	Description string `json:"description"`
}

// ProductDetails are the listing fields suggested for a mockup
type ProductDetails struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       string           `json:"price"`
	Variants    []models.Variant `json:"variants"`
}

// MockupResult is a design placed on a product mockup
type MockupResult struct {
	Image   Image
	Details ProductDetails
}

// CatalogRequest asks for a set of product and collection ideas
type CatalogRequest struct {
	Prompt       string
	StoreType    string
	ProductCount int
}

// CatalogIdea is a structured store concept
type CatalogIdea struct {
	StoreName   string           `json:"storeName"`
	Tagline     string           `json:"tagline"`
	Currency    string           `json:"currency"`
	Products    []ProductIdea    `json:"products"`
	Collections []CollectionIdea `json:"collections"`
}

// ProductIdea is one product suggested by the model
type ProductIdea struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       string           `json:"price"`
	Variants    []models.Variant `json:"variants"`
	ImagePrompt string           `json:"imagePrompt"`
}

// CollectionIdea groups product ideas by name
type CollectionIdea struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ProductNames []string `json:"productNames"`
}

// Service is the generative backend. Every call is independent; callers
// degrade the affected item when one fails.
type Service interface {
	GenerateDesign(ctx context.Context, prompt string, reference *Image) (*Image, error)
	GenerateProductCopy(ctx context.Context, product ProductBrief, store StoreContext) (*ProductCopy, error)
	VisualizeOnMockup(ctx context.Context, design, mockup Image, prompt, productName string) (*MockupResult, error)
	GenerateCatalog(ctx context.Context, req CatalogRequest) (*CatalogIdea, error)
}
