package mapper

import (
	"strings"

	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

// GeneratedCatalog is a prompt-generated catalog before it becomes a store draft
type GeneratedCatalog struct {
	StoreName   string
	Tagline     string
	Currency    string
	Products    []GeneratedProduct
	Collections []GeneratedCollection
}

// GeneratedProduct is one synthesized product. Images may be data URIs; they
// are materialized when the draft is persisted.
type GeneratedProduct struct {
	Name            string
	Description     string
	Price           string
	Images          []string
	Variants        []models.Variant
	IsPrintOnDemand bool
	PODDetails      models.JSONB
}

// GeneratedCollection references products by name
type GeneratedCollection struct {
	Name         string
	Description  string
	ProductNames []string
}

// MapGeneratedCatalog converts a generated catalog into the same draft shape
// MapToInternalStore produces for imports
func MapGeneratedCatalog(catalog GeneratedCatalog, opts Options) *models.Store {
	store := newDraft(catalog.StoreName, strings.TrimSpace(catalog.Tagline), opts)

	currency := strings.ToUpper(strings.TrimSpace(catalog.Currency))
	if currency == "" {
		currency = "USD"
	}

	keys := newKeyIndex()
	for i, p := range catalog.Products {
		if opts.MaxProducts > 0 && i >= opts.MaxProducts {
			break
		}
		key := keys.add("", p.Name)

		images := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			if img = strings.TrimSpace(img); img != "" {
				images = append(images, img)
			}
		}
		if len(images) == 0 {
			images = []string{opts.placeholder()}
		}

		store.Products = append(store.Products, models.Product{
			Key:             key,
			Name:            strings.TrimSpace(p.Name),
			Description:     StripHTML(p.Description),
			Price:           ParsePrice(p.Price),
			Currency:        currency,
			Images:          images,
			Variants:        mapVariants(toOptions(p.Variants)),
			IsPrintOnDemand: p.IsPrintOnDemand,
			PODDetails:      p.PODDetails.Clone(),
		})
	}

	for _, c := range catalog.Collections {
		collection := models.Collection{
			Name:        strings.TrimSpace(c.Name),
			Description: strings.TrimSpace(c.Description),
			ProductIDs:  []string{},
		}
		seen := make(map[string]bool)
		for _, name := range c.ProductNames {
			key, ok := keys.resolve(name)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			collection.ProductIDs = append(collection.ProductIDs, key)
		}
		for _, p := range store.Products {
			if len(collection.ProductIDs) > 0 && p.Key == collection.ProductIDs[0] {
				collection.Image = p.PrimaryImage()
				break
			}
		}
		store.Collections = append(store.Collections, collection)
	}

	return store
}

func toOptions(variants []models.Variant) []clients.CatalogOption {
	out := make([]clients.CatalogOption, 0, len(variants))
	for _, v := range variants {
		out = append(out, clients.CatalogOption{Name: v.Name, Values: v.Values})
	}
	return out
}
