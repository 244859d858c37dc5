// Package mapper converts provider catalogs and generated catalogs into the
// internal store schema. Every function here is pure: the same input always
// yields the same draft, and nothing touches the network, the clock or a
// random source.
package mapper

import (
	"fmt"
	"regexp"
	"strings"

	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

const (
	DefaultStoreType       = "general"
	DefaultTemplateVersion = "v1"
	defaultStoreName       = "My Store"
)

// Options tunes how a draft is produced
type Options struct {
	Provider        models.Provider
	StoreType       string
	TemplateVersion string
	Theme           models.JSONB
	Tags            []string
	// MaxProducts caps the number of imported products; zero means no cap
	MaxProducts int
	// PlaceholderImage replaces models.PlaceholderImageURL when set
	PlaceholderImage string
}

func (o Options) placeholder() string {
	if o.PlaceholderImage != "" {
		return o.PlaceholderImage
	}
	return models.PlaceholderImageURL
}

// =============================================================================
// PROVIDER CATALOG -> STORE DRAFT
// =============================================================================

// MapToInternalStore converts provider metadata, products and collections into a
// store draft. Products get a name-based Key and collections reference those
// keys; IDs are assigned when the draft is persisted.
func MapToInternalStore(meta *clients.CatalogMetadata, products []clients.CatalogProduct, collections []clients.CatalogCollection, opts Options) *models.Store {
	if meta == nil {
		meta = &clients.CatalogMetadata{}
	}

	store := newDraft(meta.Name, StripHTML(meta.Description), opts)
	store.Source = models.StoreSource{Provider: opts.Provider}
	if meta.LogoURL != "" {
		store.Content["logo"] = meta.LogoURL
	}

	keys := newKeyIndex()
	for i, p := range products {
		if opts.MaxProducts > 0 && i >= opts.MaxProducts {
			break
		}
		key := keys.add(p.ID, p.Title)
		store.Products = append(store.Products, mapProduct(p, key, meta.Currency, opts))
	}

	for _, c := range collections {
		store.Collections = append(store.Collections, mapCollection(c, keys, store.Products))
	}

	return store
}

func newDraft(name, description string, opts Options) *models.Store {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultStoreName
	}
	storeType := opts.StoreType
	if storeType == "" {
		storeType = DefaultStoreType
	}
	templateVersion := opts.TemplateVersion
	if templateVersion == "" {
		templateVersion = DefaultTemplateVersion
	}

	content := models.JSONB{
		"hero": map[string]interface{}{
			"title":    name,
			"subtitle": description,
		},
	}

	return &models.Store{
		Name:            name,
		URLSlug:         GenerateSlug(name),
		Type:            storeType,
		TemplateVersion: templateVersion,
		Theme:           opts.Theme.Clone(),
		Content:         content,
		Tags:            append([]string(nil), opts.Tags...),
		Products:        []models.Product{},
		Collections:     []models.Collection{},
	}
}

func mapProduct(p clients.CatalogProduct, key, fallbackCurrency string, opts Options) models.Product {
	currency := p.Price.Currency
	if currency == "" {
		currency = fallbackCurrency
	}

	product := models.Product{
		Key:         key,
		SourceID:    p.ID,
		Name:        strings.TrimSpace(p.Title),
		Description: StripHTML(p.DescriptionHTML),
		Price:       NormalizePrice(p.Price),
		Currency:    strings.ToUpper(currency),
		Images:      resolveImages(p, opts.placeholder()),
		Variants:    mapVariants(p.Options),
	}
	if p.Inventory != nil {
		qty := *p.Inventory
		product.InventoryCount = &qty
	}
	return product
}

// resolveImages applies the fallback chain featured -> gallery -> variant images -> placeholder
func resolveImages(p clients.CatalogProduct, placeholder string) []string {
	seen := make(map[string]bool)
	var images []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		images = append(images, u)
	}

	add(p.FeaturedImage)
	for _, u := range p.Images {
		add(u)
	}
	if len(images) == 0 {
		for _, u := range p.VariantImages {
			add(u)
		}
	}
	if len(images) == 0 {
		images = []string{placeholder}
	}
	return images
}

func mapVariants(options []clients.CatalogOption) []models.Variant {
	var variants []models.Variant
	for _, opt := range options {
		name := strings.TrimSpace(opt.Name)
		if name == "" {
			continue
		}
		var values []string
		for _, v := range opt.Values {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		variants = append(variants, models.Variant{Name: name, Values: values})
	}
	return variants
}

// mapCollection resolves provider references to product keys. References that
// match no imported product are dropped.
func mapCollection(c clients.CatalogCollection, keys *keyIndex, products []models.Product) models.Collection {
	collection := models.Collection{
		Name:        strings.TrimSpace(c.Title),
		Description: StripHTML(c.DescriptionHTML),
		Image:       c.ImageURL,
		ProductIDs:  []string{},
	}

	seen := make(map[string]bool)
	for _, ref := range c.ProductRefs {
		key, ok := keys.resolve(ref)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		collection.ProductIDs = append(collection.ProductIDs, key)
	}

	if collection.Image == "" && len(collection.ProductIDs) > 0 {
		for _, p := range products {
			if p.Key == collection.ProductIDs[0] {
				collection.Image = p.PrimaryImage()
				break
			}
		}
	}
	return collection
}

// =============================================================================
// KEY INDEX
// =============================================================================

// keyIndex hands out name-based product keys and resolves provider references
// (IDs first, then case-insensitive names) back to them.
type keyIndex struct {
	byID   map[string]string
	byName map[string]string
	used   map[string]bool
}

func newKeyIndex() *keyIndex {
	return &keyIndex{
		byID:   make(map[string]string),
		byName: make(map[string]string),
		used:   make(map[string]bool),
	}
}

func (k *keyIndex) add(id, name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = "Untitled product"
	}
	key := base
	for n := 2; k.used[key]; n++ {
		key = fmt.Sprintf("%s (%d)", base, n)
	}
	k.used[key] = true

	if id != "" {
		if _, exists := k.byID[id]; !exists {
			k.byID[id] = key
		}
	}
	norm := normalizeName(base)
	if _, exists := k.byName[norm]; !exists {
		k.byName[norm] = key
	}
	return key
}

func (k *keyIndex) resolve(ref string) (string, bool) {
	if key, ok := k.byID[ref]; ok {
		return key, true
	}
	key, ok := k.byName[normalizeName(ref)]
	return key, ok
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateSlug derives the URL slug used for store uniqueness
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}
