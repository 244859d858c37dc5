package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

const (
	apiVersion = "2024-01"
	maxPage    = 250
)

// Credentials identify a Shopify shop and the Admin API token used to read it
type Credentials struct {
	Store       string `json:"store"`        // Store name (without .myshopify.com)
	AccessToken string `json:"access_token"` // Admin API access token
}

// ParseCredentials validates the raw credential payload
func ParseCredentials(raw clients.RawCredentials) (Credentials, error) {
	store := strings.TrimSpace(raw["store"])
	if store == "" {
		store = strings.TrimSpace(raw["shop"])
	}
	store = strings.TrimPrefix(store, "https://")
	store = strings.TrimPrefix(store, "http://")
	store = strings.TrimSuffix(strings.TrimSuffix(store, "/"), ".myshopify.com")
	if store == "" {
		return Credentials{}, fmt.Errorf("missing store name")
	}
	token := strings.TrimSpace(raw["access_token"])
	if token == "" {
		return Credentials{}, fmt.Errorf("missing access_token")
	}
	return Credentials{Store: store, AccessToken: token}, nil
}

var _ clients.CatalogAdapter[Credentials] = (*ShopifyClient)(nil)

// ShopifyClient implements CatalogAdapter against the Shopify GraphQL Admin API
type ShopifyClient struct {
	transport *clients.GraphQLTransport
	endpoint  string
}

// NewShopifyClient creates a new Shopify Admin API client
func NewShopifyClient(requestsPerSecond float64) *ShopifyClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &ShopifyClient{
		transport: &clients.GraphQLTransport{
			Provider:    models.ProviderShopify,
			HTTPClient:  &http.Client{Timeout: 30 * time.Second},
			RateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		},
	}
}

// WithEndpoint pins every request to one GraphQL endpoint instead of the shop's domain
func (c *ShopifyClient) WithEndpoint(endpoint string) *ShopifyClient {
	c.endpoint = endpoint
	return c
}

// GetProvider returns the provider type
func (c *ShopifyClient) GetProvider() models.Provider {
	return models.ProviderShopify
}

// FetchMetadata fetches the shop details
func (c *ShopifyClient) FetchMetadata(ctx context.Context, creds Credentials) (*clients.CatalogMetadata, error) {
	var data struct {
		Shop *shopifyShop `json:"shop"`
	}
	if err := c.query(ctx, creds, shopQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Shop == nil {
		return nil, &clients.NotFoundError{Provider: models.ProviderShopify, Resource: "shop", Message: creds.Store}
	}
	return &clients.CatalogMetadata{
		Name:        data.Shop.Name,
		Description: data.Shop.Description,
		Currency:    data.Shop.CurrencyCode,
		Domain:      data.Shop.PrimaryDomain.Host,
	}, nil
}

// FetchProducts fetches one page of products
func (c *ShopifyClient) FetchProducts(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.ProductPage, error) {
	var data struct {
		Products struct {
			PageInfo pageInfo         `json:"pageInfo"`
			Nodes    []shopifyProduct `json:"nodes"`
		} `json:"products"`
	}
	if err := c.query(ctx, creds, productsQuery, pageVariables(pageSize, cursor), &data); err != nil {
		return nil, err
	}

	items := make([]clients.CatalogProduct, 0, len(data.Products.Nodes))
	for _, p := range data.Products.Nodes {
		items = append(items, convertShopifyProduct(p))
	}

	page := &clients.ProductPage{Items: items, HasMore: data.Products.PageInfo.HasNextPage}
	if page.HasMore {
		page.NextCursor = data.Products.PageInfo.EndCursor
	}
	return page, nil
}

// FetchCollections fetches one page of collections with their member product IDs
func (c *ShopifyClient) FetchCollections(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.CollectionPage, error) {
	var data struct {
		Collections struct {
			PageInfo pageInfo            `json:"pageInfo"`
			Nodes    []shopifyCollection `json:"nodes"`
		} `json:"collections"`
	}
	if err := c.query(ctx, creds, collectionsQuery, pageVariables(pageSize, cursor), &data); err != nil {
		return nil, err
	}

	items := make([]clients.CatalogCollection, 0, len(data.Collections.Nodes))
	for _, col := range data.Collections.Nodes {
		refs := make([]string, 0, len(col.Products.Nodes))
		for _, p := range col.Products.Nodes {
			refs = append(refs, p.ID)
		}
		item := clients.CatalogCollection{
			ID:              col.ID,
			Title:           col.Title,
			DescriptionHTML: col.DescriptionHTML,
			ProductRefs:     refs,
		}
		if col.Image != nil {
			item.ImageURL = col.Image.URL
		}
		items = append(items, item)
	}

	page := &clients.CollectionPage{Items: items, HasMore: data.Collections.PageInfo.HasNextPage}
	if page.HasMore {
		page.NextCursor = data.Collections.PageInfo.EndCursor
	}
	return page, nil
}

func (c *ShopifyClient) query(ctx context.Context, creds Credentials, query string, variables map[string]interface{}, out interface{}) error {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.myshopify.com/admin/api/%s/graphql.json", creds.Store, apiVersion)
	}
	headers := map[string]string{"X-Shopify-Access-Token": creds.AccessToken}
	return c.transport.Do(ctx, endpoint, headers, clients.GraphQLRequest{Query: query, Variables: variables}, out)
}

func pageVariables(pageSize int, cursor string) map[string]interface{} {
	vars := map[string]interface{}{"first": clients.ClampPageSize(pageSize, maxPage)}
	if cursor != "" {
		vars["after"] = cursor
	}
	return vars
}

// convertShopifyProduct converts a GraphQL product node to the uniform shape
func convertShopifyProduct(p shopifyProduct) clients.CatalogProduct {
	product := clients.CatalogProduct{
		ID:              p.ID,
		Title:           p.Title,
		DescriptionHTML: p.DescriptionHTML,
		Vendor:          p.Vendor,
		ProductType:     p.ProductType,
		Tags:            p.Tags,
		Price: clients.DecimalAmount(
			p.PriceRange.MinVariantPrice.Amount,
			p.PriceRange.MinVariantPrice.CurrencyCode,
		),
	}
	if p.FeaturedImage != nil {
		product.FeaturedImage = p.FeaturedImage.URL
	}
	for _, img := range p.Images.Nodes {
		product.Images = append(product.Images, img.URL)
	}
	for _, v := range p.Variants.Nodes {
		if v.Image != nil && v.Image.URL != "" {
			product.VariantImages = append(product.VariantImages, v.Image.URL)
		}
	}
	for _, opt := range p.Options {
		// Shopify reports a synthetic "Title" option for single-variant products
		if opt.Name == "Title" && len(opt.Values) == 1 && opt.Values[0] == "Default Title" {
			continue
		}
		product.Options = append(product.Options, clients.CatalogOption{Name: opt.Name, Values: opt.Values})
	}
	if p.TracksInventory {
		qty := p.TotalInventory
		product.Inventory = &qty
	}
	return product
}

const shopQuery = `query ShopMetadata {
  shop {
    name
    description
    currencyCode
    primaryDomain { host }
  }
}`

const productsQuery = `query Products($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      title
      descriptionHtml
      vendor
      productType
      tags
      totalInventory
      tracksInventory
      featuredImage { url }
      images(first: 10) { nodes { url } }
      options { name values }
      priceRangeV2 { minVariantPrice { amount currencyCode } }
      variants(first: 20) { nodes { image { url } } }
    }
  }
}`

const collectionsQuery = `query Collections($first: Int!, $after: String) {
  collections(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      title
      descriptionHtml
      image { url }
      products(first: 250) { nodes { id } }
    }
  }
}`

// Shopify data structures
type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type shopifyShop struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	CurrencyCode  string `json:"currencyCode"`
	PrimaryDomain struct {
		Host string `json:"host"`
	} `json:"primaryDomain"`
}

type shopifyImage struct {
	URL string `json:"url"`
}

type shopifyProduct struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	DescriptionHTML string        `json:"descriptionHtml"`
	Vendor          string        `json:"vendor"`
	ProductType     string        `json:"productType"`
	Tags            []string      `json:"tags"`
	TotalInventory  int           `json:"totalInventory"`
	TracksInventory bool          `json:"tracksInventory"`
	FeaturedImage   *shopifyImage `json:"featuredImage"`
	Images          struct {
		Nodes []shopifyImage `json:"nodes"`
	} `json:"images"`
	Options []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"options"`
	PriceRange struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRangeV2"`
	Variants struct {
		Nodes []struct {
			Image *shopifyImage `json:"image"`
		} `json:"nodes"`
	} `json:"variants"`
}

type shopifyCollection struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	DescriptionHTML string        `json:"descriptionHtml"`
	Image           *shopifyImage `json:"image"`
	Products        struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	} `json:"products"`
}
