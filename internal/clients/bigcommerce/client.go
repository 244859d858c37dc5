package bigcommerce

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

const maxPage = 50

// Credentials identify a BigCommerce store and its Storefront API token
type Credentials struct {
	StoreHash       string `json:"store_hash"`
	StorefrontToken string `json:"storefront_token"`
}

// ParseCredentials validates the raw credential payload
func ParseCredentials(raw clients.RawCredentials) (Credentials, error) {
	hash := strings.TrimSpace(raw["store_hash"])
	hash = strings.TrimPrefix(hash, "stores/")
	if hash == "" {
		return Credentials{}, fmt.Errorf("missing store_hash")
	}
	token := strings.TrimSpace(raw["storefront_token"])
	if token == "" {
		return Credentials{}, fmt.Errorf("missing storefront_token")
	}
	return Credentials{StoreHash: hash, StorefrontToken: token}, nil
}

var _ clients.CatalogAdapter[Credentials] = (*BigCommerceClient)(nil)

// BigCommerceClient implements CatalogAdapter against the BigCommerce GraphQL Storefront API
type BigCommerceClient struct {
	transport *clients.GraphQLTransport
	endpoint  string
}

// NewBigCommerceClient creates a new Storefront API client
func NewBigCommerceClient(requestsPerSecond float64) *BigCommerceClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &BigCommerceClient{
		transport: &clients.GraphQLTransport{
			Provider:    models.ProviderBigCommerce,
			HTTPClient:  &http.Client{Timeout: 30 * time.Second},
			RateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		},
	}
}

// WithEndpoint pins every request to one GraphQL endpoint instead of the store's domain
func (c *BigCommerceClient) WithEndpoint(endpoint string) *BigCommerceClient {
	c.endpoint = endpoint
	return c
}

// GetProvider returns the provider type
func (c *BigCommerceClient) GetProvider() models.Provider {
	return models.ProviderBigCommerce
}

// FetchMetadata fetches the storefront settings
func (c *BigCommerceClient) FetchMetadata(ctx context.Context, creds Credentials) (*clients.CatalogMetadata, error) {
	var data struct {
		Site struct {
			Settings *bcSettings `json:"settings"`
		} `json:"site"`
	}
	if err := c.query(ctx, creds, settingsQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Site.Settings == nil {
		return nil, &clients.NotFoundError{Provider: models.ProviderBigCommerce, Resource: "store", Message: creds.StoreHash}
	}
	settings := data.Site.Settings
	meta := &clients.CatalogMetadata{
		Name:     settings.StoreName,
		Currency: settings.Currency.DefaultCurrency,
		Domain:   settings.URL.VanityURL,
	}
	if settings.LogoV2.Image != nil {
		meta.LogoURL = settings.LogoV2.Image.URL
	}
	return meta, nil
}

// FetchProducts fetches one page of products
func (c *BigCommerceClient) FetchProducts(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.ProductPage, error) {
	vars := map[string]interface{}{"first": clients.ClampPageSize(pageSize, maxPage)}
	if cursor != "" {
		vars["after"] = cursor
	}

	var data struct {
		Site struct {
			Products struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Edges []struct {
					Node bcProduct `json:"node"`
				} `json:"edges"`
			} `json:"products"`
		} `json:"site"`
	}
	if err := c.query(ctx, creds, productsQuery, vars, &data); err != nil {
		return nil, err
	}

	products := data.Site.Products
	items := make([]clients.CatalogProduct, 0, len(products.Edges))
	for _, edge := range products.Edges {
		items = append(items, convertBigCommerceProduct(edge.Node))
	}

	page := &clients.ProductPage{Items: items, HasMore: products.PageInfo.HasNextPage}
	if page.HasMore {
		page.NextCursor = products.PageInfo.EndCursor
	}
	return page, nil
}

// FetchCollections returns an empty page: categories are not imported as collections
func (c *BigCommerceClient) FetchCollections(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.CollectionPage, error) {
	return clients.EmptyCollectionPage(), nil
}

func (c *BigCommerceClient) query(ctx context.Context, creds Credentials, query string, variables map[string]interface{}, out interface{}) error {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://store-%s.mybigcommerce.com/graphql", creds.StoreHash)
	}
	headers := map[string]string{"Authorization": "Bearer " + creds.StorefrontToken}
	return c.transport.Do(ctx, endpoint, headers, clients.GraphQLRequest{Query: query, Variables: variables}, out)
}

// convertBigCommerceProduct converts a Storefront product node to the uniform shape
func convertBigCommerceProduct(p bcProduct) clients.CatalogProduct {
	product := clients.CatalogProduct{
		ID:              strconv.FormatInt(p.EntityID, 10),
		Title:           p.Name,
		DescriptionHTML: p.Description,
	}
	if p.Brand != nil {
		product.Vendor = p.Brand.Name
	}
	if p.Prices != nil {
		product.Price = clients.DecimalAmount(
			strconv.FormatFloat(p.Prices.Price.Value, 'f', -1, 64),
			p.Prices.Price.CurrencyCode,
		)
	}
	if p.DefaultImage != nil {
		product.FeaturedImage = p.DefaultImage.URL
	}
	for _, edge := range p.Images.Edges {
		product.Images = append(product.Images, edge.Node.URL)
	}
	for _, edge := range p.ProductOptions.Edges {
		opt := clients.CatalogOption{Name: edge.Node.DisplayName}
		for _, v := range edge.Node.Values.Edges {
			opt.Values = append(opt.Values, v.Node.Label)
		}
		if len(opt.Values) > 0 {
			product.Options = append(product.Options, opt)
		}
	}
	if p.Inventory.Aggregated != nil {
		qty := p.Inventory.Aggregated.AvailableToSell
		product.Inventory = &qty
	}
	return product
}

const settingsQuery = `query StoreSettings {
  site {
    settings {
      storeName
      url { vanityUrl }
      currency { defaultCurrency }
      logoV2 { ... on StoreImageLogo { image { url(width: 600) } } }
    }
  }
}`

const productsQuery = `query Products($first: Int!, $after: String) {
  site {
    products(first: $first, after: $after) {
      pageInfo { hasNextPage endCursor }
      edges {
        node {
          entityId
          name
          description
          brand { name }
          prices { price { value currencyCode } }
          defaultImage { url(width: 1280) }
          images { edges { node { url(width: 1280) } } }
          productOptions {
            edges {
              node {
                displayName
                ... on MultipleChoiceOption { values { edges { node { label } } } }
              }
            }
          }
          inventory { aggregated { availableToSell } }
        }
      }
    }
  }
}`

// BigCommerce data structures
type bcImage struct {
	URL string `json:"url"`
}

type bcSettings struct {
	StoreName string `json:"storeName"`
	URL       struct {
		VanityURL string `json:"vanityUrl"`
	} `json:"url"`
	Currency struct {
		DefaultCurrency string `json:"defaultCurrency"`
	} `json:"currency"`
	LogoV2 struct {
		Image *bcImage `json:"image"`
	} `json:"logoV2"`
}

type bcProduct struct {
	EntityID    int64  `json:"entityId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Brand       *struct {
		Name string `json:"name"`
	} `json:"brand"`
	Prices *struct {
		Price struct {
			Value        float64 `json:"value"`
			CurrencyCode string  `json:"currencyCode"`
		} `json:"price"`
	} `json:"prices"`
	DefaultImage *bcImage `json:"defaultImage"`
	Images       struct {
		Edges []struct {
			Node bcImage `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	ProductOptions struct {
		Edges []struct {
			Node struct {
				DisplayName string `json:"displayName"`
				Values      struct {
					Edges []struct {
						Node struct {
							Label string `json:"label"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"values"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"productOptions"`
	Inventory struct {
		Aggregated *struct {
			AvailableToSell int `json:"availableToSell"`
		} `json:"aggregated"`
	} `json:"inventory"`
}
