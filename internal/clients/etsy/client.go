package etsy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

const (
	baseURL = "https://openapi.etsy.com/v3/application"
	maxPage = 100
)

// Credentials identify an Etsy shop and the app key pair used to read it
type Credentials struct {
	ShopID       string `json:"shop_id"`
	Keystring    string `json:"keystring"`
	SharedSecret string `json:"shared_secret"`
}

// ParseCredentials validates the raw credential payload
func ParseCredentials(raw clients.RawCredentials) (Credentials, error) {
	creds := Credentials{
		ShopID:       strings.TrimSpace(raw["shop_id"]),
		Keystring:    strings.TrimSpace(raw["keystring"]),
		SharedSecret: strings.TrimSpace(raw["shared_secret"]),
	}
	if creds.ShopID == "" {
		return Credentials{}, fmt.Errorf("missing shop_id")
	}
	if creds.Keystring == "" {
		return Credentials{}, fmt.Errorf("missing keystring")
	}
	if creds.SharedSecret == "" {
		return Credentials{}, fmt.Errorf("missing shared_secret")
	}
	return creds, nil
}

func (c Credentials) apiKey() string {
	return c.Keystring + ":" + c.SharedSecret
}

var _ clients.CatalogAdapter[Credentials] = (*EtsyClient)(nil)

// EtsyClient implements CatalogAdapter against the Etsy Open API v3
type EtsyClient struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
}

// NewEtsyClient creates a new Etsy API client
func NewEtsyClient(requestsPerSecond float64) *EtsyClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &EtsyClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// WithBaseURL points the client at another API root
func (c *EtsyClient) WithBaseURL(base string) *EtsyClient {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

// GetProvider returns the provider type
func (c *EtsyClient) GetProvider() models.Provider {
	return models.ProviderEtsy
}

// FetchMetadata fetches the shop details
func (c *EtsyClient) FetchMetadata(ctx context.Context, creds Credentials) (*clients.CatalogMetadata, error) {
	body, err := c.doRequest(ctx, creds, "/shops/"+url.PathEscape(creds.ShopID), nil)
	if err != nil {
		var notFound *clients.NotFoundError
		if errors.As(err, &notFound) {
			notFound.Resource = "shop"
		}
		return nil, err
	}

	var shop etsyShop
	if err := json.Unmarshal(body, &shop); err != nil {
		return nil, fmt.Errorf("failed to parse shop response: %w", err)
	}

	name := shop.Title
	if name == "" {
		name = shop.ShopName
	}
	return &clients.CatalogMetadata{
		Name:        name,
		Description: shop.Announcement,
		Currency:    shop.CurrencyCode,
		Domain:      shop.URL,
		LogoURL:     shop.IconURL,
	}, nil
}

// FetchProducts fetches one page of active listings. The cursor is the listing offset.
func (c *EtsyClient) FetchProducts(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.ProductPage, error) {
	limit := clients.ClampPageSize(pageSize, maxPage)
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid cursor: %s", cursor)
		}
		offset = n
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("includes", "Images")

	body, err := c.doRequest(ctx, creds, "/shops/"+url.PathEscape(creds.ShopID)+"/listings/active", params)
	if err != nil {
		return nil, err
	}

	var response struct {
		Count   int           `json:"count"`
		Results []etsyListing `json:"results"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse listings response: %w", err)
	}

	items := make([]clients.CatalogProduct, 0, len(response.Results))
	for _, l := range response.Results {
		items = append(items, convertEtsyListing(l))
	}

	next := offset + len(response.Results)
	page := &clients.ProductPage{Items: items, HasMore: len(response.Results) > 0 && next < response.Count}
	if page.HasMore {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// FetchCollections returns an empty page: Etsy shops are imported without collections
func (c *EtsyClient) FetchCollections(ctx context.Context, creds Credentials, pageSize int, cursor string) (*clients.CollectionPage, error) {
	return clients.EmptyCollectionPage(), nil
}

// doRequest performs an authenticated GET request
func (c *EtsyClient) doRequest(ctx context.Context, creds Credentials, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, clients.NetworkError(models.ProviderEtsy, err)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", creds.apiKey())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clients.NetworkError(models.ProviderEtsy, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clients.NetworkError(models.ProviderEtsy, err)
	}

	if err := clients.ClassifyStatus(models.ProviderEtsy, resp, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// convertEtsyListing converts an Etsy listing to the uniform shape
func convertEtsyListing(l etsyListing) clients.CatalogProduct {
	product := clients.CatalogProduct{
		ID:              strconv.FormatInt(l.ListingID, 10),
		Title:           l.Title,
		DescriptionHTML: l.Description,
		Tags:            l.Tags,
		Price:           clients.MinorUnits(l.Price.Amount, l.Price.Divisor, l.Price.CurrencyCode),
	}
	for i, img := range l.Images {
		src := img.URLFull
		if src == "" {
			src = img.URL570
		}
		if src == "" {
			continue
		}
		if i == 0 {
			product.FeaturedImage = src
		}
		product.Images = append(product.Images, src)
	}
	if l.Quantity != nil {
		qty := *l.Quantity
		product.Inventory = &qty
	}
	return product
}

// Etsy data structures
type etsyShop struct {
	ShopID       int64  `json:"shop_id"`
	ShopName     string `json:"shop_name"`
	Title        string `json:"title"`
	Announcement string `json:"announcement"`
	CurrencyCode string `json:"currency_code"`
	URL          string `json:"url"`
	IconURL      string `json:"icon_url_fullxfull"`
}

type etsyMoney struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

type etsyImage struct {
	URLFull string `json:"url_fullxfull"`
	URL570  string `json:"url_570xN"`
}

type etsyListing struct {
	ListingID   int64       `json:"listing_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Price       etsyMoney   `json:"price"`
	Quantity    *int        `json:"quantity"`
	Tags        []string    `json:"tags"`
	Images      []etsyImage `json:"images"`
}
