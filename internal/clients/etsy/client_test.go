package etsy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-builder-service/internal/clients"
)

var testCreds = Credentials{ShopID: "42", Keystring: "key", SharedSecret: "secret"}

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shops/42", r.URL.Path)
		assert.Equal(t, "key:secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"shop_id":42,"shop_name":"acmecrafts","title":"Acme","currency_code":"USD","url":"https://www.etsy.com/shop/acmecrafts"}`))
	}))
	defer srv.Close()

	meta, err := NewEtsyClient(100).WithBaseURL(srv.URL).FetchMetadata(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, "Acme", meta.Name)
	assert.Equal(t, "USD", meta.Currency)
}

func TestFetchMetadata_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Shop not found"}`))
	}))
	defer srv.Close()

	_, err := NewEtsyClient(100).WithBaseURL(srv.URL).FetchMetadata(context.Background(), testCreds)
	var notFound *clients.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "shop", notFound.Resource)
}

func TestFetchProducts_OffsetPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shops/42/listings/active", r.URL.Path)
		assert.Equal(t, "Images", r.URL.Query().Get("includes"))
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"count":2,"results":[{"listing_id":1,"title":"Mug","description":"Big mug",
				"price":{"amount":500,"divisor":100,"currency_code":"USD"},"quantity":3,
				"images":[{"url_fullxfull":"https://i.etsystatic.com/mug.jpg"}]}]}`))
		case "1":
			_, _ = w.Write([]byte(`{"count":2,"results":[{"listing_id":2,"title":"Shirt","description":"Soft",
				"price":{"amount":2000,"divisor":100,"currency_code":"USD"},"images":[]}]}`))
		default:
			t.Fatalf("unexpected offset %s", r.URL.Query().Get("offset"))
		}
	}))
	defer srv.Close()

	client := NewEtsyClient(100).WithBaseURL(srv.URL)

	first, err := client.FetchProducts(context.Background(), testCreds, 1, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.True(t, first.HasMore)
	assert.Equal(t, "1", first.NextCursor)
	mug := first.Items[0]
	require.NotNil(t, mug.Price.Minor)
	assert.EqualValues(t, 500, *mug.Price.Minor)
	assert.EqualValues(t, 100, mug.Price.Divisor)
	assert.Equal(t, "https://i.etsystatic.com/mug.jpg", mug.FeaturedImage)

	second, err := client.FetchProducts(context.Background(), testCreds, 1, first.NextCursor)
	require.NoError(t, err)
	assert.False(t, second.HasMore)
	assert.Nil(t, second.Items[0].Inventory)
}

func TestFetchProducts_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewEtsyClient(100).WithBaseURL(srv.URL).FetchProducts(context.Background(), testCreds, 10, "")
	var transient *clients.RateLimitOrNetworkError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusTooManyRequests, transient.StatusCode)
}

func TestFetchCollections_Empty(t *testing.T) {
	page, err := NewEtsyClient(100).FetchCollections(context.Background(), testCreds, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestParseCredentials(t *testing.T) {
	_, err := ParseCredentials(clients.RawCredentials{"shop_id": "1", "keystring": "k"})
	assert.EqualError(t, err, "missing shared_secret")
}
