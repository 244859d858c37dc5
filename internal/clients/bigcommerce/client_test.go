package bigcommerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-builder-service/internal/clients"
)

var testCreds = Credentials{StoreHash: "abc123", StorefrontToken: "sf-token"}

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sf-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"site":{"products":{"pageInfo":{"hasNextPage":false,"endCursor":"YXJy"},"edges":[
			{"node":{"entityId":77,"name":"Lamp","description":"<div>Warm light</div>",
			 "brand":{"name":"Lumen"},
			 "prices":{"price":{"value":49.5,"currencyCode":"EUR"}},
			 "defaultImage":null,
			 "images":{"edges":[{"node":{"url":"https://cdn11.bigcommerce.com/lamp.jpg"}}]},
			 "productOptions":{"edges":[{"node":{"displayName":"Color","values":{"edges":[{"node":{"label":"Red"}},{"node":{"label":"Blue"}}]}}}]},
			 "inventory":{"aggregated":{"availableToSell":9}}}}]}}}}`))
	}))
	defer srv.Close()

	page, err := NewBigCommerceClient(100).WithEndpoint(srv.URL).FetchProducts(context.Background(), testCreds, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)

	lamp := page.Items[0]
	assert.Equal(t, "77", lamp.ID)
	assert.Equal(t, "49.5", lamp.Price.Amount)
	assert.Equal(t, "EUR", lamp.Price.Currency)
	assert.Empty(t, lamp.FeaturedImage)
	assert.Equal(t, []string{"https://cdn11.bigcommerce.com/lamp.jpg"}, lamp.Images)
	assert.Equal(t, []clients.CatalogOption{{Name: "Color", Values: []string{"Red", "Blue"}}}, lamp.Options)
	require.NotNil(t, lamp.Inventory)
	assert.Equal(t, 9, *lamp.Inventory)
}

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"site":{"settings":{"storeName":"Lumen House","url":{"vanityUrl":"https://lumen.example"},"currency":{"defaultCurrency":"EUR"},"logoV2":{}}}}}`))
	}))
	defer srv.Close()

	meta, err := NewBigCommerceClient(100).WithEndpoint(srv.URL).FetchMetadata(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, "Lumen House", meta.Name)
	assert.Equal(t, "EUR", meta.Currency)
	assert.Empty(t, meta.LogoURL)
}

func TestFetchMetadata_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewBigCommerceClient(100).WithEndpoint(srv.URL).FetchMetadata(context.Background(), testCreds)
	assert.True(t, clients.IsTransient(err))
}

func TestFetchCollections_Empty(t *testing.T) {
	page, err := NewBigCommerceClient(100).FetchCollections(context.Background(), testCreds, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
