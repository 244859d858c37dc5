package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifies an external catalog platform
type Provider string

const (
	ProviderShopify     Provider = "SHOPIFY"
	ProviderBigCommerce Provider = "BIGCOMMERCE"
	ProviderEtsy        Provider = "ETSY"
)

// AllProviders lists the supported catalog providers in display order
var AllProviders = []Provider{ProviderShopify, ProviderBigCommerce, ProviderEtsy}

// ParseProvider normalizes a provider name from a request path or payload
func ParseProvider(value string) (Provider, error) {
	switch Provider(strings.ToUpper(strings.TrimSpace(value))) {
	case ProviderShopify:
		return ProviderShopify, nil
	case ProviderBigCommerce:
		return ProviderBigCommerce, nil
	case ProviderEtsy:
		return ProviderEtsy, nil
	}
	return "", fmt.Errorf("unsupported provider: %s", value)
}

// JSONB custom type for PostgreSQL JSONB
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(j))
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]interface{}(j))
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*j = JSONB(m)
	return nil
}

// Clone returns a deep copy so that nested maps are not shared between stores
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	data, err := json.Marshal(map[string]interface{}(j))
	if err != nil {
		return nil
	}
	var out JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
