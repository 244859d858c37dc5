package clients

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront-builder-service/internal/models"
)

// AuthError is returned when the provider rejects the credentials
type AuthError struct {
	Provider models.Provider
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected the credentials: %s", providerName(e.Provider), e.Message)
}

// NotFoundError is returned when the shop or listing does not exist
type NotFoundError struct {
	Provider models.Provider
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found: %s", providerName(e.Provider), e.Resource, e.Message)
}

// RateLimitOrNetworkError is a transient failure that a manual retry may fix
type RateLimitOrNetworkError struct {
	Provider   models.Provider
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitOrNetworkError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("%s rate limit reached, try again shortly", providerName(e.Provider))
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s is unavailable (status %d): %v", providerName(e.Provider), e.StatusCode, e.Err)
	}
	return fmt.Sprintf("could not reach %s: %v", providerName(e.Provider), e.Err)
}

func (e *RateLimitOrNetworkError) Unwrap() error {
	return e.Err
}

// UnsupportedProviderError is returned when a provider has no adapter
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider: " + e.Provider
}

// ClassifyStatus converts a non-2xx provider response into the error taxonomy.
// It returns nil for successful status codes.
func ClassifyStatus(provider models.Provider, resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}
	message := truncate(strings.TrimSpace(string(body)), 300)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: provider, Message: message}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Provider: provider, Resource: "resource", Message: message}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &RateLimitOrNetworkError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp),
			Err:        errors.New(message),
		}
	}
	return fmt.Errorf("%s API error (status %d): %s", providerName(provider), resp.StatusCode, message)
}

// NetworkError wraps a transport failure
func NetworkError(provider models.Provider, err error) error {
	return &RateLimitOrNetworkError{Provider: provider, Err: err}
}

// IsTransient reports whether a manual retry of the same call could succeed
func IsTransient(err error) bool {
	var transient *RateLimitOrNetworkError
	return errors.As(err, &transient)
}

// UserMessage returns the short message shown next to a failed step
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var authErr *AuthError
	var notFound *NotFoundError
	var transient *RateLimitOrNetworkError
	switch {
	case errors.As(err, &authErr):
		return fmt.Sprintf("%s did not accept these credentials. Check them and try again.", providerName(authErr.Provider))
	case errors.As(err, &notFound):
		return fmt.Sprintf("The %s store could not be found.", providerName(notFound.Provider))
	case errors.As(err, &transient):
		return transient.Error()
	}
	return err.Error()
}

func providerName(p models.Provider) string {
	switch p {
	case models.ProviderShopify:
		return "Shopify"
	case models.ProviderBigCommerce:
		return "BigCommerce"
	case models.ProviderEtsy:
		return "Etsy"
	}
	return string(p)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
