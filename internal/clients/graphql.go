package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"storefront-builder-service/internal/models"
)

// GraphQLRequest is the POST body understood by both GraphQL providers
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// GraphQLTransport posts GraphQL documents to a single endpoint with provider auth headers
type GraphQLTransport struct {
	Provider    models.Provider
	HTTPClient  *http.Client
	RateLimiter *rate.Limiter
}

// Do executes the request and decodes the data member into out
func (t *GraphQLTransport) Do(ctx context.Context, endpoint string, headers map[string]string, req GraphQLRequest, out interface{}) error {
	if t.RateLimiter != nil {
		if err := t.RateLimiter.Wait(ctx); err != nil {
			return NetworkError(t.Provider, err)
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.HTTPClient.Do(httpReq)
	if err != nil {
		return NetworkError(t.Provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NetworkError(t.Provider, err)
	}

	if err := ClassifyStatus(t.Provider, resp, body); err != nil {
		return err
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return t.classifyGraphQLErrors(envelope.Errors)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

func (t *GraphQLTransport) classifyGraphQLErrors(errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	message := strings.Join(messages, "; ")

	first := errs[0]
	code := strings.ToUpper(first.Extensions.Code)
	lower := strings.ToLower(first.Message)
	switch {
	case code == "THROTTLED" || strings.Contains(lower, "throttled"):
		return &RateLimitOrNetworkError{Provider: t.Provider, StatusCode: http.StatusTooManyRequests, Err: errors.New(message)}
	case code == "ACCESS_DENIED" || code == "UNAUTHENTICATED" || strings.Contains(lower, "access denied") || strings.Contains(lower, "unauthorized"):
		return &AuthError{Provider: t.Provider, Message: message}
	case code == "NOT_FOUND" || strings.Contains(lower, "not found"):
		return &NotFoundError{Provider: t.Provider, Resource: "resource", Message: message}
	}
	return fmt.Errorf("%s graphql error: %s", providerName(t.Provider), message)
}
