package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/generation"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/services"
	"storefront-builder-service/internal/store"
	"storefront-builder-service/internal/wizard"
)

// statusFor maps the error taxonomy to an HTTP status
func statusFor(err error) int {
	var (
		authErr     *clients.AuthError
		notFound    *clients.NotFoundError
		transient   *clients.RateLimitOrNetworkError
		unsupported *clients.UnsupportedProviderError
		credErr     *wizard.CredentialsError
		conflict    *store.NameConflictError
		validation  *store.ValidationError
		busy        *services.BusyError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &notFound),
		errors.Is(err, store.ErrStoreNotFound),
		errors.Is(err, store.ErrProductNotFound),
		errors.Is(err, generation.ErrJobNotFound):
		return http.StatusNotFound
	case errors.As(err, &transient):
		return http.StatusBadGateway
	case errors.As(err, &conflict),
		errors.Is(err, wizard.ErrBusy),
		errors.Is(err, wizard.ErrCancelled),
		errors.Is(err, wizard.ErrNotOpen),
		errors.Is(err, generation.ErrJobBusy),
		errors.Is(err, generation.ErrNotPaused),
		errors.Is(err, generation.ErrJobCancelled):
		return http.StatusConflict
	case errors.As(err, &busy):
		return http.StatusTooManyRequests
	case errors.As(err, &credErr),
		errors.As(err, &validation),
		errors.As(err, &unsupported),
		errors.Is(err, generation.ErrEmptyPrompt),
		errors.Is(err, wizard.ErrNoMoreItems):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes the error with a short human message. Unclassified
// errors are logged by the request logger and reported generically.
func respondError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"error": clients.UserMessage(err)}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func parseProvider(c *gin.Context) (models.Provider, bool) {
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		respondError(c, &clients.UnsupportedProviderError{Provider: c.Param("provider")}, nil)
		return "", false
	}
	return provider, true
}
