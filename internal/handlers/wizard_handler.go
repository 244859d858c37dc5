package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-builder-service/internal/middleware"
	"storefront-builder-service/internal/services"
	"storefront-builder-service/internal/wizard"
)

// WizardHandler drives catalog import sessions
type WizardHandler struct {
	builder *services.Builder
}

// NewWizardHandler creates a new wizard handler
func NewWizardHandler(builder *services.Builder) *WizardHandler {
	return &WizardHandler{builder: builder}
}

// Providers lists the providers a merchant can import from
func (h *WizardHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.builder.WizardProviders(middleware.GetMerchantID(c))})
}

// Get returns the state of a provider session
func (h *WizardHandler) Get(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	snap, err := h.builder.WizardSnapshot(middleware.GetMerchantID(c), provider)
	h.respond(c, snap, err)
}

// Open starts a provider session
func (h *WizardHandler) Open(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}

	var req services.OpenWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.builder.OpenWizard(c.Request.Context(), middleware.GetMerchantID(c), provider, req)
	h.respond(c, snap, err)
}

// Advance moves a provider session to its next step
func (h *WizardHandler) Advance(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	snap, err := h.builder.AdvanceWizard(c.Request.Context(), middleware.GetMerchantID(c), provider)
	h.respond(c, snap, err)
}

// LoadMore fetches the next product page of a provider session
func (h *WizardHandler) LoadMore(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	snap, err := h.builder.LoadMoreWizard(c.Request.Context(), middleware.GetMerchantID(c), provider)
	h.respond(c, snap, err)
}

// Finalize runs the session through its remaining steps and creates the store
func (h *WizardHandler) Finalize(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	created, err := h.builder.CreateFromWizardSession(c.Request.Context(), middleware.GetMerchantID(c), provider)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Cancel resets a provider session
func (h *WizardHandler) Cancel(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	if err := h.builder.CancelWizard(middleware.GetMerchantID(c), provider); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// Disconnect forgets the merchant's stored credentials for a provider
func (h *WizardHandler) Disconnect(c *gin.Context) {
	provider, ok := parseProvider(c)
	if !ok {
		return
	}
	if err := h.builder.DisconnectProvider(c.Request.Context(), middleware.GetMerchantID(c), provider); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WizardHandler) respond(c *gin.Context, snap wizard.Snapshot, err error) {
	if err != nil {
		respondError(c, err, gin.H{"session": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}
