package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-builder-service/internal/generation"
	"storefront-builder-service/internal/middleware"
	"storefront-builder-service/internal/services"
)

// GenerationHandler drives prompt-based store generation
type GenerationHandler struct {
	builder *services.Builder
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(builder *services.Builder) *GenerationHandler {
	return &GenerationHandler{builder: builder}
}

// Start begins a generation job. The response is the first review pause or
// the completed store.
func (h *GenerationHandler) Start(c *gin.Context) {
	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := h.builder.CreateFromPrompt(c.Request.Context(), middleware.GetMerchantID(c), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, step)
}

// Get returns the current step of a job
func (h *GenerationHandler) Get(c *gin.Context) {
	step, err := h.builder.GetGeneration(middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, step)
}

// Progress returns the progress of a job
func (h *GenerationHandler) Progress(c *gin.Context) {
	progress, err := h.builder.GenerationProgress(middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Resume continues a paused job. An empty body resumes with the artifact
// unchanged.
func (h *GenerationHandler) Resume(c *gin.Context) {
	var artifact generation.Artifact
	if err := c.ShouldBindJSON(&artifact); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := h.builder.ResumeGeneration(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"), &artifact)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, step)
}

// Cancel abandons a job
func (h *GenerationHandler) Cancel(c *gin.Context) {
	if err := h.builder.CancelGeneration(middleware.GetMerchantID(c), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
