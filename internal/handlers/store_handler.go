package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-builder-service/internal/middleware"
	"storefront-builder-service/internal/models"
	"storefront-builder-service/internal/services"
	"storefront-builder-service/internal/store"
)

// StoreHandler handles store and product HTTP requests
type StoreHandler struct {
	builder *services.Builder
}

// NewStoreHandler creates a new store handler
func NewStoreHandler(builder *services.Builder) *StoreHandler {
	return &StoreHandler{builder: builder}
}

// List returns the merchant's stores
func (h *StoreHandler) List(c *gin.Context) {
	views, err := h.builder.ListStores(c.Request.Context(), middleware.GetMerchantID(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": views,
		"total": len(views),
	})
}

// Get returns one hydrated store
func (h *StoreHandler) Get(c *gin.Context) {
	view, err := h.builder.GetStore(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Create persists a store draft
func (h *StoreHandler) Create(c *gin.Context) {
	var draft models.Store
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.builder.CreateStore(c.Request.Context(), middleware.GetMerchantID(c), &draft)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update changes store fields
func (h *StoreHandler) Update(c *gin.Context) {
	var update store.StoreUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.builder.UpdateStore(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"), update)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a store
func (h *StoreHandler) Delete(c *gin.Context) {
	if err := h.builder.DeleteStore(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateProduct changes one product
func (h *StoreHandler) UpdateProduct(c *gin.Context) {
	var update store.ProductUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.builder.UpdateProduct(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"), c.Param("productId"), update)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct removes one product
func (h *StoreHandler) DeleteProduct(c *gin.Context) {
	if err := h.builder.DeleteProduct(c.Request.Context(), middleware.GetMerchantID(c), c.Param("id"), c.Param("productId")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// Refresh reloads the merchant's stores from the cloud
func (h *StoreHandler) Refresh(c *gin.Context) {
	loaded, err := h.builder.RefreshFromCloud(c.Request.Context(), middleware.GetMerchantID(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": loaded})
}
