package generation

import (
	"context"
	"errors"

	"storefront-builder-service/internal/models"
)

var (
	ErrEmptyPrompt  = errors.New("prompt is required")
	ErrJobNotFound  = errors.New("generation job not found")
	ErrNotPaused    = errors.New("generation job is not waiting for review")
	ErrJobBusy      = errors.New("generation job is already running")
	ErrJobCancelled = errors.New("generation job was cancelled")
)

// Stage is a point in the generation pipeline
type Stage string

const (
	StageDesign        Stage = "DESIGN"
	StageDesignReview  Stage = "DESIGN_REVIEW"
	StageProducts      Stage = "PRODUCTS"
	StageCollections   Stage = "COLLECTIONS"
	StageProductReview Stage = "PRODUCT_REVIEW"
	StageFinalizing    Stage = "FINALIZING"
	StageComplete      Stage = "COMPLETE"
	StageCancelled     Stage = "CANCELLED"
)

// Paused reports whether the stage waits for a reviewed artifact
func (s Stage) Paused() bool {
	return s == StageDesignReview || s == StageProductReview
}

// Progress is UI feedback only. Percent never decreases except on cancel.
type Progress struct {
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// Design is a generated print-on-demand artwork. Image is a data URI until
// the store is persisted.
type Design struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

// Mockup is a blank product a design can be placed on
type Mockup struct {
	ProductName string `json:"productName"`
	Image       string `json:"image,omitempty"`
	BasePrice   string `json:"basePrice,omitempty"`
}

// Request starts a prompt-based generation
type Request struct {
	Prompt        string   `json:"prompt"`
	StoreType     string   `json:"storeType,omitempty"`
	MerchantID    string   `json:"-"`
	PrintOnDemand bool     `json:"printOnDemand"`
	DesignCount   int      `json:"designCount,omitempty"`
	ProductCount  int      `json:"productCount,omitempty"`
	Mockups       []Mockup `json:"mockups,omitempty"`
	// ReferenceImage is an optional data URI guiding the design style
	ReferenceImage string       `json:"referenceImage,omitempty"`
	GenerateImages bool         `json:"generateImages"`
	SkipReview     bool         `json:"skipReview"`
	Theme          models.JSONB `json:"theme,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
}

// Artifact is the reviewed output handed back to Resume. A nil field keeps
// the artifact the job paused with.
type Artifact struct {
	Designs []Design      `json:"designs,omitempty"`
	Draft   *models.Store `json:"draft,omitempty"`
}

// Step is what the orchestrator yields: either a paused artifact, the
// finished store, or the cancelled marker.
type Step struct {
	JobID    string        `json:"jobId"`
	Stage    Stage         `json:"stage"`
	Progress Progress      `json:"progress"`
	Designs  []Design      `json:"designs,omitempty"`
	Draft    *models.Store `json:"draft,omitempty"`
	Store    *models.Store `json:"store,omitempty"`
}

// Creator commits a finished draft
type Creator interface {
	Create(ctx context.Context, draft *models.Store) (*models.Store, error)
}
