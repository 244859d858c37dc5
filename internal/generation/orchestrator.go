// Package generation drives the prompt-based store path as a resumable
// computation. Each call runs until the next review pause, then returns the
// artifact; no goroutine is held while a job waits for review.
package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/ai"
	"storefront-builder-service/internal/mapper"
	"storefront-builder-service/internal/models"
)

const (
	defaultDesignCount  = 3
	defaultProductCount = 6
	printOnDemandType   = "print-on-demand"
	finishedJobTTL      = time.Hour
)

var defaultMockups = []Mockup{{ProductName: "T-Shirt", BasePrice: "25.00"}}

// Inliner turns an image reference (data URI or remote URL) into a data URI
type Inliner interface {
	ToInline(ctx context.Context, ref string) (string, error)
}

// Config tunes the orchestrator
type Config struct {
	PlaceholderImage string
	MaxProducts      int
	// Assets loads remote design and mockup images before visualization.
	// Without it only data URIs can be visualized.
	Assets Inliner
}

type job struct {
	id         string
	req        Request
	stage      Stage
	progress   Progress
	designs    []Design
	catalog    mapper.GeneratedCatalog
	draft      *models.Store
	running    bool
	finishedAt time.Time
}

// Orchestrator runs generation jobs
type Orchestrator struct {
	ai      ai.Service
	creator Creator
	config  Config
	logger  *logrus.Entry

	mu   sync.Mutex
	jobs map[string]*job
}

// NewOrchestrator creates a new generation orchestrator
func NewOrchestrator(aiService ai.Service, creator Creator, cfg Config, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		ai:      aiService,
		creator: creator,
		config:  cfg,
		logger:  logger.WithField("component", "generation-orchestrator"),
		jobs:    make(map[string]*job),
	}
}

// Start creates a job and runs it to the first pause, or to completion when
// SkipReview is set
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Step, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.DesignCount <= 0 {
		req.DesignCount = defaultDesignCount
	}
	if req.ProductCount <= 0 {
		req.ProductCount = defaultProductCount
	}
	if req.PrintOnDemand && len(req.Mockups) == 0 {
		req.Mockups = defaultMockups
	}

	j := &job{id: uuid.New().String(), req: req, stage: StageProducts}
	if req.PrintOnDemand {
		j.stage = StageDesign
	}

	o.mu.Lock()
	o.pruneLocked()
	o.jobs[j.id] = j
	j.running = true
	o.setProgressLocked(j, 5, "Starting generation")
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"job_id":          j.id,
		"print_on_demand": req.PrintOnDemand,
		"skip_review":     req.SkipReview,
	}).Info("Generation started")

	return o.run(ctx, j)
}

// Resume continues a paused job from its exact stage with the reviewed
// artifact. Only the merchant that started the job may resume it.
func (o *Orchestrator) Resume(ctx context.Context, merchantID, jobID string, artifact *Artifact) (*Step, error) {
	o.mu.Lock()
	j, err := o.jobLocked(merchantID, jobID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	switch {
	case j.stage == StageCancelled:
		o.mu.Unlock()
		return nil, ErrJobCancelled
	case j.running:
		o.mu.Unlock()
		return nil, ErrJobBusy
	case !j.stage.Paused():
		o.mu.Unlock()
		return nil, ErrNotPaused
	}

	switch j.stage {
	case StageDesignReview:
		if artifact != nil && artifact.Designs != nil {
			j.designs = cloneDesigns(artifact.Designs)
		}
		j.stage = StageProducts
	case StageProductReview:
		if artifact != nil && artifact.Draft != nil {
			j.draft = artifact.Draft.Clone()
			j.draft.MerchantID = j.req.MerchantID
		}
		j.stage = StageFinalizing
	}
	j.running = true
	o.mu.Unlock()

	return o.run(ctx, j)
}

// Cancel discards the job's artifact and resets its progress. Work already
// in flight finishes but its result is dropped.
func (o *Orchestrator) Cancel(merchantID, jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, err := o.jobLocked(merchantID, jobID)
	if err != nil {
		return err
	}
	if j.stage == StageComplete {
		return fmt.Errorf("generation job already completed")
	}
	j.stage = StageCancelled
	j.designs = nil
	j.draft = nil
	j.catalog = mapper.GeneratedCatalog{}
	j.progress = Progress{Percent: 0, Status: "Cancelled"}
	j.finishedAt = time.Now()

	o.logger.WithField("job_id", jobID).Info("Generation cancelled")
	return nil
}

// Progress returns the job's current progress
func (o *Orchestrator) Progress(merchantID, jobID string) (Progress, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, err := o.jobLocked(merchantID, jobID)
	if err != nil {
		return Progress{}, err
	}
	return j.progress, nil
}

// Get returns the job's current step without advancing it
func (o *Orchestrator) Get(merchantID, jobID string) (*Step, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, err := o.jobLocked(merchantID, jobID)
	if err != nil {
		return nil, err
	}
	return o.stepLocked(j, nil), nil
}

// jobLocked looks a job up for its owner. Jobs of other merchants are
// reported as missing.
func (o *Orchestrator) jobLocked(merchantID, jobID string) (*job, error) {
	j, ok := o.jobs[jobID]
	if !ok || j.req.MerchantID != merchantID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// run executes stages until the job pauses, completes or is cancelled
func (o *Orchestrator) run(ctx context.Context, j *job) (*Step, error) {
	defer func() {
		o.mu.Lock()
		j.running = false
		o.mu.Unlock()
	}()

	for {
		o.mu.Lock()
		stage := j.stage
		req := j.req
		o.mu.Unlock()

		switch stage {
		case StageDesign:
			designs := o.synthesizeDesigns(ctx, j, req)
			if !o.commit(j, func() {
				j.designs = designs
				if req.SkipReview {
					j.stage = StageProducts
				} else {
					j.stage = StageDesignReview
					o.setProgressLocked(j, 35, fmt.Sprintf("%d designs ready for review", len(designs)))
				}
			}) {
				return o.cancelledStep(j), nil
			}

		case StageProducts:
			o.mu.Lock()
			designs := cloneDesigns(j.designs)
			o.setProgressLocked(j, 40, "Generating products")
			o.mu.Unlock()

			catalog, err := o.synthesizeProducts(ctx, j, req, designs)
			if err != nil {
				o.fail(j, err)
				return nil, err
			}
			if !o.commit(j, func() {
				j.catalog = catalog
				j.stage = StageCollections
			}) {
				return o.cancelledStep(j), nil
			}

		case StageCollections:
			o.mu.Lock()
			o.setProgressLocked(j, 75, "Organizing collections")
			catalog := j.catalog
			o.mu.Unlock()

			draft := o.buildDraft(req, o.synthesizeCollections(req, catalog))
			if !o.commit(j, func() {
				j.draft = draft
				if req.SkipReview {
					j.stage = StageFinalizing
				} else {
					j.stage = StageProductReview
					o.setProgressLocked(j, 90, fmt.Sprintf("%d products ready for review", len(draft.Products)))
				}
			}) {
				return o.cancelledStep(j), nil
			}

		case StageFinalizing:
			o.mu.Lock()
			o.setProgressLocked(j, 95, "Creating store")
			draft := j.draft.Clone()
			o.mu.Unlock()

			store, err := o.creator.Create(ctx, draft)
			if err != nil {
				o.mu.Lock()
				if j.stage != StageCancelled {
					j.stage = StageProductReview
					o.setProgressLocked(j, 0, "Store creation failed")
				}
				o.mu.Unlock()
				o.logger.WithError(err).WithField("job_id", j.id).Warn("Finalize failed, job returned to product review")
				return nil, err
			}

			o.mu.Lock()
			j.stage = StageComplete
			j.designs = nil
			j.draft = nil
			j.catalog = mapper.GeneratedCatalog{}
			j.finishedAt = time.Now()
			o.setProgressLocked(j, 100, "Store created")
			step := o.stepLocked(j, store)
			o.mu.Unlock()

			o.logger.WithFields(logrus.Fields{"job_id": j.id, "store_id": store.ID}).Info("Generation completed")
			return step, nil

		default:
			o.mu.Lock()
			step := o.stepLocked(j, nil)
			o.mu.Unlock()
			return step, nil
		}

		o.mu.Lock()
		paused := j.stage.Paused()
		var step *Step
		if paused {
			step = o.stepLocked(j, nil)
		}
		o.mu.Unlock()
		if paused {
			return step, nil
		}
	}
}

// commit applies a stage result unless the job was cancelled meanwhile
func (o *Orchestrator) commit(j *job, apply func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if j.stage == StageCancelled {
		return false
	}
	apply()
	return true
}

func (o *Orchestrator) fail(j *job, err error) {
	o.mu.Lock()
	delete(o.jobs, j.id)
	o.mu.Unlock()
	o.logger.WithError(err).WithField("job_id", j.id).Error("Generation failed")
}

func (o *Orchestrator) cancelledStep(j *job) *Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stepLocked(j, nil)
}

func (o *Orchestrator) stepLocked(j *job, store *models.Store) *Step {
	step := &Step{JobID: j.id, Stage: j.stage, Progress: j.progress, Store: store}
	switch j.stage {
	case StageDesignReview:
		step.Designs = cloneDesigns(j.designs)
	case StageProductReview:
		step.Draft = j.draft.Clone()
	}
	return step
}

// setProgressLocked only ever raises the percentage
func (o *Orchestrator) setProgressLocked(j *job, percent int, status string) {
	if percent > j.progress.Percent {
		j.progress.Percent = percent
	}
	j.progress.Status = status
}

func (o *Orchestrator) pruneLocked() {
	cutoff := time.Now().Add(-finishedJobTTL)
	for id, j := range o.jobs {
		if !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) cancelled(j *job) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return j.stage == StageCancelled
}

func (o *Orchestrator) reportProgress(j *job, percent int, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if j.stage != StageCancelled {
		o.setProgressLocked(j, percent, status)
	}
}

func cloneDesigns(designs []Design) []Design {
	if designs == nil {
		return nil
	}
	return append([]Design(nil), designs...)
}
