package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/ai"
	"storefront-builder-service/internal/mapper"
	"storefront-builder-service/internal/models"
)

// synthesizeDesigns generates up to DesignCount artworks. A failed design is
// left out; the job continues with the rest.
func (o *Orchestrator) synthesizeDesigns(ctx context.Context, j *job, req Request) []Design {
	var reference *ai.Image
	if req.ReferenceImage != "" {
		img, err := ai.ImageFromDataURI(req.ReferenceImage)
		if err != nil {
			o.logger.WithError(err).WithField("job_id", j.id).Warn("Ignoring invalid reference image")
		} else {
			reference = &img
		}
	}

	designs := make([]Design, 0, req.DesignCount)
	for i := 0; i < req.DesignCount; i++ {
		if o.cancelled(j) {
			return nil
		}
		prompt := req.Prompt
		if req.DesignCount > 1 {
			prompt = fmt.Sprintf("%s (variation %d of %d)", req.Prompt, i+1, req.DesignCount)
		}

		img, err := o.ai.GenerateDesign(ctx, prompt, reference)
		if err != nil || img == nil || img.IsEmpty() {
			o.logger.WithError(err).WithFields(logrus.Fields{"job_id": j.id, "design": i + 1}).Warn("Design generation failed, skipping")
		} else {
			designs = append(designs, Design{
				ID:     fmt.Sprintf("design-%d", i+1),
				Prompt: prompt,
				Image:  img.DataURI(),
			})
		}
		o.reportProgress(j, 10+25*(i+1)/req.DesignCount, fmt.Sprintf("Generated design %d of %d", i+1, req.DesignCount))
	}
	return designs
}

// synthesizeProducts builds the product half of the catalog. Print-on-demand
// jobs with designs turn each design and mockup pair into a product; other
// jobs use the model's product ideas.
func (o *Orchestrator) synthesizeProducts(ctx context.Context, j *job, req Request, designs []Design) (mapper.GeneratedCatalog, error) {
	storeType := storeTypeFor(req)
	idea, err := o.ai.GenerateCatalog(ctx, ai.CatalogRequest{
		Prompt:       req.Prompt,
		StoreType:    storeType,
		ProductCount: req.ProductCount,
	})
	if err != nil {
		if !req.PrintOnDemand || len(designs) == 0 {
			return mapper.GeneratedCatalog{}, fmt.Errorf("failed to generate catalog: %w", err)
		}
		o.logger.WithError(err).WithField("job_id", j.id).Warn("Catalog ideas failed, using design products only")
		idea = &ai.CatalogIdea{}
	}

	catalog := mapper.GeneratedCatalog{
		StoreName: idea.StoreName,
		Tagline:   idea.Tagline,
		Currency:  idea.Currency,
	}
	storeCtx := ai.StoreContext{StoreName: idea.StoreName, StoreType: storeType, Prompt: req.Prompt}

	if req.PrintOnDemand && len(designs) > 0 {
		total := len(designs) * len(req.Mockups)
		n := 0
		for _, design := range designs {
			for _, mockup := range req.Mockups {
				if o.cancelled(j) {
					return catalog, nil
				}
				catalog.Products = append(catalog.Products, o.mockupProduct(ctx, j, req, design, mockup))
				n++
				o.reportProgress(j, 40+30*n/total, fmt.Sprintf("Created product %d of %d", n, total))
			}
		}
		return catalog, nil
	}

	for i, p := range idea.Products {
		if o.cancelled(j) {
			return catalog, nil
		}
		catalog.Products = append(catalog.Products, o.ideaProduct(ctx, j, req, storeCtx, p))
		o.reportProgress(j, 40+30*(i+1)/len(idea.Products), fmt.Sprintf("Created product %d of %d", i+1, len(idea.Products)))
	}
	catalog.Collections = make([]mapper.GeneratedCollection, 0, len(idea.Collections))
	for _, c := range idea.Collections {
		catalog.Collections = append(catalog.Collections, mapper.GeneratedCollection{
			Name:         c.Name,
			Description:  c.Description,
			ProductNames: append([]string(nil), c.ProductNames...),
		})
	}
	return catalog, nil
}

func (o *Orchestrator) mockupProduct(ctx context.Context, j *job, req Request, design Design, mockup Mockup) mapper.GeneratedProduct {
	fallback := mapper.GeneratedProduct{
		Name:            fmt.Sprintf("%s %s", mockup.ProductName, strings.TrimPrefix(design.ID, "design-")),
		Description:     fmt.Sprintf("%s featuring an original design.", mockup.ProductName),
		Price:           mockup.BasePrice,
		Images:          []string{design.Image},
		IsPrintOnDemand: true,
		PODDetails:      podDetails(design, mockup),
	}

	if mockup.Image == "" {
		return fallback
	}
	designImg, err := o.loadImage(ctx, design.Image)
	if err != nil {
		o.logger.WithError(err).WithField("job_id", j.id).Warn("Design image unavailable for mockup")
		return fallback
	}
	mockupImg, err := o.loadImage(ctx, mockup.Image)
	if err != nil {
		o.logger.WithError(err).WithField("job_id", j.id).Warn("Invalid mockup image")
		return fallback
	}

	result, err := o.ai.VisualizeOnMockup(ctx, designImg, mockupImg, req.Prompt, mockup.ProductName)
	if err != nil || result == nil {
		o.logger.WithError(err).WithFields(logrus.Fields{"job_id": j.id, "design_id": design.ID}).Warn("Mockup visualization failed, using design image")
		return fallback
	}

	product := fallback
	if title := strings.TrimSpace(result.Details.Title); title != "" {
		product.Name = title
	}
	if desc := strings.TrimSpace(result.Details.Description); desc != "" {
		product.Description = desc
	}
	if result.Details.Price != "" {
		product.Price = result.Details.Price
	}
	product.Variants = result.Details.Variants
	if !result.Image.IsEmpty() {
		product.Images = []string{result.Image.DataURI(), design.Image}
	}
	return product
}

// loadImage decodes ref, downloading it first when it is a remote URL
func (o *Orchestrator) loadImage(ctx context.Context, ref string) (ai.Image, error) {
	if o.config.Assets != nil {
		inline, err := o.config.Assets.ToInline(ctx, ref)
		if err != nil {
			return ai.Image{}, err
		}
		ref = inline
	}
	return ai.ImageFromDataURI(ref)
}

func (o *Orchestrator) ideaProduct(ctx context.Context, j *job, req Request, storeCtx ai.StoreContext, idea ai.ProductIdea) mapper.GeneratedProduct {
	product := mapper.GeneratedProduct{
		Name:        idea.Name,
		Description: idea.Description,
		Price:       idea.Price,
		Variants:    idea.Variants,
	}

	copyText, err := o.ai.GenerateProductCopy(ctx, ai.ProductBrief{Name: idea.Name, Description: idea.Description, Price: idea.Price}, storeCtx)
	switch {
	case err == nil && copyText != nil:
		product.Description = copyText.Description
	case strings.TrimSpace(product.Description) == "":
		product.Description = fallbackCopy(idea.Name, storeCtx.StoreName)
		o.logger.WithError(err).WithFields(logrus.Fields{"job_id": j.id, "product": idea.Name}).Warn("Product copy failed, using fallback")
	}

	if req.GenerateImages && idea.ImagePrompt != "" {
		img, err := o.ai.GenerateDesign(ctx, idea.ImagePrompt, nil)
		if err != nil || img == nil || img.IsEmpty() {
			o.logger.WithError(err).WithFields(logrus.Fields{"job_id": j.id, "product": idea.Name}).Warn("Product image failed, placeholder will be used")
		} else {
			product.Images = []string{img.DataURI()}
		}
	}
	return product
}

// synthesizeCollections fills in collections. Print-on-demand products are
// grouped by mockup; otherwise the model's collections are kept and a single
// catch-all collection is used when it proposed none.
func (o *Orchestrator) synthesizeCollections(req Request, catalog mapper.GeneratedCatalog) mapper.GeneratedCatalog {
	if req.PrintOnDemand && len(catalog.Collections) == 0 {
		byMockup := make(map[string]int)
		for _, p := range catalog.Products {
			name, _ := p.PODDetails["mockup"].(string)
			if name == "" {
				continue
			}
			idx, ok := byMockup[name]
			if !ok {
				idx = len(catalog.Collections)
				byMockup[name] = idx
				catalog.Collections = append(catalog.Collections, mapper.GeneratedCollection{Name: pluralize(name)})
			}
			catalog.Collections[idx].ProductNames = append(catalog.Collections[idx].ProductNames, p.Name)
		}
	}

	if len(catalog.Collections) == 0 && len(catalog.Products) > 0 {
		all := mapper.GeneratedCollection{Name: "All Products"}
		for _, p := range catalog.Products {
			all.ProductNames = append(all.ProductNames, p.Name)
		}
		catalog.Collections = []mapper.GeneratedCollection{all}
	}
	return catalog
}

func (o *Orchestrator) buildDraft(req Request, catalog mapper.GeneratedCatalog) *models.Store {
	draft := mapper.MapGeneratedCatalog(catalog, mapper.Options{
		StoreType:        storeTypeFor(req),
		Theme:            req.Theme,
		Tags:             req.Tags,
		MaxProducts:      o.config.MaxProducts,
		PlaceholderImage: o.config.PlaceholderImage,
	})
	draft.MerchantID = req.MerchantID
	draft.Source = models.StoreSource{Prompt: req.Prompt}
	return draft
}

func storeTypeFor(req Request) string {
	if req.StoreType != "" {
		return req.StoreType
	}
	if req.PrintOnDemand {
		return printOnDemandType
	}
	return mapper.DefaultStoreType
}

func podDetails(design Design, mockup Mockup) models.JSONB {
	return models.JSONB{
		"designId":     design.ID,
		"designPrompt": design.Prompt,
		"mockup":       mockup.ProductName,
	}
}

func fallbackCopy(name, storeName string) string {
	if storeName == "" {
		return fmt.Sprintf("%s, made with care.", name)
	}
	return fmt.Sprintf("%s from %s, made with care.", name, storeName)
}

func pluralize(name string) string {
	if strings.HasSuffix(strings.ToLower(name), "s") {
		return name
	}
	return name + "s"
}
