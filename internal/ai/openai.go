package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	DefaultChatModel  = "gpt-4o-mini"
	DefaultImageModel = openai.CreateImageModelDallE3
	defaultTimeout    = 90 * time.Second
)

// OpenAIConfig configures the OpenAI-backed service
type OpenAIConfig struct {
	APIKey     string
	Model      string
	ImageModel string
	// BaseURL overrides the API endpoint, mainly for tests
	BaseURL string
	Timeout time.Duration
}

// OpenAIService implements Service with chat completions and image generation
type OpenAIService struct {
	client     *openai.Client
	model      string
	imageModel string
	timeout    time.Duration
	logger     *logrus.Entry
}

var _ Service = (*OpenAIService)(nil)

// NewOpenAIService creates a new OpenAI-backed generation service
func NewOpenAIService(cfg OpenAIConfig, logger *logrus.Logger) *OpenAIService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OpenAIService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		timeout:    cfg.Timeout,
		logger:     logger.WithField("component", "ai-service"),
	}
}

// GenerateDesign renders a print-ready design. When a reference image is given
// it is described first and the description folded into the image prompt.
func (s *OpenAIService) GenerateDesign(ctx context.Context, prompt string, reference *Image) (*Image, error) {
	imagePrompt := fmt.Sprintf("A standalone print-ready artwork for merchandise, centered on a plain background, no mockup. Theme: %s", prompt)

	if reference != nil && !reference.IsEmpty() {
		var described struct {
			Style string `json:"style"`
		}
		err := s.chatJSON(ctx,
			"You describe the visual style of reference images for an illustrator. Reply with JSON {\"style\": string}.",
			[]openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Describe the style, palette and composition of this reference."},
				imagePart(*reference),
			},
			&described,
		)
		if err != nil {
			s.logger.WithError(err).Warn("Reference image description failed, generating without it")
		} else if described.Style != "" {
			imagePrompt += ". Match this style: " + described.Style
		}
	}

	return s.createImage(ctx, imagePrompt)
}

// GenerateProductCopy writes a product description in the voice of the store
func (s *OpenAIService) GenerateProductCopy(ctx context.Context, product ProductBrief, store StoreContext) (*ProductCopy, error) {
	user := fmt.Sprintf(`Store: %s (%s)
Store concept: %s

Product: %s
Price: %s
Notes: %s

Write a two or three sentence plain-text description for this product.
Return JSON: {"description": string}`,
		store.StoreName, store.StoreType, store.Prompt, product.Name, product.Price, product.Description)

	var out ProductCopy
	if err := s.chatJSON(ctx, "You are an e-commerce copywriter. Always return valid JSON.", textParts(user), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Description) == "" {
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

// VisualizeOnMockup suggests listing details for a design on a mockup and
// renders the combined product photo.
func (s *OpenAIService) VisualizeOnMockup(ctx context.Context, design, mockup Image, prompt, productName string) (*MockupResult, error) {
	var answer struct {
		ProductDetails
		PhotoPrompt string `json:"photoPrompt"`
	}
	instructions := fmt.Sprintf(`The first image is a design, the second is a blank %s mockup.
Store concept: %s
Suggest a listing for the design printed on the mockup, and a prompt for a product photo of it.
Return JSON: {"title": string, "description": string, "price": string, "variants": [{"name": string, "values": [string]}], "photoPrompt": string}`,
		productName, prompt)

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: instructions},
		imagePart(design),
		imagePart(mockup),
	}
	if err := s.chatJSON(ctx, "You are a print-on-demand merchandiser. Always return valid JSON.", parts, &answer); err != nil {
		return nil, err
	}

	photoPrompt := answer.PhotoPrompt
	if photoPrompt == "" {
		photoPrompt = fmt.Sprintf("Studio product photo of a %s printed with the design: %s", productName, answer.Title)
	}
	img, err := s.createImage(ctx, photoPrompt)
	if err != nil {
		return nil, err
	}

	return &MockupResult{Image: *img, Details: answer.ProductDetails}, nil
}

// GenerateCatalog proposes a store name, products and collections for a prompt
func (s *OpenAIService) GenerateCatalog(ctx context.Context, req CatalogRequest) (*CatalogIdea, error) {
	count := req.ProductCount
	if count <= 0 {
		count = 6
	}
	user := fmt.Sprintf(`Store concept: %s
Store type: %s

Propose a store with exactly %d products and 1 to 3 collections. Prices are decimal strings in the store currency.
Collections reference products by exact name.
Return JSON: {"storeName": string, "tagline": string, "currency": string,
"products": [{"name": string, "description": string, "price": string, "variants": [{"name": string, "values": [string]}], "imagePrompt": string}],
"collections": [{"name": string, "description": string, "productNames": [string]}]}`,
		req.Prompt, req.StoreType, count)

	var out CatalogIdea
	if err := s.chatJSON(ctx, "You are an e-commerce merchandiser. Always return valid JSON.", textParts(user), &out); err != nil {
		return nil, err
	}
	if len(out.Products) == 0 {
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

func (s *OpenAIService) chatJSON(ctx context.Context, system string, parts []openai.ChatMessagePart, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.7,
	})
	if err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		s.logger.WithError(err).WithField("content", truncate(content, 500)).Error("Failed to parse model response")
		return fmt.Errorf("failed to parse model response: %w", err)
	}
	return nil
}

func (s *OpenAIService) createImage(ctx context.Context, prompt string) (*Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateImage(callCtx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.imageModel,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrEmptyResponse
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}
	return &Image{Data: data, MimeType: "image/png"}, nil
}

func textParts(text string) []openai.ChatMessagePart {
	return []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
}

func imagePart(img Image) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: img.DataURI(), Detail: openai.ImageURLDetailLow},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
