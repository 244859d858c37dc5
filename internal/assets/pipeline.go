// Package assets turns inline and remote images into durable blob storage URLs.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

// ErrStorageUnavailable is returned while the circuit breaker is open
var ErrStorageUnavailable = errors.New("blob storage temporarily unavailable")

// UploadError is a per-asset failure. Callers substitute the placeholder
// instead of failing the enclosing operation.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload asset %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// BlobStorage uploads bytes to a path and returns a publicly resolvable URL
type BlobStorage interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Config tunes the pipeline
type Config struct {
	PlaceholderURL string
	// MirrorRemote re-hosts remote http(s) images in blob storage
	MirrorRemote     bool
	BreakerThreshold int
	BreakerReset     time.Duration
	MaxAssetBytes    int64
}

// Pipeline materializes inline assets into durable URLs
type Pipeline struct {
	storage    BlobStorage
	breaker    *clients.CircuitBreaker
	config     Config
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewPipeline creates an asset pipeline. A nil storage makes every upload fail
// with UploadError so that products fall back to the placeholder.
func NewPipeline(storage BlobStorage, cfg Config, logger *logrus.Logger) *Pipeline {
	if cfg.PlaceholderURL == "" {
		cfg.PlaceholderURL = models.PlaceholderImageURL
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	if cfg.MaxAssetBytes <= 0 {
		cfg.MaxAssetBytes = 10 << 20
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		storage:    storage,
		breaker:    clients.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
		config:     cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.WithField("component", "asset-pipeline"),
	}
}

// Placeholder returns the URL substituted for failed uploads
func (p *Pipeline) Placeholder() string {
	return p.config.PlaceholderURL
}

// Materialize uploads an inline data URI to destinationPath and returns its durable URL
func (p *Pipeline) Materialize(ctx context.Context, dataURI, destinationPath string) (string, error) {
	data, contentType, err := DecodeDataURI(dataURI)
	if err != nil {
		return "", &UploadError{Path: destinationPath, Err: err}
	}
	return p.upload(ctx, data, contentType, destinationPath)
}

// MaterializeOrPlaceholder resolves one reference to a durable URL, never failing.
// Durable references pass through unchanged unless remote mirroring is on.
func (p *Pipeline) MaterializeOrPlaceholder(ctx context.Context, ref, destinationPath string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return p.config.PlaceholderURL
	case IsDataURI(ref):
		url, err := p.Materialize(ctx, ref, destinationPath)
		if err != nil {
			p.logger.WithError(err).WithField("path", destinationPath).Warn("Asset upload failed, using placeholder")
			return p.config.PlaceholderURL
		}
		return url
	case p.config.MirrorRemote && IsRemoteURL(ref) && ref != p.config.PlaceholderURL && !p.hosted(ref):
		url, err := p.mirror(ctx, ref, destinationPath)
		if err != nil {
			p.logger.WithError(err).WithField("source", ref).Warn("Remote image mirror failed, keeping source URL")
			return ref
		}
		return url
	}
	return ref
}

// MaterializeAll resolves an ordered list of mixed references. The result has
// the same length and order as refs.
func (p *Pipeline) MaterializeAll(ctx context.Context, refs []string, pathPrefix string) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = p.MaterializeOrPlaceholder(ctx, ref, fmt.Sprintf("%s/%d", strings.TrimSuffix(pathPrefix, "/"), i))
	}
	return out
}

// hosted reports whether ref already points into our own bucket
func (p *Pipeline) hosted(ref string) bool {
	public, ok := p.storage.(interface{ PublicURL(path string) string })
	if !ok {
		return false
	}
	return strings.HasPrefix(ref, public.PublicURL(""))
}

func (p *Pipeline) mirror(ctx context.Context, url, destinationPath string) (string, error) {
	data, contentType, err := p.Fetch(ctx, url)
	if err != nil {
		return "", &UploadError{Path: destinationPath, Err: err}
	}
	return p.upload(ctx, data, contentType, destinationPath)
}

func (p *Pipeline) upload(ctx context.Context, data []byte, contentType, destinationPath string) (string, error) {
	if p.storage == nil {
		return "", &UploadError{Path: destinationPath, Err: errors.New("blob storage not configured")}
	}
	if int64(len(data)) > p.config.MaxAssetBytes {
		return "", &UploadError{Path: destinationPath, Err: fmt.Errorf("asset is %d bytes, limit is %d", len(data), p.config.MaxAssetBytes)}
	}
	if !p.breaker.Allow() {
		return "", &UploadError{Path: destinationPath, Err: ErrStorageUnavailable}
	}

	detected := mimetype.Detect(data)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	objectPath := strings.TrimPrefix(destinationPath, "/")
	if path.Ext(objectPath) == "" {
		objectPath += detected.Extension()
	}

	url, err := p.storage.Upload(ctx, objectPath, contentType, data)
	if err != nil {
		p.breaker.RecordFailure()
		return "", &UploadError{Path: objectPath, Err: err}
	}
	p.breaker.RecordSuccess()
	return url, nil
}
