package assets

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStorage uploads assets to a public Supabase Storage bucket
type SupabaseStorage struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

// NewSupabaseStorage creates a blob storage backed by Supabase
func NewSupabaseStorage(baseURL, key, bucket string) (*SupabaseStorage, error) {
	client, err := supabase.NewClient(baseURL, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStorage{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		bucket:  bucket,
	}, nil
}

// Upload stores the bytes at path and returns the public object URL.
// The storage client has no context support; ctx only short-circuits cancelled calls.
func (s *SupabaseStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	_, err := s.client.Storage.UploadFile(s.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", err
	}
	return s.PublicURL(path), nil
}

// PublicURL returns the public URL of an object in the bucket
func (s *SupabaseStorage) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimPrefix(path, "/"))
}
