package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// IsDataURI reports whether ref is an inline data URI
func IsDataURI(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "data:")
}

// IsRemoteURL reports whether ref is an absolute http(s) URL
func IsRemoteURL(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DecodeDataURI returns the bytes and declared MIME type of a data URI
func DecodeDataURI(uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("not a data URI")
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, "", errors.New("malformed data URI")
	}
	header, payload := uri[len("data:"):comma], uri[comma+1:]

	params := strings.Split(header, ";")
	contentType := params[0]
	isBase64 := false
	for _, param := range params[1:] {
		if param == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
			}
		}
		return data, contentType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid data URI payload: %w", err)
	}
	return []byte(decoded), contentType, nil
}

// ToDataURI encodes bytes as a base64 data URI, sniffing the MIME type when none is given
func ToDataURI(data []byte, contentType string) string {
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Fetch downloads a remote asset and returns its bytes and content type
func (p *Pipeline) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("asset fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxAssetBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read asset: %w", err)
	}
	if int64(len(data)) > p.config.MaxAssetBytes {
		return nil, "", fmt.Errorf("asset exceeds %d bytes", p.config.MaxAssetBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ToInline returns ref as a data URI, downloading it first when it is a remote URL
func (p *Pipeline) ToInline(ctx context.Context, ref string) (string, error) {
	if IsDataURI(ref) {
		return ref, nil
	}
	if !IsRemoteURL(ref) {
		return "", fmt.Errorf("unsupported asset reference")
	}
	data, contentType, err := p.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	return ToDataURI(data, contentType), nil
}
