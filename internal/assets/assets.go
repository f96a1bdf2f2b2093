// Package assets turns raw image payloads into stable reference URLs.
package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidImage is returned for payloads that are neither a data URL nor an http(s) reference.
	ErrInvalidImage = errors.New("invalid image")
	// ErrUploadDisabled is returned when a raw image arrives but no uploader is configured.
	ErrUploadDisabled = errors.New("image upload is not configured")
)

// Uploader stores raw image bytes and returns a stable reference URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Resolve converts an image field from a send request into a reference.
// Data URLs are uploaded; http(s) URLs are already references and pass through.
// An empty image resolves to "".
func Resolve(ctx context.Context, up Uploader, image string) (string, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return "", nil
	}

	if strings.HasPrefix(image, "data:") {
		if up == nil {
			return "", ErrUploadDisabled
		}
		data, contentType, err := DecodeDataURL(image)
		if err != nil {
			return "", err
		}
		ref, err := up.Upload(ctx, data, contentType)
		if err != nil {
			return "", fmt.Errorf("upload image: %w", err)
		}
		return ref, nil
	}

	u, err := url.Parse(image)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidImage
	}
	return image, nil
}

// DecodeDataURL parses a base64 "data:<mime>;base64,<payload>" image.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", ErrInvalidImage
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidImage
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 || !strings.HasPrefix(contentType, "image/") {
		return nil, "", ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, "", ErrInvalidImage
	}
	return data, contentType, nil
}
