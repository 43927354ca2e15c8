// Package imagehost uploads base64 product images to a third-party image host.
package imagehost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nitu-designer/lehangas/internal/platform/config"
)

var (
	// ErrUploadRejected is returned when the host answered but refused the image.
	ErrUploadRejected = errors.New("imagehost: upload rejected")
	// ErrEmptyImage is returned when no image data was supplied.
	ErrEmptyImage = errors.New("imagehost: empty image")
)

// Image is the hosted result of an upload.
type Image struct {
	ID        string
	URL       string
	DeleteURL string
}

// Uploader sends a base64 encoded image to the host under the given display name.
type Uploader interface {
	Upload(ctx context.Context, base64Data, name string) (Image, error)
}

// New builds the uploader selected by cfg.Backend.
func New(cfg config.ImageHostConfig) (Uploader, error) {
	switch cfg.Backend {
	case config.ImageHostImgBB:
		return NewImgBB(cfg.ImgBBKey, WithEndpoint(cfg.ImgBBEndpoint), WithTimeout(cfg.Timeout))
	case config.ImageHostCloudinary:
		return NewCloudinary(cfg.CloudinaryURL, cfg.Folder)
	default:
		return nil, fmt.Errorf("imagehost: unknown backend %q", cfg.Backend)
	}
}

// StripDataURL drops a "data:image/<type>;base64," prefix when present.
func StripDataURL(data string) string {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "data:image/") {
		return data
	}
	if idx := strings.Index(data, ";base64,"); idx >= 0 {
		return data[idx+len(";base64,"):]
	}
	return data
}
