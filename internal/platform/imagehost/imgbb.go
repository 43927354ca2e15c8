package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultImgBBEndpoint = "https://api.imgbb.com/1/upload"
	defaultTimeout       = 30 * time.Second
	maxErrorBody         = 4 << 10
)

// ImgBB uploads images through the imgbb v1 upload endpoint.
type ImgBB struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// ImgBBOption customises the imgbb client.
type ImgBBOption func(*ImgBB)

// WithEndpoint overrides the upload endpoint. Empty values are ignored.
func WithEndpoint(endpoint string) ImgBBOption {
	return func(c *ImgBB) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

// WithTimeout bounds each upload request.
func WithTimeout(d time.Duration) ImgBBOption {
	return func(c *ImgBB) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) ImgBBOption {
	return func(c *ImgBB) {
		if client != nil {
			c.client = client
		}
	}
}

// NewImgBB constructs an imgbb uploader. The API key is required.
func NewImgBB(apiKey string, opts ...ImgBBOption) (*ImgBB, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("imagehost: imgbb api key is required")
	}
	c := &ImgBB{
		apiKey:   apiKey,
		endpoint: defaultImgBBEndpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type imgbbResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
		DeleteURL  string `json:"delete_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts the image as the multipart "image" field. A data URL prefix is stripped first.
func (c *ImgBB) Upload(ctx context.Context, base64Data, name string) (Image, error) {
	payload := StripDataURL(base64Data)
	if payload == "" {
		return Image{}, ErrEmptyImage
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("image", payload); err != nil {
		return Image{}, fmt.Errorf("imagehost: encode form: %w", err)
	}
	if err := form.Close(); err != nil {
		return Image{}, fmt.Errorf("imagehost: encode form: %w", err)
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return Image{}, fmt.Errorf("imagehost: parse endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", c.apiKey)
	if name != "" {
		query.Set("name", name)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return Image{}, fmt.Errorf("imagehost: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("imagehost: imgbb request: %w", err)
	}
	defer resp.Body.Close()

	var decoded imgbbResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Image{}, fmt.Errorf("imagehost: imgbb status %d: decode response: %w %s", resp.StatusCode, err, strings.TrimSpace(string(snippet)))
	}
	if !decoded.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := decoded.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Image{}, fmt.Errorf("%w: imgbb status %d: %s", ErrUploadRejected, resp.StatusCode, msg)
	}

	image := Image{ID: decoded.Data.ID, URL: decoded.Data.URL, DeleteURL: decoded.Data.DeleteURL}
	if image.URL == "" {
		image.URL = decoded.Data.DisplayURL
	}
	if image.URL == "" {
		return Image{}, fmt.Errorf("%w: imgbb returned no url", ErrUploadRejected)
	}
	return image, nil
}
