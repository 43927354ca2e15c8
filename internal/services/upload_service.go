package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/imagehost"
	"github.com/nitu-designer/lehangas/internal/platform/storage"
	"github.com/nitu-designer/lehangas/internal/platform/textutil"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const defaultMaxUploadBytes int64 = 10 << 20

// CategoryLister exposes the current category list.
type CategoryLister interface {
	Categories() []Category
}

// UploadFile is one image selected by the admin.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadCommand uploads Files into Category.
type UploadCommand struct {
	Category    string
	Files       []UploadFile
	UploadedBy  string
	Description string
	Price       *decimal.Decimal
}

// UploadFailure describes one file that could not be uploaded.
type UploadFailure struct {
	FileName string    `json:"fileName"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

// UploadReport lists every created product and every per-file failure.
type UploadReport struct {
	Products []Product
	Failures []UploadFailure
}

// UploadServiceDeps bundles collaborators for admin uploads.
type UploadServiceDeps struct {
	Catalog      CategoryLister
	Products     repositories.ProductRepository
	Images       imagehost.Uploader
	Archive      storage.BlobStore
	ImagePrefix  string
	MaxFileBytes int64
	Clock        func() time.Time
	NewID        func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	catalog  CategoryLister
	products repositories.ProductRepository
	images   imagehost.Uploader
	archive  storage.BlobStore
	prefix   string
	maxBytes int64
	clock    func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewUploadService validates dependencies. Archive is optional; without it original bytes are not kept.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("upload service: catalog is required")
	}
	if deps.Products == nil {
		return nil, errors.New("upload service: product repository is required")
	}
	if deps.Images == nil {
		return nil, errors.New("upload service: image uploader is required")
	}
	maxBytes := deps.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &uploadService{
		catalog:  deps.Catalog,
		products: deps.Products,
		images:   deps.Images,
		archive:  deps.Archive,
		prefix:   deps.ImagePrefix,
		maxBytes: maxBytes,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

// Upload processes every file, continuing past failures. When any file failed the report is returned
// together with an upload error.
func (s *uploadService) Upload(ctx context.Context, cmd UploadCommand) (UploadReport, error) {
	const op = "upload.run"
	category := strings.TrimSpace(cmd.Category)
	if category == "" || category == domain.AllCategoryName {
		return UploadReport{}, validationError(op, "category is required")
	}
	if !s.knownCategory(category) {
		return UploadReport{}, validationError(op, "unknown category")
	}
	if len(cmd.Files) == 0 {
		return UploadReport{}, validationError(op, "at least one file is required")
	}
	if cmd.Price != nil && cmd.Price.IsNegative() {
		return UploadReport{}, validationError(op, "price must not be negative")
	}

	report := UploadReport{Products: []Product{}, Failures: []UploadFailure{}}
	for _, file := range cmd.Files {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, UploadFailure{FileName: file.Name, Kind: ErrorKindUploadFailed, Message: err.Error()})
			continue
		}
		product, err := s.uploadOne(ctx, category, cmd, file)
		if err != nil {
			kind, ok := KindOf(err)
			if !ok {
				kind = ErrorKindUploadFailed
			}
			report.Failures = append(report.Failures, UploadFailure{FileName: file.Name, Kind: kind, Message: err.Error()})
			s.logger(ctx, "upload.file_failed", map[string]any{"file": file.Name, "category": category, "error": err})
			continue
		}
		report.Products = append(report.Products, product)
	}

	s.logger(ctx, "upload.completed", map[string]any{
		"category": category,
		"uploaded": len(report.Products),
		"failed":   len(report.Failures),
	})
	if len(report.Failures) > 0 {
		return report, &Error{
			Op:      op,
			Kind:    ErrorKindUploadFailed,
			Message: fmt.Sprintf("%d of %d files failed", len(report.Failures), len(cmd.Files)),
		}
	}
	return report, nil
}

func (s *uploadService) uploadOne(ctx context.Context, category string, cmd UploadCommand, file UploadFile) (Product, error) {
	const op = "upload.file"
	if len(file.Data) == 0 {
		return Product{}, validationError(op, "file is empty")
	}
	if int64(len(file.Data)) > s.maxBytes {
		return Product{}, validationError(op, fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(file.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Product{}, validationError(op, "only image files can be uploaded")
	}

	name, err := storage.UploadName(category, file.Name, s.newID())
	if err != nil {
		return Product{}, validationError(op, err.Error())
	}

	image, err := s.images.Upload(ctx, base64.StdEncoding.EncodeToString(file.Data), name)
	if err != nil {
		return Product{}, &Error{Op: op, Kind: ErrorKindUploadFailed, Message: "image host upload failed", Err: err}
	}

	if s.archive != nil {
		path, err := storage.ImagePath(s.prefix, name)
		if err == nil {
			_, err = s.archive.Upload(ctx, path, file.Data, contentType)
		}
		if err != nil {
			// The hosted image is live; a missing archive copy only affects legacy listings.
			s.logger(ctx, "upload.archive_failed", map[string]any{"name": name, "error": err})
		}
	}

	product, err := s.products.Create(ctx, Product{
		Name:             name,
		Category:         category,
		ImageURL:         image.URL,
		OriginalFileName: file.Name,
		FileSize:         int64(len(file.Data)),
		FileType:         contentType,
		UploadedAt:       s.clock(),
		UploadedBy:       cmd.UploadedBy,
		Description:      textutil.CleanText(cmd.Description),
		Price:            cmd.Price,
	})
	if err != nil {
		return Product{}, storeWriteError(op, err)
	}
	return product, nil
}

func (s *uploadService) knownCategory(name string) bool {
	for _, c := range s.catalog.Categories() {
		if c.ID != domain.AllCategoryID && c.Name == name {
			return true
		}
	}
	return false
}
