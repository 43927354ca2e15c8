package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const (
	productCollection = "products"
	// legacyImagePrefix turns a raw base64 "image" field into a data URL.
	legacyImagePrefix = "data:image/jpeg;base64,"
)

// ProductRepository reads and writes catalog products.
type ProductRepository struct {
	base *pfirestore.BaseRepository[domain.Product]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[domain.Product](provider, productCollection, encodeProduct, decodeProductSnapshot)
	return &ProductRepository{base: base}, nil
}

// List returns every displayable product in collection order.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	return productsFromDocs(docs), nil
}

// ListByCategory returns the products tagged with category.
func (r *ProductRepository) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("category", "==", category)
	})
	if err != nil {
		return nil, err
	}
	return productsFromDocs(docs), nil
}

// FindByName returns the first product whose name matches exactly.
func (r *ProductRepository) FindByName(ctx context.Context, name string) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, errors.New("product name is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("name", "==", name).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.WrapError("products.findByName", status.Errorf(codes.NotFound, "product %q not found", name))
	}
	return productsFromDocs(docs)[0], nil
}

// Create stores a new product document with a generated id.
func (r *ProductRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	id, err := r.base.Create(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id
	return product, nil
}

// UpdateCategory retags a product. Used only by category migrations.
func (r *ProductRepository) UpdateCategory(ctx context.Context, productID string, category string) error {
	if err := requireID("product", productID); err != nil {
		return err
	}
	return r.base.Update(ctx, productID, []firestore.Update{{Path: "category", Value: category}})
}

// Subscribe streams the full product list on every change.
func (r *ProductRepository) Subscribe(ctx context.Context, handler func([]domain.Product), onError func(error)) (repositories.Subscription, error) {
	if handler == nil {
		return nil, errors.New("product subscription requires a handler")
	}
	sub, err := r.base.Watch(ctx, nil, func(docs []pfirestore.Document[domain.Product]) {
		handler(productsFromDocs(docs))
	}, onError)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func productsFromDocs(docs []pfirestore.Document[domain.Product]) []domain.Product {
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data
		product.ID = doc.ID
		if product.UploadedAt.IsZero() {
			product.UploadedAt = doc.CreateTime
		}
		products = append(products, product)
	}
	return products
}

func encodeProduct(_ context.Context, p domain.Product) (any, error) {
	doc := map[string]any{
		"name":             p.Name,
		"category":         p.Category,
		"imageUrl":         p.ImageURL,
		"originalFileName": p.OriginalFileName,
		"fileSize":         p.FileSize,
		"fileType":         p.FileType,
		"uploadedAt":       p.UploadedAt.UTC(),
		"uploadedBy":       p.UploadedBy,
	}
	if p.Description != "" {
		doc["description"] = p.Description
	}
	if p.Price != nil {
		doc["price"] = p.Price.String()
	}
	return doc, nil
}

func decodeProductSnapshot(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Product, error) {
	return decodeProductData(snap.Data())
}

// decodeProductData maps a raw product document. Documents that lack an image or a category after
// legacy decoding are skipped.
func decodeProductData(data map[string]any) (domain.Product, error) {
	product := domain.Product{
		Name:             stringField(data, "name"),
		Category:         stringField(data, "category"),
		ImageURL:         imageURLField(data),
		OriginalFileName: stringField(data, "originalFileName"),
		FileType:         stringField(data, "fileType"),
		UploadedBy:       stringField(data, "uploadedBy"),
		Description:      stringField(data, "description"),
		FileSize:         int64Field(data, "fileSize"),
	}
	if ts, ok := data["uploadedAt"].(time.Time); ok {
		product.UploadedAt = ts.UTC()
	}
	if price, ok := decimalField(data, "price"); ok {
		product.Price = &price
	}
	if product.ImageURL == "" || product.Category == "" {
		return domain.Product{}, pfirestore.ErrSkipDocument
	}
	return product, nil
}

// imageURLField reads "imageUrl" (a string, or the raw image host response object of older uploads)
// and falls back to the legacy inline "image" field.
func imageURLField(data map[string]any) string {
	switch v := data["imageUrl"].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case map[string]any:
		for _, key := range []string{"url", "display_url"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	if raw := stringField(data, "image"); raw != "" {
		if strings.HasPrefix(raw, "data:") {
			return raw
		}
		return legacyImagePrefix + raw
	}
	return ""
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func int64Field(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

func decimalField(data map[string]any, key string) (decimal.Decimal, bool) {
	switch v := data[key].(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	}
	return decimal.Decimal{}, false
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}
