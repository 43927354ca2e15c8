package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const (
	categoryCollection = "categories"
	// Bounds the uniqueness check and create, retries included.
	categoryCreateTimeout = 10 * time.Second
)

type categoryDocument struct {
	Name string `firestore:"name"`
}

// CategoryRepository persists category labels. The synthetic "All" category is never stored here.
type CategoryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{provider: provider, base: base}, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	return categoriesFromDocs(docs), nil
}

// Create adds a category unless one with the same name already exists. The check and the insert run
// in one transaction, so concurrent admins cannot create duplicates.
func (r *CategoryRepository) Create(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, errors.New("category name is required")
	}
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	ref := coll.NewDoc()
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.Where("name", "==", name).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return status.Errorf(codes.AlreadyExists, "category %q already exists", name)
		}
		return tx.Create(ref, categoryDocument{Name: name})
	}, pfirestore.WithTxAttempts(3), pfirestore.WithTxTimeout(categoryCreateTimeout))
	if err != nil {
		return domain.Category{}, pfirestore.WrapError("categories.create", err)
	}
	return domain.Category{ID: ref.ID, Name: name}, nil
}

// Rename changes only the category label. Products keep their current tag.
func (r *CategoryRepository) Rename(ctx context.Context, categoryID string, name string) error {
	if err := requireID("category", categoryID); err != nil {
		return err
	}
	return r.base.Update(ctx, categoryID, []firestore.Update{{Path: "name", Value: name}})
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if err := requireID("category", categoryID); err != nil {
		return err
	}
	return r.base.Delete(ctx, categoryID)
}

func (r *CategoryRepository) Subscribe(ctx context.Context, handler func([]domain.Category), onError func(error)) (repositories.Subscription, error) {
	if handler == nil {
		return nil, errors.New("category subscription requires a handler")
	}
	sub, err := r.base.Watch(ctx, nil, func(docs []pfirestore.Document[categoryDocument]) {
		handler(categoriesFromDocs(docs))
	}, onError)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func categoriesFromDocs(docs []pfirestore.Document[categoryDocument]) []domain.Category {
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, domain.Category{ID: doc.ID, Name: doc.Data.Name})
	}
	return categories
}
