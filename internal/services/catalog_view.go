package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/storage"
	"github.com/nitu-designer/lehangas/internal/platform/textutil"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

// SnapshotKind names the collection a snapshot belongs to.
type SnapshotKind string

const (
	SnapshotProducts   SnapshotKind = "products"
	SnapshotCategories SnapshotKind = "categories"
)

// Snapshot is a complete collection result delivered by the catalog data source.
type Snapshot struct {
	Kind       SnapshotKind
	Products   []Product
	Categories []Category
}

// DeleteStatus is the outcome of a DeleteCategory call that did not fail.
type DeleteStatus string

const (
	DeleteStatusConfirmationRequired DeleteStatus = "confirmation_required"
	DeleteStatusDeleted              DeleteStatus = "deleted"
)

// DeleteCategoryCommand asks for a category to be removed, moving its products to TargetID first.
type DeleteCategoryCommand struct {
	CategoryID string
	TargetID   string
	Confirm    bool
}

// DeleteCategoryResult reports what DeleteCategory did. Migration is set when products were moved.
type DeleteCategoryResult struct {
	Status    DeleteStatus
	Migration *CategoryMigration
}

// CategoryMigrator moves everything tagged with source onto target.
type CategoryMigrator interface {
	Run(ctx context.Context, source, target Category) (CategoryMigration, error)
}

// CatalogViewDeps bundles collaborators for the catalog view.
type CatalogViewDeps struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Migrator   CategoryMigrator
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// CatalogView holds the latest product and category snapshots and applies admin category changes.
// Reads return copies. Store I/O never runs under the state lock.
type CatalogView struct {
	productsRepo   repositories.ProductRepository
	categoriesRepo repositories.CategoryRepository
	migrator       CategoryMigrator
	logger         func(ctx context.Context, event string, fields map[string]any)

	mu         sync.RWMutex
	products   []Product
	categories []Category
	synced     map[SnapshotKind]bool

	// adminMu serialises category mutations so only one migration runs at a time.
	adminMu sync.Mutex

	startMu sync.Mutex
	handle  *CatalogSubscriptions
}

var _ CatalogService = (*CatalogView)(nil)

// NewCatalogView constructs an empty view. Call Start to begin receiving snapshots.
func NewCatalogView(deps CatalogViewDeps) (*CatalogView, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog view: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog view: category repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CatalogView{
		productsRepo:   deps.Products,
		categoriesRepo: deps.Categories,
		migrator:       deps.Migrator,
		logger:         logger,
		categories:     []Category{domain.AllCategory()},
		synced:         make(map[SnapshotKind]bool, 2),
	}, nil
}

// CatalogSubscriptions is the handle returned by Start.
type CatalogSubscriptions struct {
	once sync.Once
	subs []repositories.Subscription
}

// Close stops both listeners. Further calls do nothing.
func (h *CatalogSubscriptions) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		for _, sub := range h.subs {
			sub.Close()
		}
	})
}

// Start subscribes once to products and categories. A second call fails while the view is running.
func (v *CatalogView) Start(ctx context.Context) (*CatalogSubscriptions, error) {
	v.startMu.Lock()
	defer v.startMu.Unlock()
	if v.handle != nil {
		return nil, errors.New("catalog view: already started")
	}

	onError := func(kind SnapshotKind) func(error) {
		return func(err error) {
			v.logger(ctx, "catalog.subscription_error", map[string]any{
				"collection": string(kind),
				"error":      err,
			})
		}
	}

	productSub, err := v.productsRepo.Subscribe(ctx, func(products []Product) {
		v.IngestSnapshot(Snapshot{Kind: SnapshotProducts, Products: products})
	}, onError(SnapshotProducts))
	if err != nil {
		return nil, err
	}
	categorySub, err := v.categoriesRepo.Subscribe(ctx, func(categories []Category) {
		v.IngestSnapshot(Snapshot{Kind: SnapshotCategories, Categories: categories})
	}, onError(SnapshotCategories))
	if err != nil {
		productSub.Close()
		return nil, err
	}

	v.handle = &CatalogSubscriptions{subs: []repositories.Subscription{productSub, categorySub}}
	return v.handle, nil
}

// IngestSnapshot replaces the list named by s.Kind wholesale. The synthetic "All" category stays first.
func (v *CatalogView) IngestSnapshot(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch s.Kind {
	case SnapshotProducts:
		v.products = append([]Product(nil), s.Products...)
	case SnapshotCategories:
		categories := make([]Category, 0, len(s.Categories)+1)
		categories = append(categories, domain.AllCategory())
		for _, c := range s.Categories {
			if c.ID == domain.AllCategoryID {
				continue
			}
			categories = append(categories, c)
		}
		v.categories = categories
	default:
		return
	}
	v.synced[s.Kind] = true
}

// Synced reports whether both collections have delivered at least one snapshot.
func (v *CatalogView) Synced() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced[SnapshotProducts] && v.synced[SnapshotCategories]
}

// Categories returns the category list with "All" at index 0.
func (v *CatalogView) Categories() []Category {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Category(nil), v.categories...)
}

// Products returns the latest product snapshot.
func (v *CatalogView) Products() []Product {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Product(nil), v.products...)
}

// FilteredProducts applies FilterProducts to the latest snapshot. The term is stripped of markup and
// surrounding whitespace first.
func (v *CatalogView) FilteredProducts(category, term string) []Product {
	term = textutil.CleanText(term)
	v.mu.RLock()
	defer v.mu.RUnlock()
	return FilterProducts(v.products, category, term)
}

// ResolveProduct finds a product in the snapshot by image URL or name.
func (v *CatalogView) ResolveProduct(key string) (Product, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, p := range v.products {
		if p.MatchesKey(key) {
			return p, true
		}
	}
	return Product{}, false
}

// FindProduct looks a product up by name, first in the snapshot and then in the store.
func (v *CatalogView) FindProduct(ctx context.Context, name string) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, validationError("catalog.findProduct", "product name is required")
	}
	v.mu.RLock()
	for _, p := range v.products {
		if p.Name == name {
			v.mu.RUnlock()
			return p, nil
		}
	}
	v.mu.RUnlock()
	return v.productsRepo.FindByName(ctx, name)
}

// AddCategory creates a category. The name must be non-empty and not already listed. The new category
// appears once the next snapshot arrives.
func (v *CatalogView) AddCategory(ctx context.Context, name string) (Category, error) {
	const op = "catalog.addCategory"
	name = textutil.CleanLabel(name)
	if name == "" {
		return Category{}, validationError(op, "category name is required")
	}
	if err := storage.ValidateCategory(name); err != nil {
		return Category{}, validationError(op, "category name cannot be used in image names")
	}

	v.adminMu.Lock()
	defer v.adminMu.Unlock()

	if _, exists := v.categoryByName(name); exists {
		return Category{}, validationError(op, "category name already exists")
	}
	created, err := v.categoriesRepo.Create(ctx, name)
	if err != nil {
		// Another admin added the same name before our snapshot caught up.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Category{}, validationError(op, "category name already exists")
		}
		return Category{}, storeWriteError(op, err)
	}
	v.logger(ctx, "catalog.category_added", map[string]any{"categoryId": created.ID, "name": created.Name})
	return created, nil
}

// RenameCategoryLabelOnly updates the category label. Products keep their old tag. An empty or unchanged
// name is a no-op.
func (v *CatalogView) RenameCategoryLabelOnly(ctx context.Context, categoryID, name string) error {
	const op = "catalog.renameCategory"
	name = textutil.CleanLabel(name)

	v.adminMu.Lock()
	defer v.adminMu.Unlock()

	current, ok := v.categoryByID(categoryID)
	if !ok || current.ID == domain.AllCategoryID {
		return validationError(op, "unknown category")
	}
	if name == "" || name == current.Name {
		return nil
	}
	if name == domain.AllCategoryName {
		return validationError(op, "category name is reserved")
	}
	if err := storage.ValidateCategory(name); err != nil {
		return validationError(op, "category name cannot be used in image names")
	}
	if err := v.categoriesRepo.Rename(ctx, categoryID, name); err != nil {
		return storeWriteError(op, err)
	}
	v.logger(ctx, "catalog.category_renamed", map[string]any{"categoryId": categoryID, "from": current.Name, "to": name})
	return nil
}

// DeleteCategory removes a category. When products still carry its label they are first migrated to
// the target category; without a target nothing happens. Without Confirm the result only reports that
// deletion is possible.
func (v *CatalogView) DeleteCategory(ctx context.Context, cmd DeleteCategoryCommand) (DeleteCategoryResult, error) {
	const op = "catalog.deleteCategory"

	v.adminMu.Lock()
	defer v.adminMu.Unlock()

	source, ok := v.categoryByID(strings.TrimSpace(cmd.CategoryID))
	if !ok || source.ID == domain.AllCategoryID {
		return DeleteCategoryResult{}, validationError(op, "unknown category")
	}

	var result DeleteCategoryResult
	if v.isReferenced(source.Name) {
		targetID := strings.TrimSpace(cmd.TargetID)
		if targetID == "" {
			return DeleteCategoryResult{}, &Error{
				Op:      op,
				Kind:    ErrorKindMigrationTargetRequired,
				Message: "products use this category; choose a target category to move them to",
			}
		}
		target, ok := v.categoryByID(targetID)
		if !ok || target.ID == domain.AllCategoryID || target.ID == source.ID {
			return DeleteCategoryResult{}, validationError(op, "target category not found")
		}
		if v.migrator == nil {
			return DeleteCategoryResult{}, errors.New("catalog view: migrator is not configured")
		}
		migration, err := v.migrator.Run(ctx, source, target)
		if migration.ID != "" {
			result.Migration = &migration
		}
		if err != nil {
			if IsKind(err, ErrorKindStoreWriteFailed) {
				return result, err
			}
			return result, &Error{Op: op, Kind: ErrorKindStoreWriteFailed, Message: "migration " + migration.ID + " failed", Err: err}
		}
	}

	if !cmd.Confirm {
		result.Status = DeleteStatusConfirmationRequired
		return result, nil
	}
	if err := v.categoriesRepo.Delete(ctx, source.ID); err != nil {
		return result, storeWriteError(op, err)
	}
	v.logger(ctx, "catalog.category_deleted", map[string]any{"categoryId": source.ID, "name": source.Name})
	result.Status = DeleteStatusDeleted
	return result, nil
}

func (v *CatalogView) categoryByID(id string) (Category, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, c := range v.categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func (v *CatalogView) categoryByName(name string) (Category, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, c := range v.categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

func (v *CatalogView) isReferenced(category string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, p := range v.products {
		if p.Category == category {
			return true
		}
	}
	return false
}
