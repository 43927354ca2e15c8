package repositories

import (
	"context"

	domain "github.com/nitu-designer/lehangas/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// Subscription is a live collection listener. Close is idempotent.
type Subscription interface {
	Close()
}

// ProductRepository reads catalog products and applies the few writes products allow.
type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Product, error)
	FindByName(ctx context.Context, name string) (domain.Product, error)
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	UpdateCategory(ctx context.Context, productID string, category string) error
	// Subscribe delivers the complete product list on start and after every change.
	Subscribe(ctx context.Context, handler func([]domain.Product), onError func(error)) (Subscription, error)
}

// CategoryRepository persists category labels.
type CategoryRepository interface {
	List(ctx context.Context) ([]domain.Category, error)
	Create(ctx context.Context, name string) (domain.Category, error)
	Rename(ctx context.Context, categoryID string, name string) error
	Delete(ctx context.Context, categoryID string) error
	Subscribe(ctx context.Context, handler func([]domain.Category), onError func(error)) (Subscription, error)
}

// ShareEventRepository appends share analytics records.
type ShareEventRepository interface {
	Append(ctx context.Context, event domain.ShareEvent) error
}

// AdminContactRepository looks up the storefront owner's contact number.
type AdminContactRepository interface {
	FindAdmin(ctx context.Context) (domain.AdminContact, error)
}

// MigrationRepository persists category migration sagas.
type MigrationRepository interface {
	Insert(ctx context.Context, migration domain.CategoryMigration) error
	Save(ctx context.Context, migration domain.CategoryMigration) error
	FindByID(ctx context.Context, migrationID string) (domain.CategoryMigration, error)
	ListUnfinished(ctx context.Context) ([]domain.CategoryMigration, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
