package services

import (
	"context"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/auth"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	Category           = domain.Category
	ShareLink          = domain.ShareLink
	ShareEvent         = domain.ShareEvent
	CategoryMigration  = domain.CategoryMigration
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService exposes the category-scoped catalog view to the HTTP layer.
type CatalogService interface {
	Categories() []Category
	Products() []Product
	FilteredProducts(category, term string) []Product
	FindProduct(ctx context.Context, name string) (Product, error)
	AddCategory(ctx context.Context, name string) (Category, error)
	RenameCategoryLabelOnly(ctx context.Context, categoryID, name string) error
	DeleteCategory(ctx context.Context, cmd DeleteCategoryCommand) (DeleteCategoryResult, error)
}

// ShareService builds WhatsApp share links and records share analytics.
type ShareService interface {
	BuildShareLink(ctx context.Context, keys []string) (ShareLink, error)
	Share(ctx context.Context, keys []string) (ShareLink, error)
	ShareSharedPage(ctx context.Context, name string) (ShareLink, error)
}

// UploadService pushes product images to the image host and creates product records.
type UploadService interface {
	Upload(ctx context.Context, cmd UploadCommand) (UploadReport, error)
}

// SessionService hands out per-shopper view state.
type SessionService interface {
	Session(ctx context.Context, shopperID string) (*ShopperSession, error)
	Sweep(ctx context.Context) int
}

// MigrationService reports on and resumes category migration sagas.
type MigrationService interface {
	Get(ctx context.Context, migrationID string) (CategoryMigration, error)
	Resume(ctx context.Context, migrationID string) (CategoryMigration, error)
	ResumeUnfinished(ctx context.Context) error
}

// AuthService signs admins in and out.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, uid string) error
	OnAuthChange(fn func(auth.StateChange)) func()
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
