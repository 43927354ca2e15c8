package handlers

import (
	"context"
	"errors"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/services"
)

type stubCatalogService struct {
	categories []services.Category
	products   []services.Product
	findErr    error

	added     []string
	addErr    error
	renamed   map[string]string
	renameErr error

	deleteCmd    services.DeleteCategoryCommand
	deleteResult services.DeleteCategoryResult
	deleteErr    error
}

func (s *stubCatalogService) Categories() []services.Category { return s.categories }
func (s *stubCatalogService) Products() []services.Product    { return s.products }

func (s *stubCatalogService) FilteredProducts(category, term string) []services.Product {
	return services.FilterProducts(s.products, category, term)
}

func (s *stubCatalogService) FindProduct(ctx context.Context, name string) (services.Product, error) {
	if s.findErr != nil {
		return services.Product{}, s.findErr
	}
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return services.Product{}, notFoundRepoError{}
}

func (s *stubCatalogService) AddCategory(ctx context.Context, name string) (services.Category, error) {
	if s.addErr != nil {
		return services.Category{}, s.addErr
	}
	s.added = append(s.added, name)
	return services.Category{ID: "new-id", Name: name}, nil
}

func (s *stubCatalogService) RenameCategoryLabelOnly(ctx context.Context, categoryID, name string) error {
	if s.renameErr != nil {
		return s.renameErr
	}
	if s.renamed == nil {
		s.renamed = make(map[string]string)
	}
	s.renamed[categoryID] = name
	return nil
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, cmd services.DeleteCategoryCommand) (services.DeleteCategoryResult, error) {
	s.deleteCmd = cmd
	return s.deleteResult, s.deleteErr
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

type stubShareService struct {
	keys []string
	name string
	err  error
}

func (s *stubShareService) BuildShareLink(ctx context.Context, keys []string) (services.ShareLink, error) {
	return s.Share(ctx, keys)
}

func (s *stubShareService) Share(ctx context.Context, keys []string) (services.ShareLink, error) {
	if s.err != nil {
		return services.ShareLink{}, s.err
	}
	s.keys = keys
	return services.ShareLink{Kind: "multi", Keys: keys, ShareURLs: keys, Message: "m", URL: "https://wa.me/1?text=m"}, nil
}

func (s *stubShareService) ShareSharedPage(ctx context.Context, name string) (services.ShareLink, error) {
	if s.err != nil {
		return services.ShareLink{}, s.err
	}
	s.name = name
	return services.ShareLink{Kind: "shared_page", Keys: []string{name}, URL: "https://wa.me/1?text=" + name}, nil
}

type stubMigrationService struct {
	migration services.CategoryMigration
	err       error
	resumed   []string
}

func (s *stubMigrationService) Get(ctx context.Context, id string) (services.CategoryMigration, error) {
	if s.err != nil {
		return services.CategoryMigration{}, s.err
	}
	return s.migration, nil
}

func (s *stubMigrationService) Resume(ctx context.Context, id string) (services.CategoryMigration, error) {
	s.resumed = append(s.resumed, id)
	return s.migration, s.err
}

func (s *stubMigrationService) ResumeUnfinished(ctx context.Context) error { return nil }

type stubUploadService struct {
	cmd    services.UploadCommand
	report services.UploadReport
	err    error
}

func (s *stubUploadService) Upload(ctx context.Context, cmd services.UploadCommand) (services.UploadReport, error) {
	s.cmd = cmd
	return s.report, s.err
}

type stubAuthService struct {
	session    auth.Session
	err        error
	signedOut  []string
	signOutErr error
}

func (s *stubAuthService) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	return s.session, s.err
}

func (s *stubAuthService) SignOut(ctx context.Context, uid string) error {
	if s.signOutErr != nil {
		return s.signOutErr
	}
	s.signedOut = append(s.signedOut, uid)
	return nil
}

func (s *stubAuthService) OnAuthChange(fn func(auth.StateChange)) func() { return func() {} }

type stubTokenVerifier struct {
	tokens map[string]string
}

func (s stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	uid, ok := s.tokens[idToken]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &firebaseauth.Token{UID: uid, Claims: map[string]interface{}{"email": uid + "@example.com"}}, nil
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(stubTokenVerifier{tokens: map[string]string{"good-token": "admin-uid"}})
}

var (
	_ services.CatalogService   = (*stubCatalogService)(nil)
	_ services.ShareService     = (*stubShareService)(nil)
	_ services.MigrationService = (*stubMigrationService)(nil)
	_ services.UploadService    = (*stubUploadService)(nil)
	_ services.AuthService      = (*stubAuthService)(nil)
)
