package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

type stubRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.err.Error() }
func (e *stubRepoError) Unwrap() error       { return e.err }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundError(what string) error {
	return &stubRepoError{err: fmt.Errorf("%s not found", what), notFound: true}
}

type stubSubscription struct {
	mu     sync.Mutex
	closed int
}

func (s *stubSubscription) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

type stubProductRepository struct {
	mu        sync.Mutex
	products  []domain.Product
	nextID    int
	createErr error
	// failUpdate returns an error for the listed product ids until cleared.
	failUpdate map[string]error
	updates    []string
	sub        *stubSubscription
	subErr     error
}

var _ repositories.ProductRepository = (*stubProductRepository)(nil)

func (s *stubProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.products...), nil
}

func (s *stubProductRepository) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProductRepository) FindByName(ctx context.Context, name string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Product{}, notFoundError("product")
}

func (s *stubProductRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.Product{}, s.createErr
	}
	s.nextID++
	product.ID = fmt.Sprintf("p%d", s.nextID)
	s.products = append(s.products, product)
	return product, nil
}

func (s *stubProductRepository) UpdateCategory(ctx context.Context, productID string, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdate[productID]; err != nil {
		return err
	}
	for i := range s.products {
		if s.products[i].ID == productID {
			s.products[i].Category = category
			s.updates = append(s.updates, productID)
			return nil
		}
	}
	return notFoundError("product")
}

func (s *stubProductRepository) Subscribe(ctx context.Context, handler func([]domain.Product), onError func(error)) (repositories.Subscription, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	products, _ := s.List(ctx)
	handler(products)
	s.sub = &stubSubscription{}
	return s.sub, nil
}

func (s *stubProductRepository) categoryCount(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.products {
		if p.Category == category {
			n++
		}
	}
	return n
}

type stubCategoryRepository struct {
	mu         sync.Mutex
	categories []domain.Category
	nextID     int
	createErr  error
	deleteErr  error
	deleted    []string
	renamed    map[string]string
	sub        *stubSubscription
}

var _ repositories.CategoryRepository = (*stubCategoryRepository)(nil)

func (s *stubCategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Category(nil), s.categories...), nil
}

func (s *stubCategoryRepository) Create(ctx context.Context, name string) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.Category{}, s.createErr
	}
	s.nextID++
	created := domain.Category{ID: fmt.Sprintf("c%d", s.nextID), Name: name}
	s.categories = append(s.categories, created)
	return created, nil
}

func (s *stubCategoryRepository) Rename(ctx context.Context, categoryID string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renamed == nil {
		s.renamed = make(map[string]string)
	}
	for i := range s.categories {
		if s.categories[i].ID == categoryID {
			s.categories[i].Name = name
			s.renamed[categoryID] = name
			return nil
		}
	}
	return notFoundError("category")
}

func (s *stubCategoryRepository) Delete(ctx context.Context, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i := range s.categories {
		if s.categories[i].ID == categoryID {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			s.deleted = append(s.deleted, categoryID)
			return nil
		}
	}
	return notFoundError("category")
}

func (s *stubCategoryRepository) Subscribe(ctx context.Context, handler func([]domain.Category), onError func(error)) (repositories.Subscription, error) {
	categories, _ := s.List(ctx)
	handler(categories)
	s.sub = &stubSubscription{}
	return s.sub, nil
}

type stubMigrationRepository struct {
	mu         sync.Mutex
	migrations map[string]domain.CategoryMigration
	order      []string
	saves      int
	saveErr    error
}

var _ repositories.MigrationRepository = (*stubMigrationRepository)(nil)

func newStubMigrationRepository() *stubMigrationRepository {
	return &stubMigrationRepository{migrations: make(map[string]domain.CategoryMigration)}
}

func (s *stubMigrationRepository) Insert(ctx context.Context, m domain.CategoryMigration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.migrations[m.ID]; exists {
		return &stubRepoError{err: errors.New("migration exists"), conflict: true}
	}
	s.migrations[m.ID] = cloneMigration(m)
	s.order = append(s.order, m.ID)
	return nil
}

func (s *stubMigrationRepository) Save(ctx context.Context, m domain.CategoryMigration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.migrations[m.ID] = cloneMigration(m)
	return nil
}

func (s *stubMigrationRepository) FindByID(ctx context.Context, id string) (domain.CategoryMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return domain.CategoryMigration{}, notFoundError("migration")
	}
	return cloneMigration(m), nil
}

func (s *stubMigrationRepository) ListUnfinished(ctx context.Context) ([]domain.CategoryMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CategoryMigration
	for _, id := range s.order {
		m := s.migrations[id]
		if m.State == domain.MigrationStatePending || m.State == domain.MigrationStateMigrating {
			out = append(out, cloneMigration(m))
		}
	}
	return out, nil
}

func cloneMigration(m domain.CategoryMigration) domain.CategoryMigration {
	m.Items = append([]domain.MigrationItem(nil), m.Items...)
	return m
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{event: event, fields: fields})
	r.mu.Unlock()
}

func (r *eventRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return true
		}
	}
	return false
}
