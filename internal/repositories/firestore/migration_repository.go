package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const migrationCollection = "categoryMigrations"

type migrationItemDocument struct {
	Kind        string `firestore:"kind"`
	Source      string `firestore:"source"`
	Destination string `firestore:"destination"`
	State       string `firestore:"state"`
}

type migrationDocument struct {
	CategoryID   string                  `firestore:"categoryId"`
	CategoryName string                  `firestore:"categoryName"`
	TargetID     string                  `firestore:"targetId"`
	TargetName   string                  `firestore:"targetName"`
	State        string                  `firestore:"state"`
	Cursor       int                     `firestore:"cursor"`
	Items        []migrationItemDocument `firestore:"items"`
	Error        string                  `firestore:"error,omitempty"`
	CreatedAt    time.Time               `firestore:"createdAt"`
	UpdatedAt    time.Time               `firestore:"updatedAt"`
}

// MigrationRepository stores category migration sagas so they can be resumed.
type MigrationRepository struct {
	base *pfirestore.BaseRepository[migrationDocument]
}

var _ repositories.MigrationRepository = (*MigrationRepository)(nil)

func NewMigrationRepository(provider *pfirestore.Provider) (*MigrationRepository, error) {
	if provider == nil {
		return nil, errors.New("migration repository requires firestore provider")
	}
	return &MigrationRepository{
		base: pfirestore.NewBaseRepository[migrationDocument](provider, migrationCollection, nil, nil),
	}, nil
}

// Insert creates the saga document. An existing id is a conflict.
func (r *MigrationRepository) Insert(ctx context.Context, migration domain.CategoryMigration) error {
	if err := requireID("migration", migration.ID); err != nil {
		return err
	}
	ref, err := r.base.DocumentRef(ctx, migration.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, toMigrationDocument(migration)); err != nil {
		return pfirestore.WrapError("categoryMigrations.insert", err)
	}
	return nil
}

// Save overwrites the saga document with the current progress.
func (r *MigrationRepository) Save(ctx context.Context, migration domain.CategoryMigration) error {
	if err := requireID("migration", migration.ID); err != nil {
		return err
	}
	return r.base.Set(ctx, migration.ID, toMigrationDocument(migration))
}

func (r *MigrationRepository) FindByID(ctx context.Context, migrationID string) (domain.CategoryMigration, error) {
	if err := requireID("migration", migrationID); err != nil {
		return domain.CategoryMigration{}, err
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(migrationID))
	if err != nil {
		return domain.CategoryMigration{}, err
	}
	return fromMigrationDocument(doc.ID, doc.Data), nil
}

// ListUnfinished returns pending and migrating sagas, oldest first. Failed sagas wait for an explicit
// resume.
func (r *MigrationRepository) ListUnfinished(ctx context.Context) ([]domain.CategoryMigration, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("state", "in", []string{
			string(domain.MigrationStatePending),
			string(domain.MigrationStateMigrating),
		})
	})
	if err != nil {
		return nil, err
	}
	migrations := make([]domain.CategoryMigration, 0, len(docs))
	for _, doc := range docs {
		migrations = append(migrations, fromMigrationDocument(doc.ID, doc.Data))
	}
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].CreatedAt.Before(migrations[j].CreatedAt)
	})
	return migrations, nil
}

func toMigrationDocument(m domain.CategoryMigration) migrationDocument {
	items := make([]migrationItemDocument, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, migrationItemDocument{
			Kind:        string(item.Kind),
			Source:      item.Source,
			Destination: item.Destination,
			State:       string(item.State),
		})
	}
	return migrationDocument{
		CategoryID:   m.CategoryID,
		CategoryName: m.CategoryName,
		TargetID:     m.TargetID,
		TargetName:   m.TargetName,
		State:        string(m.State),
		Cursor:       m.Cursor,
		Items:        items,
		Error:        m.Error,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func fromMigrationDocument(id string, doc migrationDocument) domain.CategoryMigration {
	items := make([]domain.MigrationItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.MigrationItem{
			Kind:        domain.MigrationItemKind(item.Kind),
			Source:      item.Source,
			Destination: item.Destination,
			State:       domain.MigrationState(item.State),
		})
	}
	return domain.CategoryMigration{
		ID:           id,
		CategoryID:   doc.CategoryID,
		CategoryName: doc.CategoryName,
		TargetID:     doc.TargetID,
		TargetName:   doc.TargetName,
		State:        domain.MigrationState(doc.State),
		Cursor:       doc.Cursor,
		Items:        items,
		Error:        doc.Error,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
