package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/storage"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const (
	defaultMigrationStepTimeout = 30 * time.Second
	migrationIDPrefix           = "mig_"
)

// MigrationRunnerDeps bundles collaborators for category migrations.
type MigrationRunnerDeps struct {
	Migrations  repositories.MigrationRepository
	Products    repositories.ProductRepository
	Blobs       storage.BlobStore
	ImagePrefix string
	StepTimeout time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// MigrationRunner executes category migrations as persisted sagas. Items run strictly in order and the
// saga records a cursor after every item so an interrupted run can resume where it stopped.
type MigrationRunner struct {
	migrations  repositories.MigrationRepository
	products    repositories.ProductRepository
	blobs       storage.BlobStore
	prefix      string
	stepTimeout time.Duration
	clock       func() time.Time
	newID       func() string
	logger      func(ctx context.Context, event string, fields map[string]any)

	// mu allows a single saga to execute at a time.
	mu sync.Mutex
}

var (
	_ CategoryMigrator = (*MigrationRunner)(nil)
	_ MigrationService = (*MigrationRunner)(nil)
)

// NewMigrationRunner validates dependencies and returns a runner.
func NewMigrationRunner(deps MigrationRunnerDeps) (*MigrationRunner, error) {
	if deps.Migrations == nil {
		return nil, errors.New("migration runner: migration repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("migration runner: product repository is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("migration runner: blob store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return migrationIDPrefix + ulid.Make().String() }
	}
	timeout := deps.StepTimeout
	if timeout <= 0 {
		timeout = defaultMigrationStepTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &MigrationRunner{
		migrations:  deps.Migrations,
		products:    deps.Products,
		blobs:       deps.Blobs,
		prefix:      deps.ImagePrefix,
		stepTimeout: timeout,
		clock:       func() time.Time { return clock().UTC() },
		newID:       newID,
		logger:      logger,
	}, nil
}

// Plan lists the items a migration from source to target would apply: legacy image blobs named
// "<source>--..." first, then every product tagged with source.
func (r *MigrationRunner) Plan(ctx context.Context, source, target Category) (CategoryMigration, error) {
	const op = "migration.plan"
	if strings.TrimSpace(source.Name) == "" || strings.TrimSpace(target.Name) == "" {
		return CategoryMigration{}, validationError(op, "source and target categories are required")
	}
	if source.Name == target.Name {
		return CategoryMigration{}, validationError(op, "source and target must differ")
	}

	objects, err := r.blobs.List(ctx, r.prefix)
	if err != nil {
		return CategoryMigration{}, fmt.Errorf("%s: list blobs: %w", op, err)
	}
	var items []domain.MigrationItem
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Path, r.prefix)
		if strings.Contains(name, "/") {
			continue
		}
		renamed, ok := storage.RetagName(name, source.Name, target.Name)
		if !ok {
			continue
		}
		items = append(items, domain.MigrationItem{
			Kind:        domain.MigrationItemBlob,
			Source:      obj.Path,
			Destination: r.prefix + renamed,
			State:       domain.MigrationStatePending,
		})
	}

	products, err := r.products.ListByCategory(ctx, source.Name)
	if err != nil {
		return CategoryMigration{}, fmt.Errorf("%s: list products: %w", op, err)
	}
	for _, p := range products {
		items = append(items, domain.MigrationItem{
			Kind:        domain.MigrationItemProduct,
			Source:      p.ID,
			Destination: target.Name,
			State:       domain.MigrationStatePending,
		})
	}

	now := r.clock()
	return CategoryMigration{
		ID:           r.newID(),
		CategoryID:   source.ID,
		CategoryName: source.Name,
		TargetID:     target.ID,
		TargetName:   target.Name,
		State:        domain.MigrationStatePending,
		Items:        items,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Run plans, persists and executes a migration. On failure the returned saga carries its id and the
// committed prefix.
func (r *MigrationRunner) Run(ctx context.Context, source, target Category) (CategoryMigration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	migration, err := r.Plan(ctx, source, target)
	if err != nil {
		return CategoryMigration{}, err
	}
	if err := r.detached(ctx, func(stepCtx context.Context) error {
		return r.migrations.Insert(stepCtx, migration)
	}); err != nil {
		return CategoryMigration{}, storeWriteError("migration.run", err)
	}
	r.logger(ctx, "migration.started", map[string]any{
		"migrationId": migration.ID,
		"from":        source.Name,
		"to":          target.Name,
		"items":       len(migration.Items),
	})
	return r.execute(ctx, migration)
}

// Resume continues a saga from its cursor. Committed sagas are returned unchanged.
func (r *MigrationRunner) Resume(ctx context.Context, migrationID string) (CategoryMigration, error) {
	migrationID = strings.TrimSpace(migrationID)
	if migrationID == "" {
		return CategoryMigration{}, validationError("migration.resume", "migration id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	migration, err := r.migrations.FindByID(ctx, migrationID)
	if err != nil {
		return CategoryMigration{}, err
	}
	if migration.Finished() {
		return migration, nil
	}
	return r.execute(ctx, migration)
}

// ResumeUnfinished resumes every pending or interrupted saga, oldest first. It keeps going after a
// failure and returns the joined errors.
func (r *MigrationRunner) ResumeUnfinished(ctx context.Context) error {
	pending, err := r.migrations.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("migration.resumeUnfinished: %w", err)
	}
	var errs []error
	for _, m := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := r.Resume(ctx, m.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the saga status.
func (r *MigrationRunner) Get(ctx context.Context, migrationID string) (CategoryMigration, error) {
	migrationID = strings.TrimSpace(migrationID)
	if migrationID == "" {
		return CategoryMigration{}, validationError("migration.get", "migration id is required")
	}
	return r.migrations.FindByID(ctx, migrationID)
}

func (r *MigrationRunner) execute(ctx context.Context, m CategoryMigration) (CategoryMigration, error) {
	const op = "migration.execute"
	m.Error = ""
	for i := m.Cursor; i < len(m.Items); i++ {
		m.State = domain.MigrationStateMigrating
		m.Cursor = i
		m.Items[i].State = domain.MigrationStateMigrating
		if err := r.save(ctx, &m); err != nil {
			return m, storeWriteError(op, err)
		}

		if err := r.apply(ctx, m.Items[i]); err != nil {
			m.State = domain.MigrationStateFailed
			m.Items[i].State = domain.MigrationStatePending
			m.Error = err.Error()
			r.logger(ctx, "migration.step_failed", map[string]any{
				"migrationId": m.ID,
				"cursor":      i,
				"kind":        string(m.Items[i].Kind),
				"source":      m.Items[i].Source,
				"error":       err,
			})
			if saveErr := r.save(ctx, &m); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
			return m, &Error{Op: op, Kind: ErrorKindStoreWriteFailed, Message: "migration " + m.ID + " failed", Err: err}
		}

		m.Items[i].State = domain.MigrationStateCommitted
		m.Cursor = i + 1
		if err := r.save(ctx, &m); err != nil {
			return m, storeWriteError(op, err)
		}
	}

	m.State = domain.MigrationStateCommitted
	if err := r.save(ctx, &m); err != nil {
		return m, storeWriteError(op, err)
	}
	r.logger(ctx, "migration.committed", map[string]any{"migrationId": m.ID, "items": len(m.Items)})
	return m, nil
}

func (r *MigrationRunner) apply(ctx context.Context, item domain.MigrationItem) error {
	return r.detached(ctx, func(stepCtx context.Context) error {
		return r.applyItem(stepCtx, item)
	})
}

func (r *MigrationRunner) applyItem(stepCtx context.Context, item domain.MigrationItem) error {
	switch item.Kind {
	case domain.MigrationItemBlob:
		err := r.blobs.Copy(stepCtx, item.Source, item.Destination)
		if errors.Is(err, storage.ErrObjectNotFound) {
			// A previous attempt may have moved the blob before the cursor was saved.
			exists, existsErr := r.blobs.Exists(stepCtx, item.Destination)
			if existsErr != nil {
				return existsErr
			}
			if exists {
				return nil
			}
			return fmt.Errorf("blob %s: %w", item.Source, err)
		}
		if err != nil {
			return err
		}
		return r.blobs.Delete(stepCtx, item.Source)
	case domain.MigrationItemProduct:
		err := r.products.UpdateCategory(stepCtx, item.Source, item.Destination)
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// The product was deleted since planning; nothing left to retag.
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown migration item kind %q", item.Kind)
	}
}

func (r *MigrationRunner) save(ctx context.Context, m *CategoryMigration) error {
	m.UpdatedAt = r.clock()
	snapshot := *m
	snapshot.Items = append([]domain.MigrationItem(nil), m.Items...)
	return r.detached(ctx, func(stepCtx context.Context) error {
		return r.migrations.Save(stepCtx, snapshot)
	})
}

// detached runs fn on a context that ignores request cancellation but is bounded by the step timeout,
// so an issued write is never abandoned half-way.
func (r *MigrationRunner) detached(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stepTimeout)
	defer cancel()
	return fn(stepCtx)
}
