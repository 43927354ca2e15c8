//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	pconfig "github.com/nitu-designer/lehangas/internal/platform/config"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestCatalogRepositoriesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	categories, err := NewCategoryRepository(provider)
	if err != nil {
		t.Fatalf("category repository: %v", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("product repository: %v", err)
	}

	bridal, err := categories.Create(ctx, "Bridal")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	_, err = categories.Create(ctx, "Bridal")
	var dupErr repositories.RepositoryError
	if !errors.As(err, &dupErr) || !dupErr.IsConflict() {
		t.Fatalf("expected conflict for duplicate category, got %v", err)
	}
	if err := categories.Rename(ctx, bridal.ID, "Bridal Wear"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	created, err := products.Create(ctx, domain.Product{
		Name:       "Bridal--red--1",
		Category:   "Bridal",
		ImageURL:   "https://i.ibb.co/x/red.jpg",
		UploadedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	// Legacy record without a category never surfaces.
	if _, _, err := client.Collection(productCollection).Add(ctx, map[string]any{"name": "orphan", "image": "QUJD"}); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	got, err := products.FindByName(ctx, "Bridal--red--1")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, got.ID)
	}
	_, err = products.FindByName(ctx, "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := products.UpdateCategory(ctx, created.ID, "Party"); err != nil {
		t.Fatalf("update category: %v", err)
	}
	party, err := products.ListByCategory(ctx, "Party")
	if err != nil || len(party) != 1 {
		t.Fatalf("expected one party product, got %d (%v)", len(party), err)
	}
	all, err := products.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected orphan to be skipped, got %d (%v)", len(all), err)
	}

	list, err := categories.List(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Bridal Wear" {
		t.Fatalf("unexpected categories %#v (%v)", list, err)
	}
	if err := categories.Delete(ctx, bridal.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestMigrationRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := newEmulatorProvider(t)
	ctx := context.Background()

	repo, err := NewMigrationRepository(provider)
	if err != nil {
		t.Fatalf("migration repository: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	migration := domain.CategoryMigration{
		ID:           "01JA0000000000000000000000",
		CategoryName: "Bridal",
		TargetName:   "Party",
		State:        domain.MigrationStatePending,
		Items: []domain.MigrationItem{
			{Kind: domain.MigrationItemBlob, Source: "lehangaImages/Bridal--a", Destination: "lehangaImages/Party--a", State: domain.MigrationStatePending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Insert(ctx, migration); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = repo.Insert(ctx, migration)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	unfinished, err := repo.ListUnfinished(ctx)
	if err != nil || len(unfinished) != 1 {
		t.Fatalf("expected one unfinished saga, got %d (%v)", len(unfinished), err)
	}

	migration.State = domain.MigrationStateCommitted
	migration.Cursor = 1
	migration.Items[0].State = domain.MigrationStateCommitted
	if err := repo.Save(ctx, migration); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := repo.FindByID(ctx, migration.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if loaded.Cursor != 1 || loaded.Items[0].State != domain.MigrationStateCommitted {
		t.Fatalf("unexpected saga %#v", loaded)
	}
	unfinished, _ = repo.ListUnfinished(ctx)
	if len(unfinished) != 0 {
		t.Fatalf("committed saga should not be listed")
	}
}

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "catalog-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
