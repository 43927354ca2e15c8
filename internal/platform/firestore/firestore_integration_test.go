//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/nitu-designer/lehangas/internal/platform/config"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type categoryDoc struct {
	Name string `firestore:"name"`
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

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "test-project", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[categoryDoc](provider, "categories", nil, nil)

	id, err := repo.Create(ctx, categoryDoc{Name: "Bridal"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Update(ctx, id, []firestore.Update{{Path: "name", Value: "Bridal Wear"}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	doc, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Name != "Bridal Wear" || doc.UpdateTime.IsZero() {
		t.Fatalf("unexpected document %+v", doc)
	}

	if err := repo.Update(ctx, "missing", []firestore.Update{{Path: "name", Value: "x"}}); err == nil {
		t.Fatalf("expected not found error")
	} else {
		var cls interface{ IsNotFound() bool }
		if !errors.As(err, &cls) || !cls.IsNotFound() {
			t.Fatalf("expected not found classification, got %v", err)
		}
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "name", Value: "Festive"}})
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query { return q.Where("name", "==", "Festive") })
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected one festive category, got %d (%v)", len(docs), err)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestWatchIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	decode := func(_ context.Context, snap *firestore.DocumentSnapshot) (categoryDoc, error) {
		var doc categoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return doc, err
		}
		if doc.Name == "" {
			return doc, pfirestore.ErrSkipDocument
		}
		return doc, nil
	}
	repo := pfirestore.NewBaseRepository[categoryDoc](provider, "watched", nil, decode)

	updates := make(chan int, 16)
	sub, err := repo.Watch(ctx, nil, func(docs []pfirestore.Document[categoryDoc]) {
		updates <- len(docs)
	}, nil)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	waitFor := func(want int) {
		t.Helper()
		for {
			select {
			case got := <-updates:
				if got == want {
					return
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %d documents", want)
			}
		}
	}

	waitFor(0)
	if _, err := repo.Create(ctx, categoryDoc{Name: "Lehenga"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Create(ctx, categoryDoc{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	waitFor(1)

	sub.Close()
	sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected subscription to be stopped after Close")
	}
	if sub.Err() != nil {
		t.Fatalf("expected clean stop, got %v", sub.Err())
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
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

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
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
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
