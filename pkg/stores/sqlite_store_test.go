package stores

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates a file-backed store in a temp dir.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestClaimCheckHonoursInterval(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	ok, err := store.ClaimCheck(ctx, "github.com/fmtlib/fmt", 24*time.Hour)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}

	clock = clock.Add(23 * time.Hour)
	ok, err = store.ClaimCheck(ctx, "github.com/fmtlib/fmt", 24*time.Hour)
	if err != nil || ok {
		t.Fatalf("claim inside window = %v, %v", ok, err)
	}

	ok, err = store.ClaimCheck(ctx, "github.com/gabime/spdlog", 24*time.Hour)
	if err != nil || !ok {
		t.Fatalf("claim for another key = %v, %v", ok, err)
	}

	clock = clock.Add(time.Hour)
	ok, err = store.ClaimCheck(ctx, "github.com/fmtlib/fmt", 24*time.Hour)
	if err != nil || !ok {
		t.Fatalf("claim after window = %v, %v", ok, err)
	}

	rec, err := store.GetCheck(ctx, "github.com/fmtlib/fmt")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.LastCheckedAt.Equal(clock) || rec.Status != CheckStatusPending {
		t.Errorf("record = %+v", rec)
	}
}

func TestClaimCheckConcurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimCheck(ctx, "dep", time.Hour)
			if err != nil {
				t.Errorf("ClaimCheck() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claimed != 1 {
		t.Errorf("%d workers claimed the check, want 1", claimed)
	}
}

func TestRecordCheckResult(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetCheck(ctx, "dep"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCheck() error = %v, want ErrNotFound", err)
	}
	if _, err := store.ClaimCheck(ctx, "dep", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordCheckResult(ctx, "dep", CheckStatusUpdate, "v1.3.0"); err != nil {
		t.Fatal(err)
	}
	rec, err := store.GetCheck(ctx, "dep")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != CheckStatusUpdate || rec.Latest != "v1.3.0" {
		t.Errorf("record = %+v", rec)
	}

	list, err := store.ListChecks(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListChecks() = %v, %v", list, err)
	}
}

func TestPassHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		p := &Pass{ID: id, Project: "demo", ProjectDir: "/src/demo", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreatePass(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CompletePass(ctx, "p2", PassStatusFailed, "ConfigurationError", "add_source_dir: missing"); err != nil {
		t.Fatal(err)
	}
	if err := store.CompletePass(ctx, "p3", PassStatusSucceeded, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.CompletePass(ctx, "nope", PassStatusSucceeded, "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompletePass(nope) error = %v", err)
	}

	passes, err := store.ListPasses(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 3 || passes[0].ID != "p3" {
		t.Fatalf("passes = %+v", passes)
	}
	if passes[0].CompletedAt == nil || passes[0].Error != nil {
		t.Errorf("p3 = %+v", passes[0])
	}
	if p2 := passes[1]; p2.Status != PassStatusFailed || p2.ErrorKind == nil || *p2.ErrorKind != "ConfigurationError" {
		t.Errorf("p2 = %+v", p2)
	}
	if passes[2].Status != PassStatusRunning || passes[2].CompletedAt != nil {
		t.Errorf("p1 = %+v", passes[2])
	}

	n, err := store.PrunePasses(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("PrunePasses() = %d, %v", n, err)
	}
	passes, _ = store.ListPasses(ctx, 10)
	if len(passes) != 1 || passes[0].ID != "p3" {
		t.Errorf("after prune = %+v", passes)
	}
}
