package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeDBLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeDBLock) lock(_ context.Context, name string) (func(context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[name] {
		return nil, fmt.Errorf("%s: %w", name, ErrRunInProgress)
	}
	f.held[name] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, name)
		return nil
	}, nil
}

func TestAcquireContention(t *testing.T) {
	dir := t.TempDir()
	db := &fakeDBLock{}
	g := NewRunGuard(dir, db.lock, nil)
	ctx := context.Background()

	run, err := g.Acquire(ctx, "vxu")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if run.ID == "" {
		t.Error("expected a run id")
	}

	// a second guard models another process on the same host
	other := NewRunGuard(dir, db.lock, nil)
	if _, err := other.Acquire(ctx, "vxu"); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	if _, err := other.Acquire(ctx, "results"); err != nil {
		t.Fatalf("different job must not contend: %v", err)
	}

	if err := run.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := other.Acquire(ctx, "vxu")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again.Release(ctx)
}

func TestDatabaseLockHeldElsewhere(t *testing.T) {
	db := &fakeDBLock{held: map[string]bool{"iis-vxu": true}}
	g := NewRunGuard(t.TempDir(), db.lock, nil)

	_, err := g.Acquire(context.Background(), "vxu")
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	// the file lock must have been dropped
	run, err := NewRunGuard(g.dir, nil, nil).Acquire(context.Background(), "vxu")
	if err != nil {
		t.Fatalf("file lock leaked: %v", err)
	}
	run.Release(context.Background())
}

func TestDoReleases(t *testing.T) {
	g := NewRunGuard(t.TempDir(), nil, nil)
	ctx := context.Background()

	called := false
	err := g.Do(ctx, "vxu", func(ctx context.Context, run *Run) error {
		called = true
		if run.Job != "vxu" {
			t.Errorf("unexpected job %q", run.Job)
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected fn error, got %v", err)
	}
	if !called {
		t.Fatal("fn not called")
	}

	if err := g.Do(ctx, "vxu", func(context.Context, *Run) error { return nil }); err != nil {
		t.Fatalf("lock not released after Do: %v", err)
	}
}
