// Package idempotency keeps batch runs from overlapping.
// A run holds a lock file on the host and an optional database advisory lock
// for its whole duration; the ledger's unique key remains the final guard.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrRunInProgress indicates another run of the same job holds a lock
var ErrRunInProgress = errors.New("run already in progress")

// LockFunc takes a named cross-host lock without waiting and returns its release.
// Implementations return an error wrapping ErrRunInProgress when the lock is held.
type LockFunc func(ctx context.Context, name string) (func(context.Context) error, error)

// Run is a held job lock
type Run struct {
	ID        string
	Job       string
	StartedAt time.Time

	file      *flock.Flock
	releaseDB func(context.Context) error
	logger    *zap.Logger
}

// RunGuard serializes runs of each job
type RunGuard struct {
	dir    string
	lockDB LockFunc
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRunGuard creates a guard keeping lock files in dir. lockDB may be nil.
func NewRunGuard(dir string, lockDB LockFunc, logger *zap.Logger) *RunGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunGuard{
		dir:    dir,
		lockDB: lockDB,
		logger: logger,
		tracer: otel.Tracer("runguard"),
	}
}

// LockPath returns the lock file for a job
func (g *RunGuard) LockPath(job string) string {
	return filepath.Join(g.dir, "iis-"+job+".lock")
}

// Acquire takes the file lock, then the database lock
func (g *RunGuard) Acquire(ctx context.Context, job string) (*Run, error) {
	ctx, span := g.tracer.Start(ctx, "run_acquire", trace.WithAttributes(attribute.String("job", job)))
	defer span.End()

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := g.LockPath(job)
	f := flock.New(path)
	locked, err := f.TryLock()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s (%s): %w", job, path, ErrRunInProgress)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Job:       job,
		StartedAt: time.Now(),
		file:      f,
		logger:    g.logger,
	}

	if g.lockDB != nil {
		release, err := g.lockDB(ctx, "iis-"+job)
		if err != nil {
			f.Unlock()
			span.RecordError(err)
			return nil, fmt.Errorf("%s database lock: %w", job, err)
		}
		run.releaseDB = release
	}

	span.SetAttributes(attribute.String("run_id", run.ID))
	g.logger.Debug("run lock acquired", zap.String("job", job), zap.String("run_id", run.ID))
	return run, nil
}

// Release drops both locks
func (r *Run) Release(ctx context.Context) error {
	var dbErr error
	if r.releaseDB != nil {
		dbErr = r.releaseDB(ctx)
		r.releaseDB = nil
	}
	fileErr := r.file.Unlock()
	r.logger.Debug("run lock released",
		zap.String("job", r.Job),
		zap.String("run_id", r.ID),
		zap.Duration("held", time.Since(r.StartedAt)))
	return errors.Join(dbErr, fileErr)
}

// Do runs fn while holding the job's locks
func (g *RunGuard) Do(ctx context.Context, job string, fn func(ctx context.Context, run *Run) error) error {
	run, err := g.Acquire(ctx, job)
	if err != nil {
		return err
	}
	defer func() {
		if err := run.Release(context.WithoutCancel(ctx)); err != nil {
			g.logger.Warn("failed to release run lock", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx, run)
}
