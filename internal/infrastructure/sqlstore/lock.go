package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Lock is a held advisory lock bound to one pooled connection
type Lock struct {
	conn    *sql.Conn
	dialect dialect
	name    string
	logger  *zap.Logger
}

// TryLock takes a named advisory lock without waiting. The lock lives on a
// pinned connection until Release; ErrLockHeld is returned if another
// session owns it.
func (d *DB) TryLock(ctx context.Context, name string) (*Lock, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}

	var acquired sql.NullBool
	err = conn.QueryRowContext(ctx, d.dialect.rebind(d.dialect.tryLock()), d.dialect.lockArg(name)).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !acquired.Valid || !acquired.Bool {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	d.logger.Debug("advisory lock acquired", zap.String("lock", name))
	return &Lock{conn: conn, dialect: d.dialect, name: name, logger: d.logger}, nil
}

// Release frees the lock and returns the connection to the pool
func (l *Lock) Release(ctx context.Context) error {
	defer l.conn.Close()

	var released sql.NullBool
	if err := l.conn.QueryRowContext(ctx, l.dialect.rebind(l.dialect.unlock()), l.dialect.lockArg(l.name)).Scan(&released); err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	l.logger.Debug("advisory lock released", zap.String("lock", l.name))
	return nil
}
