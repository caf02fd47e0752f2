// Package sqlstore reads EHR immunization data and writes the hl7log ledger over database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

var (
	// ErrLedgerMissing means the hl7log table does not exist
	ErrLedgerMissing = errors.New("no hl7log table, run migrations first")
	// ErrUnsupportedDriver is returned for drivers other than mysql and postgres
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrLockHeld means another run holds the advisory lock
	ErrLockHeld = errors.New("advisory lock held by another session")
)

// Config holds database connection settings
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DB is the EHR database handle
type DB struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	races   *raceCache
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	d, ok := dialectFor(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	switch d.name() {
	case DriverMySQL:
		connector, cerr := mysql.NewConnector(mysqlConfig(cfg))
		if cerr != nil {
			return nil, fmt.Errorf("mysql config: %w", cerr)
		}
		sqlDB = sql.OpenDB(connector)
	case DriverPostgres:
		sqlDB, err = sql.Open("pgx", postgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect to %s on %s: %w", cfg.Name, cfg.Host, err)
	}

	db, err := New(sqlDB, d.name(), logger)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	db.logger.Info("database connected",
		zap.String("driver", d.name()),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)
	return db, nil
}

// New wraps an existing connection pool
func New(sqlDB *sql.DB, driver string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d, ok := dialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	races, err := newRaceCache()
	if err != nil {
		return nil, err
	}
	return &DB{db: sqlDB, dialect: d, logger: logger, races: races}, nil
}

func mysqlConfig(cfg Config) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.Local
	return mc
}

func postgresDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	return u.String()
}

// SQL exposes the pool for migrations
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Driver returns the dialect name
func (d *DB) Driver() string {
	return d.dialect.name()
}

// Ping checks connectivity
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the pool and cache
func (d *DB) Close() error {
	d.races.close()
	return d.db.Close()
}

// CheckLedger verifies the hl7log table exists
func (d *DB) CheckLedger(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM hl7log WHERE 1 = 0`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerMissing, err)
	}
	return rows.Close()
}
