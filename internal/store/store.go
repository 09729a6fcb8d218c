// Package store owns the inventory database: the product table plus the
// user and stock audit tables that sit next to it.
//
// Duplicate names and unknown names are reported as booleans. Every other
// failure is an *Error that matches ErrUnavailable.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pharmacy_inventory/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var (
	// ErrUnavailable matches every storage fault returned by the store.
	ErrUnavailable = errors.New("inventory storage unavailable")
	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Error is a storage fault raised while running Op.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }

func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Config selects the database. DSN is a file path for sqlite.
type Config struct {
	Driver string
	DSN    string
	Debug  bool
}

// Store is the single point of truth for persisted rows.
type Store struct {
	mu     sync.RWMutex
	db     *gorm.DB
	driver string
}

// Open connects to the configured database. Tables are created by Initialize.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fault("open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fault("open", err)
	}
	if cfg.Driver == DriverSQLite {
		// one connection: writers serialize here instead of hitting SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db, driver: cfg.Driver}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("store: empty DSN")
	}
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, errors.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

// Driver reports which database the store talks to.
func (s *Store) Driver() string { return s.driver }

func (s *Store) conn(ctx context.Context, op string) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fault(op, ErrClosed)
	}
	return s.db.WithContext(ctx), nil
}

// Initialize creates missing tables. Safe to call on every startup.
func (s *Store) Initialize(ctx context.Context) error {
	db, err := s.conn(ctx, "initialize")
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&model.Product{}, &model.User{}, &model.StockAudit{}); err != nil {
		return fault("initialize", errors.Wrap(err, "auto migrate"))
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn(ctx, "ping")
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fault("ping", err)
	}
	return fault("ping", sqlDB.PingContext(ctx))
}

// Close releases the connection. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return fault("close", err)
	}
	return fault("close", sqlDB.Close())
}

// isUniqueViolation also matches drivers that don't translate their errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique") || strings.Contains(s, "Duplicate entry")
}
