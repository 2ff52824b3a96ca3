// Package sqlstore implements store.Store on gorm, for postgres or sqlite.
package sqlstore

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/victornm/olympia/internal/store"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type Config struct {
	Dialect      string
	DSN          string
	MaxOpenConns int
}

type Store struct {
	reader
	db      *gorm.DB
	dialect string
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, c Config) (*Store, error) {
	var d gorm.Dialector
	switch c.Dialect {
	case DialectPostgres:
		d = postgres.Open(c.DSN)
	case DialectSQLite:
		d = sqlite.Open(c.DSN)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", c.Dialect)
	}

	db, err := gorm.Open(d, &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", c.Dialect, translate(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}

	switch {
	case c.Dialect == DialectSQLite:
		// sqlite has a single writer and an in-memory database lives in one connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	case c.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}

	s := &Store{
		reader:  reader{db: db},
		db:      db,
		dialect: c.Dialect,
	}

	if err := s.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the tables and unique indexes from the models.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("sqlstore: auto migrate: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return translate(sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{
			reader:  reader{db: tx},
			dialect: s.dialect,
		})
	})
	if err != nil {
		return translate(err)
	}

	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	// Already classified by a nested call.
	for _, sentinel := range []error{store.ErrNotFound, store.ErrDuplicate, store.ErrConflict, store.ErrUnavailable} {
		if stderrors.Is(err, sentinel) {
			return err
		}
	}

	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "40001", pgErr.Code == "40P01":
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return err
}
