// Package postgres is the pgx implementation of store.Store.
package postgres

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/olympia/internal/store"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	classConnectionException = "08"
)

type Config struct {
	Addr     string
	User     string
	Pass     string
	Name     string
	MaxConns int32
}

type Store struct {
	reader
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects a pool and pings it once.
func Open(ctx context.Context, c Config) (*Store, error) {
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.MaxConns > 0 {
		cc.MaxConns = c.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, translate(err)
	}

	s := New(pool)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		reader: reader{q: pool},
		pool:   pool,
	}
}

// EnsureSchema creates the tables and indexes the store relies on, including the
// (round_question_id, player_id) uniqueness that makes decisions at-most-once.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", translate(err))
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translate(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
				err = stderrors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(&pgTx{reader: reader{q: tx}}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}

	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// translate maps driver errors onto the store sentinels, keeping the original in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnectNow,
			strings.HasPrefix(pgErr.Code, classConnectionException):
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		return err
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if stderrors.As(err, &connErr) || stderrors.As(err, &netErr) ||
		pgconn.Timeout(err) || stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return err
}
