package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferhub/config"
	"transferhub/pkg/logger"
	"transferhub/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	log  logger.ILogger
}

func New(ctx context.Context, cfg config.Config, log logger.ILogger) (*Store, error) {
	return NewFromURL(ctx, cfg.PostgresURL(), cfg.PostgresMaxConns, log)
}

func NewFromURL(ctx context.Context, url string, maxConns int32, log logger.ILogger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		log.Error("error while parsing Postgres config", logger.Error(err))
		return nil, err
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("failed to connect Postgres", logger.Error(err))
		return nil, err
	}

	if err := migrateUp(url, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Postgres connected")

	return &Store{
		pool: pool,
		log:  log,
	}, nil
}

func migrateUp(url string, log logger.ILogger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		log.Error("migration init error", logger.Error(err))
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return nil
		}
		log.Error("migration up error", logger.Error(err))
		return err
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Truncate wipes dispatch data. Companies survive; their rotation state is left to the caller.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE TABLE assignments, bookings RESTART IDENTITY CASCADE")
	return err
}

func (s *Store) Company() storage.ICompanyStorage       { return NewCompanyRepo(s.pool, s.log) }
func (s *Store) Booking() storage.IBookingStorage       { return NewBookingRepo(s.pool, s.log) }
func (s *Store) Assignment() storage.IAssignmentStorage { return NewAssignmentRepo(s.pool, s.log) }

func (s *Store) InTx(ctx context.Context, fn func(tx storage.ITx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return translateError(err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&txStore{tx: tx, log: s.log}); err != nil {
		return translateError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

type txStore struct {
	tx  pgx.Tx
	log logger.ILogger
}

func (t *txStore) Company() storage.ICompanyStorage       { return NewCompanyRepo(t.tx, t.log) }
func (t *txStore) Booking() storage.IBookingStorage       { return NewBookingRepo(t.tx, t.log) }
func (t *txStore) Assignment() storage.IAssignmentStorage { return NewAssignmentRepo(t.tx, t.log) }
