package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/logging"
)

// Store wraps the relational database with typed queries.
type Store struct {
	db     *gorm.DB
	logger *logging.Logger
}

// Open connects to the database identified by dsn and migrates the schema.
// A dsn of ":memory:" opens an in-process sqlite database private to the
// returned Store.
func Open(dsn string, logger *logging.Logger) (*Store, error) {
	var dialector gorm.Dialector
	if dsn == ":memory:" {
		// gorm keeps a connection pool, so the database must outlive any
		// single connection. A named shared-cache database does that while
		// the random name keeps each Open isolated from its siblings.
		name := fmt.Sprintf("file:docdex-%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
		dialector = sqlite.Open(name)
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.AutoMigrate(
		&User{},
		&Collection{},
		&UserCollection{},
		&Resource{},
		&TextChunk{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db, logger: logger.Named("store")}, nil
}

// DB exposes the underlying handle for transaction composition.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside a database transaction. The transaction covers
// only metadata writes; index calls happen after commit.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Page describes a pagination request. Pages are 1-based.
type Page struct {
	Number int
	Size   int
}

// Validate rejects out-of-range pagination.
func (p Page) Validate() error {
	if p.Number < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", apperr.ErrInvalidInput, p.Number)
	}
	if p.Size < 1 || p.Size > 100 {
		return fmt.Errorf("%w: page size must be in [1,100], got %d", apperr.ErrInvalidInput, p.Size)
	}
	return nil
}

func (p Page) offset() int { return p.Size * (p.Number - 1) }

func (s *Store) logQueryErr(ctx context.Context, op string, err error) {
	s.logger.Error(ctx, "query failed", zap.String("op", op), zap.Error(err))
}
