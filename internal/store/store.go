// Package store provides typed repositories over the relational schema. Every
// state transition on tokens and notifications is a conditional update so that
// concurrent callers resolve to a single winner.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store bundles the repositories backed by a single database handle.
type Store struct {
	db *gorm.DB

	Accounts      AccountStore
	Profiles      ProfileStore
	Invites       InviteStore
	Confirmations ConfirmationStore
	Notifications NotificationStore
	Forms         FormStore
	Xero          XeroStore
}

// New constructs gorm-backed repositories for db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Store{
		db:            db,
		Accounts:      &gormAccountStore{db: db},
		Profiles:      &gormProfileStore{db: db},
		Invites:       &gormInviteStore{db: db},
		Confirmations: &gormConfirmationStore{db: db},
		Notifications: &gormNotificationStore{db: db},
		Forms:         &gormFormStore{db: db},
		Xero:          &gormXeroStore{db: db},
	}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueConstraintError(err):
		return errors.Join(ErrDuplicate, err)
	default:
		return err
	}
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
