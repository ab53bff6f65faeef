package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tom2984/aac-sub001/internal/models"
)

const defaultWindow = time.Minute

// DatabaseCounter keeps fixed-window rate counters in the primary SQL database so
// that every server replica enforces the same limit.
type DatabaseCounter struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseCounter constructs a database-backed counter store.
func NewDatabaseCounter(db *gorm.DB) (*DatabaseCounter, error) {
	if db == nil {
		return nil, errors.New("cache: database handle is required")
	}
	return &DatabaseCounter{db: db, now: time.Now}, nil
}

// Increment bumps the counter for key and returns the new count with the time left in
// the current window. An expired window restarts at one.
func (s *DatabaseCounter) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = defaultWindow
	}

	now := s.now().UTC()
	var counter models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Acquire row-level lock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "bucket = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.RateCounter{Bucket: key, Count: 1, ExpiresAt: now.Add(window)}
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if !counter.ExpiresAt.After(now) {
			counter.Count = 1
			counter.ExpiresAt = now.Add(window)
		} else {
			counter.Count++
		}
		return tx.Model(&models.RateCounter{}).
			Where("bucket = ?", key).
			Updates(map[string]any{"count": counter.Count, "expires_at": counter.ExpiresAt}).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return int(counter.Count), counter.ExpiresAt.Sub(now), nil
}

// PurgeExpired removes counters whose window closed before the cutoff.
func (s *DatabaseCounter) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.RateCounter{})
	return res.RowsAffected, res.Error
}
