package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"gorm.io/gorm"
)

const keyUniqueIndex = "idx_idempotency_keys_key"

// ErrKeyConflict signals that another request already claimed the key.
var ErrKeyConflict = errors.New("idempotency key already claimed")

// Repository defines persistence operations for idempotency records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Insert(ctx context.Context, record *models.IdempotencyRecord) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an idempotency repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Find returns the stored record for key, or nil when no record exists.
func (r *repository) Find(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Insert persists the record. A unique-index violation on the key column maps
// to ErrKeyConflict so callers can fall back to the stored response.
func (r *repository) Insert(ctx context.Context, record *models.IdempotencyRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err, keyUniqueIndex) {
		return ErrKeyConflict
	}
	return err
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&models.IdempotencyRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
