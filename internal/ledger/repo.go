package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for ledger entries. Entries are
// append-only: there is deliberately no update or delete method.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.Transaction) (*models.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LatestForAccount(ctx context.Context, accountID uuid.UUID) (*models.Transaction, error)
	HasReversal(ctx context.Context, originalID uuid.UUID) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, int64, error)
	ListAll(ctx context.Context, params pagination.Params) ([]models.Transaction, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var entry models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LatestForAccount returns the most recently created entry for the account, or
// nil when the account has no entries yet. Creation order is (created_at, id).
func (r *repository) LatestForAccount(ctx context.Context, accountID uuid.UUID) (*models.Transaction, error) {
	var entry models.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasReversal reports whether a reversal entry already references originalID.
func (r *repository) HasReversal(ctx context.Context, originalID uuid.UUID) (bool, error) {
	var entry models.Transaction
	err := r.db.WithContext(ctx).
		Where("original_transaction_id = ? AND is_reversal = ?", originalID, true).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("account_id = ?", accountID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var rows []models.Transaction
	err = r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params) ([]models.Transaction, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
