package accounts

import (
	"context"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an accounts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByIDForUpdate locks the account row for the duration of the surrounding
// transaction. Row locks are a Postgres feature; other dialects fall back to a
// plain read.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var account models.Account
	if err := query.Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("balance", balance).Error
}
