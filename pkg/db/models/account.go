package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the cached current balance. The balance column equals the
// opening balance plus the net effect of every ledger entry, and is only
// mutated inside the engine's atomic write scope.
type Account struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID uuid.UUID       `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Balance     decimal.Decimal `gorm:"column:balance;type:numeric(18,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
