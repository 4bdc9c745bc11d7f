package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
)

// Transaction is an immutable ledger entry. Rows are never updated or deleted
// after creation; corrections are expressed as reversal entries that reference
// the original through OriginalTransactionID.
type Transaction struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID             uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index:idx_transactions_account_created,priority:1"`
	Amount                decimal.Decimal       `gorm:"column:amount;type:numeric(18,2);not null"`
	Fee                   decimal.Decimal       `gorm:"column:fee;type:numeric(18,2);not null"`
	Type                  enums.TransactionType `gorm:"column:type;not null"`
	Description           *string               `gorm:"column:description"`
	Timestamp             time.Time             `gorm:"column:timestamp;not null"`
	CumulativeBalance     decimal.Decimal       `gorm:"column:cumulative_balance;type:numeric(18,2);not null"`
	IsReversal            bool                  `gorm:"column:is_reversal;not null;default:false"`
	OriginalTransactionID *uuid.UUID            `gorm:"column:original_transaction_id;type:uuid;index"`
	CreatedAt             time.Time             `gorm:"column:created_at;index:idx_transactions_account_created,priority:2"`
	UpdatedAt             time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Net returns the signed effect of the transaction on the account balance.
func (t Transaction) Net() decimal.Decimal {
	if t.Type == enums.TransactionTypeIncoming {
		return t.Amount.Sub(t.Fee)
	}
	return t.Amount.Add(t.Fee).Neg()
}
