package ledger

import (
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	"github.com/google/uuid"
)

// TransactionView is the canonical JSON shape for a ledger entry. The same
// shape is stored in the idempotency table so replays are byte-for-byte
// consistent with the first response.
type TransactionView struct {
	ID                    uuid.UUID             `json:"id"`
	AccountID             uuid.UUID             `json:"account_id"`
	Amount                string                `json:"amount"`
	Fee                   string                `json:"fee"`
	Type                  enums.TransactionType `json:"type"`
	Description           *string               `json:"description,omitempty"`
	Timestamp             time.Time             `json:"timestamp"`
	CumulativeBalance     string                `json:"cumulative_balance"`
	IsReversal            bool                  `json:"is_reversal"`
	OriginalTransactionID *uuid.UUID            `json:"original_transaction_id,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
}

// NewTransactionView maps a persisted entry to its response shape.
func NewTransactionView(entry models.Transaction) TransactionView {
	return TransactionView{
		ID:                    entry.ID,
		AccountID:             entry.AccountID,
		Amount:                entry.Amount.StringFixed(2),
		Fee:                   entry.Fee.StringFixed(2),
		Type:                  entry.Type,
		Description:           entry.Description,
		Timestamp:             entry.Timestamp,
		CumulativeBalance:     entry.CumulativeBalance.StringFixed(2),
		IsReversal:            entry.IsReversal,
		OriginalTransactionID: entry.OriginalTransactionID,
		CreatedAt:             entry.CreatedAt,
	}
}

// NewTransactionViews maps a page of entries.
func NewTransactionViews(entries []models.Transaction) []TransactionView {
	views := make([]TransactionView, len(entries))
	for i, entry := range entries {
		views[i] = NewTransactionView(entry)
	}
	return views
}
