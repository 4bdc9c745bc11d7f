package enums

import "fmt"

// TransactionType describes the allowed values for the `type` column in transactions.
type TransactionType string

const (
	TransactionTypeIncoming TransactionType = "incoming"
	TransactionTypeOutgoing TransactionType = "outgoing"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeIncoming,
	TransactionTypeOutgoing,
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Opposite returns the inverse direction, used when building reversal entries.
func (t TransactionType) Opposite() TransactionType {
	if t == TransactionTypeIncoming {
		return TransactionTypeOutgoing
	}
	return TransactionTypeIncoming
}

// ParseTransactionType converts the raw string to TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
