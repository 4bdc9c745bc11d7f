package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord caches the exact response produced for a caller-supplied
// idempotency key. The unique index on key is what turns "at most once" into a
// hard guarantee across independently scaled processes.
type IdempotencyRecord struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Key          string          `gorm:"column:key;not null;uniqueIndex:idx_idempotency_keys_key"`
	AccountID    *uuid.UUID      `gorm:"column:account_id;type:uuid"`
	ResponseBody json.RawMessage `gorm:"column:response_body;type:jsonb;not null"`
	StatusCode   int             `gorm:"column:status_code;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt    *time.Time      `gorm:"column:expires_at;index"`
}
