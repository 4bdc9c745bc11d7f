package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
)

// AuditLog records who did what to which entity. Written after commit on a
// fire-and-forget basis; a failed audit write never rolls back a ledger write.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Action     enums.AuditAction `gorm:"column:action;not null"`
	EntityType string            `gorm:"column:entity_type;not null"`
	EntityID   uuid.UUID         `gorm:"column:entity_id;type:uuid;not null;index"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	IPAddress  *string           `gorm:"column:ip_address"`
	UserAgent  *string           `gorm:"column:user_agent"`
	Metadata   json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
