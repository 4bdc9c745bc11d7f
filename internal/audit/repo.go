package audit

import (
	"context"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for audit log rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityID uuid.UUID, params pagination.Params) ([]models.AuditLog, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an audit repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID uuid.UUID, params pagination.Params) ([]models.AuditLog, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("entity_id = ?", entityID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var rows []models.AuditLog
	err = r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteOlderThan removes up to limit rows created before cutoff and reports
// how many were deleted. The subquery keeps the statement portable across
// drivers that do not support DELETE ... LIMIT.
func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Exec(
		"DELETE FROM audit_logs WHERE id IN (SELECT id FROM audit_logs WHERE created_at < ? ORDER BY created_at LIMIT ?)",
		cutoff, limit,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
