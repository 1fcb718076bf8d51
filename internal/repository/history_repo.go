package repository

import (
	"context"

	"freightdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryRepository appends and reads history rows. Rows are never updated or deleted.
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.ApprovalHistory) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalHistory, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Append assigns the next per-request sequence number and inserts the row.
func (r *historyRepository) Append(ctx context.Context, entry *model.ApprovalHistory) error {
	db := GetDB(ctx, r.db)

	var last int
	if err := db.Model(&model.ApprovalHistory{}).
		Where("request_id = ?", entry.RequestID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	entry.Seq = last + 1

	return db.Create(entry).Error
}

func (r *historyRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalHistory, error) {
	var rows []model.ApprovalHistory
	if err := GetDB(ctx, r.db).
		Where("request_id = ?", requestID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
