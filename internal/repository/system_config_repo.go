package repository

import (
	"context"
	"errors"

	"freightdesk/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SystemConfigRepository interface {
	List(ctx context.Context) ([]model.SystemConfig, error)
	Get(ctx context.Context, key string) (*model.SystemConfig, error)
	Upsert(ctx context.Context, cfg *model.SystemConfig) error
	CreateIfMissing(ctx context.Context, cfg *model.SystemConfig) (bool, error)
}

type systemConfigRepository struct {
	db *gorm.DB
}

func NewSystemConfigRepository(db *gorm.DB) SystemConfigRepository {
	return &systemConfigRepository{db: db}
}

func (r *systemConfigRepository) List(ctx context.Context) ([]model.SystemConfig, error) {
	var cfgs []model.SystemConfig
	if err := GetDB(ctx, r.db).Order("key ASC").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

func (r *systemConfigRepository) Get(ctx context.Context, key string) (*model.SystemConfig, error) {
	var cfg model.SystemConfig
	if err := GetDB(ctx, r.db).First(&cfg, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *systemConfigRepository) Upsert(ctx context.Context, cfg *model.SystemConfig) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_by", "updated_at"}),
	}).Create(cfg).Error
}

// CreateIfMissing inserts cfg unless the key exists. It reports whether a row was written.
func (r *systemConfigRepository) CreateIfMissing(ctx context.Context, cfg *model.SystemConfig) (bool, error) {
	db := GetDB(ctx, r.db)
	var existing model.SystemConfig
	err := db.First(&existing, "key = ?", cfg.Key).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := db.Create(cfg).Error; err != nil {
		return false, err
	}
	return true, nil
}
