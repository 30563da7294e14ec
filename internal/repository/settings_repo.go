package repository

import (
	"context"
	"errors"

	"einvoice/internal/model"

	"gorm.io/gorm"
)

type SettingsRepository interface {
	// Get returns the single settings row, creating an empty one on first use.
	Get(ctx context.Context) (*model.Settings, error)
	Update(ctx context.Context, settings *model.Settings) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	var settings model.Settings
	err := GetDB(ctx, r.db).Order("created_at asc").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = model.Settings{Environment: model.EnvironmentSandbox}
		if createErr := GetDB(ctx, r.db).Create(&settings).Error; createErr != nil {
			return nil, createErr
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Update(ctx context.Context, settings *model.Settings) error {
	return GetDB(ctx, r.db).Save(settings).Error
}
