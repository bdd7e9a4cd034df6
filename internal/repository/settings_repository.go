package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type SettingsRepository interface {
	// Studio settings are required; missing rows are an error.
	StudioFor(ctx context.Context, tenantID uuid.UUID) (*model.StudioSettings, error)
	// Gateway settings are optional: (nil, nil) means "manual PIX tenant".
	// Inactive rows count as absent.
	GatewayFor(ctx context.Context, tenantID uuid.UUID) (*model.GatewaySettings, error)
	// Same convention as GatewayFor.
	WhatsAppFor(ctx context.Context, tenantID uuid.UUID) (*model.WhatsAppSettings, error)
}

type GormSettingsRepository struct {
	db *gorm.DB
}

func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

func (r *GormSettingsRepository) StudioFor(ctx context.Context, tenantID uuid.UUID) (*model.StudioSettings, error) {
	var s model.StudioSettings
	if err := r.db.WithContext(ctx).First(&s, "tenant_id = ?", tenantID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSettingsRepository) GatewayFor(ctx context.Context, tenantID uuid.UUID) (*model.GatewaySettings, error) {
	var s model.GatewaySettings
	err := r.db.WithContext(ctx).First(&s, "tenant_id = ? AND active = ?", tenantID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSettingsRepository) WhatsAppFor(ctx context.Context, tenantID uuid.UUID) (*model.WhatsAppSettings, error) {
	var s model.WhatsAppSettings
	err := r.db.WithContext(ctx).First(&s, "tenant_id = ? AND active = ?", tenantID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
