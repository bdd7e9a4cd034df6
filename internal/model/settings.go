package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// studio_settings: per-tenant studio configuration. Loaded once per
// request and passed into services explicitly; no process-wide state.
type StudioSettings struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"tenant_id"`

	StudioName string `gorm:"type:varchar(255);not null" json:"studio_name"`

	// Weekday windows, JSON keyed by lowercase weekday name:
	// {"monday": {"enabled": true, "start": "09:00", "end": "18:00"}, ...}
	CommercialHours datatypes.JSON `gorm:"type:jsonb" json:"commercial_hours"`

	CommercialRate float64 `gorm:"not null" json:"commercial_rate"`
	AfterHoursRate float64 `gorm:"not null" json:"after_hours_rate"`
	PerPhotoRate   float64 `gorm:"not null" json:"per_photo_rate"`

	MinimumPhotos int `gorm:"not null;default:5" json:"minimum_photos"`

	SessionDurationMinutes int `gorm:"not null;default:60" json:"session_duration_minutes"`
	SlotBufferMinutes      int `gorm:"not null;default:60" json:"slot_buffer_minutes"`

	LinkValidityDays int `gorm:"not null;default:30" json:"link_validity_days"`

	// Manual-PIX key, used when no payment gateway is configured.
	PixKey string `gorm:"type:varchar(255)" json:"pix_key"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (s *StudioSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// gateway_settings: per-tenant MercadoPago credentials. Absence (or
// Active=false) selects the manual-PIX booking path.
type GatewaySettings struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"tenant_id"`

	AccessToken string `gorm:"type:varchar(255);not null" json:"-"`
	Active      bool   `gorm:"not null;default:false" json:"active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (s *GatewaySettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// whatsapp_settings: per-tenant WhatsApp gateway instance.
type WhatsAppSettings struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"tenant_id"`

	InstanceURL string `gorm:"type:varchar(255);not null" json:"instance_url"`
	APIKey      string `gorm:"type:varchar(255);not null" json:"-"`
	Active      bool   `gorm:"not null;default:false" json:"active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (s *WhatsAppSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
