package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentType string

const (
	PaymentTypeInitial       PaymentType = "initial"
	PaymentTypeExtraPhotos   PaymentType = "extra_photos"
	PaymentTypePublicGallery PaymentType = "public_gallery"
)

// payments: one row per external PIX charge. Status here is the single
// source of truth for whether the money arrived.
type Payment struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`

	AppointmentID *uuid.UUID `gorm:"type:uuid;index" json:"appointment_id,omitempty"`
	GalleryID     *uuid.UUID `gorm:"type:uuid;index" json:"gallery_id,omitempty"`

	// External charge id at the provider; idempotency anchor for webhooks.
	MercadopagoID string `gorm:"type:varchar(64);not null;uniqueIndex" json:"mercadopago_id"`

	Amount float64       `gorm:"not null" json:"amount"`
	Status PaymentStatus `gorm:"type:varchar(32);not null;index" json:"status"`

	PaymentType PaymentType `gorm:"type:varchar(32);not null" json:"payment_type"`

	// Raw provider payload from the last webhook that touched this row.
	WebhookData datatypes.JSON `gorm:"type:jsonb" json:"webhook_data,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	Client      *Client      `gorm:"foreignKey:ClientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
