package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationStatus string

const (
	NotificationStatusQueued  NotificationStatus = "queued"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusSkipped NotificationStatus = "skipped"
	NotificationStatusFailed  NotificationStatus = "failed"
)

type NotificationTemplate string

const (
	TemplateManualPixInstructions NotificationTemplate = "manual_pix_instructions"
	TemplatePaymentConfirmed      NotificationTemplate = "payment_confirmed"
	TemplateSelectionReceived     NotificationTemplate = "selection_received"
	TemplateSelectionExtras       NotificationTemplate = "selection_awaiting_extras"
)

// notifications: outbound WhatsApp queue. Rows are rendered at enqueue
// time so delivery needs no template context.
type Notification struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`

	RecipientPhone string               `gorm:"type:varchar(32);not null" json:"recipient_phone"`
	TemplateType   NotificationTemplate `gorm:"type:varchar(64);not null" json:"template_type"`
	Body           string               `gorm:"type:text;not null" json:"body"`

	Status NotificationStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	SentAt *time.Time         `json:"sent_at,omitempty"`
	Error  string             `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
