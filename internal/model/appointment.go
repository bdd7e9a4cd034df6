package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// IsTerminal reports whether a payment status can never change again.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	}
	return false
}

// appointments
type Appointment struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_tenant_scheduled" json:"tenant_id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`

	SessionType    string         `gorm:"type:varchar(64);not null" json:"session_type"`
	SessionDetails datatypes.JSON `gorm:"type:jsonb" json:"session_details"`

	// Double-booking backstop: one appointment per tenant per exact start time.
	ScheduledDate time.Time `gorm:"not null;uniqueIndex:idx_tenant_scheduled" json:"scheduled_date"`

	TotalAmount   float64 `gorm:"not null" json:"total_amount"`
	MinimumPhotos int     `gorm:"not null" json:"minimum_photos"`

	Status        AppointmentStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(32);not null;index" json:"payment_status"`

	TermsAccepted bool `gorm:"not null" json:"terms_accepted"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Client *Client `gorm:"foreignKey:ClientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"client,omitempty"`
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// CanTransitionTo validates the appointment status machine:
// pending -> confirmed -> completed, cancelled from pending/confirmed.
func (a *Appointment) CanTransitionTo(next AppointmentStatus) bool {
	switch a.Status {
	case AppointmentStatusPending:
		return next == AppointmentStatusConfirmed || next == AppointmentStatusCancelled
	case AppointmentStatusConfirmed:
		return next == AppointmentStatusCompleted || next == AppointmentStatusCancelled
	}
	return false
}
