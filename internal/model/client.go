package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// clients: deduplicated per tenant by phone number; email is optional.
type Client struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_tenant_phone" json:"tenant_id"`

	Name  string `gorm:"type:varchar(255);not null" json:"name"`
	Phone string `gorm:"type:varchar(32);not null;uniqueIndex:idx_tenant_phone" json:"phone"`
	Email string `gorm:"type:varchar(255)" json:"email"`

	// Incremented exactly once per approved payment.
	TotalSpent float64 `gorm:"not null;default:0" json:"total_spent"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
