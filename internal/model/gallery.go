package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GalleryStatus string

const (
	GalleryStatusPending        GalleryStatus = "pending"
	GalleryStatusAwaitingExtras GalleryStatus = "awaiting_extras_payment"
	GalleryStatusCompleted      GalleryStatus = "completed"
)

// galleries
type Gallery struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`

	// Nullable: public-gallery spin-offs have no appointment.
	AppointmentID   *uuid.UUID `gorm:"type:uuid;index" json:"appointment_id,omitempty"`
	ParentGalleryID *uuid.UUID `gorm:"type:uuid;index" json:"parent_gallery_id,omitempty"`

	// Sole access credential for the client-facing view. Immutable.
	GalleryToken  string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"gallery_token"`
	LinkExpiresAt time.Time `gorm:"not null" json:"link_expires_at"`

	IsPublic bool          `gorm:"not null" json:"is_public"`
	Status   GalleryStatus `gorm:"type:varchar(32);not null;index" json:"status"`

	// Photo ids picked by the client; JSON array of uuid strings.
	PhotosSelected datatypes.JSON `gorm:"type:jsonb" json:"photos_selected"`

	// Per-photo client comments, keyed by photo id. Editable until the
	// selection is completed.
	PhotoComments datatypes.JSON `gorm:"type:jsonb" json:"photo_comments,omitempty"`

	SelectionCompleted  bool       `gorm:"not null" json:"selection_completed"`
	SelectionSubmitted  *time.Time `gorm:"column:selection_submitted_at" json:"selection_submitted_at,omitempty"`
	CoverPhotoID        *uuid.UUID `gorm:"type:uuid" json:"cover_photo_id,omitempty"`
	ExtraPhotosPayment  *uuid.UUID `gorm:"column:extra_photos_payment_id;type:uuid" json:"extra_photos_payment_id,omitempty"`
	ExtraPhotosSelected int        `gorm:"not null;default:0" json:"extra_photos_selected"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	Client      *Client      `gorm:"foreignKey:ClientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Photos      []Photo      `gorm:"foreignKey:GalleryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"photos,omitempty"`
}

func (g *Gallery) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the public link is past its validity window.
func (g *Gallery) Expired(now time.Time) bool {
	return now.After(g.LinkExpiresAt)
}
