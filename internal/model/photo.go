package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// photos: immutable once uploaded. Selection and comment state live on
// the gallery; the client only annotates, never owns, photo storage.
type Photo struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GalleryID uuid.UUID `gorm:"type:uuid;not null;index" json:"gallery_id"`

	Filename     string `gorm:"type:varchar(255);not null" json:"filename"`
	URL          string `gorm:"type:text;not null" json:"url"`
	ThumbnailURL string `gorm:"type:text" json:"thumbnail_url"`
	Size         int64  `gorm:"not null" json:"size"`

	// Dimensions, camera info and the like.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
