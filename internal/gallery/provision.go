package gallery

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

// DefaultLinkValidityDays bounds gallery links when a tenant has not
// configured a validity window.
const DefaultLinkValidityDays = 30

// Provision creates a gallery row with a fresh token and expiry. Every
// flow that spawns a gallery (manual-PIX booking, gateway-approval
// materialization, public-gallery spin-offs) goes through here. The
// caller fills tenant/client/appointment fields and may run it inside a
// transaction by passing the tx handle.
func Provision(db *gorm.DB, g *model.Gallery, linkValidityDays int, now time.Time) error {
	if g.GalleryToken != "" {
		return fmt.Errorf("gallery already has a token")
	}

	token, err := NewToken()
	if err != nil {
		return err
	}
	g.GalleryToken = token

	days := linkValidityDays
	if days <= 0 {
		days = DefaultLinkValidityDays
	}
	g.LinkExpiresAt = now.AddDate(0, 0, days)

	if g.Status == "" {
		g.Status = model.GalleryStatusPending
	}
	if len(g.PhotosSelected) == 0 {
		g.PhotosSelected = []byte("[]")
	}

	if err := db.Create(g).Error; err != nil {
		return fmt.Errorf("create gallery: %w", err)
	}
	return nil
}
