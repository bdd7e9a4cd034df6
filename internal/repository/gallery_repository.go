package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type GalleryRepository interface {
	Create(ctx context.Context, gallery *model.Gallery) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Gallery, error)
	// Token-addressed lookup for the client-facing view.
	GetByToken(ctx context.Context, token string) (*model.Gallery, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*model.Gallery, error)
	// Replace the selected-photo set while the selection is still open.
	UpdateSelection(ctx context.Context, id uuid.UUID, photosSelected, photoComments []byte) error
	// Park the gallery while an extra-photos charge is pending.
	MarkAwaitingExtras(ctx context.Context, id uuid.UUID, paymentID uuid.UUID, extraCount int, submittedAt time.Time) error
	// Monotonic: applies only while selection_completed is false.
	CompleteSelection(ctx context.Context, id uuid.UUID, submittedAt time.Time) (bool, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type GormGalleryRepository struct {
	db *gorm.DB
}

func NewGormGalleryRepository(db *gorm.DB) *GormGalleryRepository {
	return &GormGalleryRepository{db: db}
}

func (r *GormGalleryRepository) Create(ctx context.Context, gallery *model.Gallery) error {
	return r.db.WithContext(ctx).Create(gallery).Error
}

func (r *GormGalleryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Gallery, error) {
	var g model.Gallery
	if err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormGalleryRepository) GetByToken(ctx context.Context, token string) (*model.Gallery, error) {
	var g model.Gallery
	if err := r.db.WithContext(ctx).First(&g, "gallery_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormGalleryRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*model.Gallery, error) {
	var g model.Gallery
	if err := r.db.WithContext(ctx).First(&g, "appointment_id = ?", appointmentID).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormGalleryRepository) UpdateSelection(
	ctx context.Context,
	id uuid.UUID,
	photosSelected, photoComments []byte,
) error {
	update := map[string]any{}
	if photosSelected != nil {
		update["photos_selected"] = datatypes.JSON(photosSelected)
	}
	if photoComments != nil {
		update["photo_comments"] = datatypes.JSON(photoComments)
	}
	if len(update) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Gallery{}).
		Where("id = ? AND selection_completed = ?", id, false).
		Updates(update).
		Error
}

func (r *GormGalleryRepository) MarkAwaitingExtras(
	ctx context.Context,
	id uuid.UUID,
	paymentID uuid.UUID,
	extraCount int,
	submittedAt time.Time,
) error {
	return r.db.WithContext(ctx).
		Model(&model.Gallery{}).
		Where("id = ? AND selection_completed = ?", id, false).
		Updates(map[string]any{
			"status":                  model.GalleryStatusAwaitingExtras,
			"extra_photos_payment_id": paymentID,
			"extra_photos_selected":   extraCount,
			"selection_submitted_at":  submittedAt,
		}).
		Error
}

func (r *GormGalleryRepository) CompleteSelection(ctx context.Context, id uuid.UUID, submittedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Gallery{}).
		Where("id = ? AND selection_completed = ?", id, false).
		Updates(map[string]any{
			"selection_completed":    true,
			"status":                 model.GalleryStatusCompleted,
			"selection_submitted_at": submittedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormGalleryRepository) Touch(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Gallery{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).
		Error
}
