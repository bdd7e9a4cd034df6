package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type PhotoRepository interface {
	Create(ctx context.Context, photo *model.Photo) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Photo, error)
	// Photos of a gallery, upload order, with pagination.
	ListByGallery(ctx context.Context, galleryID uuid.UUID, limit, offset int) ([]model.Photo, int64, error)
}

type GormPhotoRepository struct {
	db *gorm.DB
}

func NewGormPhotoRepository(db *gorm.DB) *GormPhotoRepository {
	return &GormPhotoRepository{db: db}
}

func (r *GormPhotoRepository) Create(ctx context.Context, photo *model.Photo) error {
	return r.db.WithContext(ctx).Create(photo).Error
}

func (r *GormPhotoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Photo, error) {
	var p model.Photo
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPhotoRepository) ListByGallery(
	ctx context.Context,
	galleryID uuid.UUID,
	limit, offset int,
) ([]model.Photo, int64, error) {
	var (
		photos []model.Photo
		total  int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Photo{}).
		Where("gallery_id = ?", galleryID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("created_at ASC").Find(&photos).Error; err != nil {
		return nil, 0, err
	}

	return photos, total, nil
}
