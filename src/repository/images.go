package repository

import (
	"context"

	"gorm.io/gorm"

	app "imgserv/src/app"
)

type ImageRepository struct {
	db *gorm.DB
}

var _ app.ImageStore = (*ImageRepository)(nil)

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) CreateImage(ctx context.Context, image *app.Image) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// ListImages returns images newest first, optionally scoped to one owner.
func (r *ImageRepository) ListImages(ctx context.Context, filter app.ImageFilter) ([]app.Image, error) {
	query := r.db.WithContext(ctx).Model(&app.Image{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	var images []app.Image
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(filter.Page.Skip).
		Limit(filter.Page.Limit).
		Find(&images).Error
	return images, err
}
