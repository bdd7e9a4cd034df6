package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type ClientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	GetByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*model.Client, error)
	// Phone is the natural dedup key per tenant: find-or-create, refreshing
	// name/email on the way.
	UpsertByPhone(ctx context.Context, tenantID uuid.UUID, name, phone, email string) (*model.Client, error)
	// Atomic accumulator write; callers guarantee at most one call per
	// approved charge.
	IncrementTotalSpent(ctx context.Context, id uuid.UUID, amount float64) error
}

type GormClientRepository struct {
	db *gorm.DB
}

func NewGormClientRepository(db *gorm.DB) *GormClientRepository {
	return &GormClientRepository{db: db}
}

// NormalizePhone keeps only digits; formatting characters are ignored.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	b := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		c := phone[i]
		if c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}

func (r *GormClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var c model.Client
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormClientRepository) GetByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*model.Client, error) {
	n := NormalizePhone(phone)
	if n == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var c model.Client
	if err := r.db.WithContext(ctx).First(&c, "tenant_id = ? AND phone = ?", tenantID, n).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormClientRepository) UpsertByPhone(
	ctx context.Context,
	tenantID uuid.UUID,
	name, phone, email string,
) (*model.Client, error) {
	n := NormalizePhone(phone)
	if n == "" {
		return nil, gorm.ErrRecordNotFound
	}

	var c model.Client
	tx := r.db.WithContext(ctx).First(&c, "tenant_id = ? AND phone = ?", tenantID, n)
	if tx.Error == nil {
		update := map[string]any{}
		if name != "" && name != c.Name {
			update["name"] = name
			c.Name = name
		}
		if email != "" && email != c.Email {
			update["email"] = email
			c.Email = email
		}
		if len(update) > 0 {
			if err := r.db.WithContext(ctx).Model(&model.Client{}).Where("id = ?", c.ID).Updates(update).Error; err != nil {
				return nil, err
			}
		}
		return &c, nil
	}
	if tx.Error != gorm.ErrRecordNotFound {
		return nil, tx.Error
	}

	c = model.Client{
		TenantID: tenantID,
		Name:     name,
		Phone:    n,
		Email:    email,
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormClientRepository) IncrementTotalSpent(ctx context.Context, id uuid.UUID, amount float64) error {
	return r.db.WithContext(ctx).
		Model(&model.Client{}).
		Where("id = ?", id).
		Update("total_spent", gorm.Expr("total_spent + ?", amount)).
		Error
}
