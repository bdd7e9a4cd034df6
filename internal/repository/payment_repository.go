package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type PaymentRepository interface {
	// Create a payment row at charge-creation time.
	Create(ctx context.Context, payment *model.Payment) error
	// Fetch by internal ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	// Fetch by external charge id.
	GetByChargeID(ctx context.Context, chargeID string) (*model.Payment, error)
	// Atomic conditional status transition keyed by external charge id.
	// Applies only when the row is still pending, so terminal statuses
	// never reopen and duplicate webhook deliveries report no transition.
	// Returns true when this call performed the transition.
	MarkStatus(ctx context.Context, chargeID string, status model.PaymentStatus, webhookData []byte) (bool, error)
}

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) GetByChargeID(ctx context.Context, chargeID string) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).First(&p, "mercadopago_id = ?", chargeID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) MarkStatus(
	ctx context.Context,
	chargeID string,
	status model.PaymentStatus,
	webhookData []byte,
) (bool, error) {
	update := map[string]any{
		"status": status,
	}
	if len(webhookData) > 0 {
		update["webhook_data"] = datatypes.JSON(webhookData)
	}

	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("mercadopago_id = ? AND status = ?", chargeID, model.PaymentStatusPending).
		Updates(update)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
