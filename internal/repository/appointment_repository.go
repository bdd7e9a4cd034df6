package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/model"
)

type AppointmentRepository interface {
	// Create a new appointment.
	Create(ctx context.Context, appointment *model.Appointment) error
	// Fetch an appointment by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// Update appointment status (confirm, complete, cancel).
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error
	// Forward-only payment-status write; returns false when the current
	// payment status is already terminal.
	MarkPaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (bool, error)
	// Pending/confirmed appointments of a tenant inside a time range.
	// Input for slot-separation exclusion.
	ListActiveBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]model.Appointment, error)
	// Tenant appointment list, newest first, with pagination.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]model.Appointment, int64, error)
}

type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func (r *GormAppointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	return r.db.WithContext(ctx).Create(appointment).Error
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

func (r *GormAppointmentRepository) MarkPaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ? AND payment_status = ?", id, model.PaymentStatusPending).
		Update("payment_status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormAppointmentRepository) ListActiveBetween(
	ctx context.Context,
	tenantID uuid.UUID,
	from, to time.Time,
) ([]model.Appointment, error) {
	var appointments []model.Appointment
	err := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("tenant_id = ?", tenantID).
		Where("scheduled_date >= ? AND scheduled_date <= ?", from, to).
		Where("status IN ?", []model.AppointmentStatus{
			model.AppointmentStatusPending,
			model.AppointmentStatusConfirmed,
		}).
		Order("scheduled_date ASC").
		Find(&appointments).
		Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *GormAppointmentRepository) ListByTenant(
	ctx context.Context,
	tenantID uuid.UUID,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	var (
		appointments []model.Appointment
		total        int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("tenant_id = ?", tenantID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("scheduled_date DESC").Find(&appointments).Error; err != nil {
		return nil, 0, err
	}

	return appointments, total, nil
}
