// Package booking orchestrates the appointment side of the core state
// machine: slot listing, booking submission and status transitions.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/gallery"
	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/pricing"
	"github.com/valdigley/studio-booking/internal/repository"
)

var (
	ErrGatewayNotConfigured = errors.New("payment gateway not configured for tenant")
	ErrInvalidTransition    = errors.New("invalid appointment status transition")
)

// ValidationError marks caller mistakes; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid booking: %s %s", e.Field, e.Reason)
}

// Form is the booking submission payload. On the gateway path it travels
// whole inside the charge metadata so the reconciler can rebuild the
// appointment from the approved-payment webhook alone.
type Form struct {
	ClientName     string            `json:"client_name"`
	Phone          string            `json:"phone"`
	Email          string            `json:"email"`
	SessionType    string            `json:"session_type"`
	SessionDetails map[string]string `json:"session_details,omitempty"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	TermsAccepted  bool              `json:"terms_accepted"`
}

func (f Form) Validate() error {
	switch {
	case f.ClientName == "":
		return &ValidationError{Field: "client_name", Reason: "is required"}
	case repository.NormalizePhone(f.Phone) == "":
		return &ValidationError{Field: "phone", Reason: "is required"}
	case f.SessionType == "":
		return &ValidationError{Field: "session_type", Reason: "is required"}
	case f.ScheduledAt.IsZero():
		return &ValidationError{Field: "scheduled_at", Reason: "is required"}
	case !f.TermsAccepted:
		return &ValidationError{Field: "terms_accepted", Reason: "must be true"}
	}
	return nil
}

// GatewayFactory builds a charger from tenant credentials.
type GatewayFactory func(accessToken string) gateway.Charger

// Notifier enqueues a templated WhatsApp message.
type Notifier interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, templateType model.NotificationTemplate, recipientPhone string, vars map[string]string) error
}

type Service struct {
	db           *gorm.DB
	appointments repository.AppointmentRepository
	settings     repository.SettingsRepository
	notifier     Notifier
	newGateway   GatewayFactory

	now func() time.Time
}

func NewService(
	db *gorm.DB,
	appointments repository.AppointmentRepository,
	settings repository.SettingsRepository,
	notifier Notifier,
	newGateway GatewayFactory,
) *Service {
	return &Service{
		db:           db,
		appointments: appointments,
		settings:     settings,
		notifier:     notifier,
		newGateway:   newGateway,
		now:          time.Now,
	}
}

// ListAvailableSlots computes bookable start times for a tenant over the
// horizon. A failing appointment-snapshot query degrades to an explicit
// empty list instead of an error: the client sees "no slots".
func (s *Service) ListAvailableSlots(ctx context.Context, tenantID uuid.UUID) ([]Slot, error) {
	studio, err := s.settings.StudioFor(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load studio settings: %w", err)
	}

	hours, err := pricing.ParseWeekHours(studio.CommercialHours)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cfg := SlotConfig{
		Hours:           hours,
		CommercialRate:  studio.CommercialRate,
		AfterHoursRate:  studio.AfterHoursRate,
		MinimumPhotos:   studio.MinimumPhotos,
		SessionDuration: time.Duration(studio.SessionDurationMinutes) * time.Minute,
		Buffer:          time.Duration(studio.SlotBufferMinutes) * time.Minute,
		HorizonDays:     DefaultHorizonDays,
	}

	existing, err := s.appointments.ListActiveBetween(ctx, tenantID, now, now.AddDate(0, 0, cfg.HorizonDays))
	if err != nil {
		log.Printf("booking: list appointments for slots: %v", err)
		return []Slot{}, nil
	}

	taken := make([]time.Time, 0, len(existing))
	for _, a := range existing {
		taken = append(taken, a.ScheduledDate)
	}

	return AvailableSlots(cfg, taken, now), nil
}

// ListAppointments pages a tenant's appointments, most recent session
// first, and reports the total row count for the tenant.
func (s *Service) ListAppointments(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]model.Appointment, int64, error) {
	return s.appointments.ListByTenant(ctx, tenantID, limit, offset)
}

// Quote prices a session start time from the tenant's configuration.
func (s *Service) Quote(ctx context.Context, tenantID uuid.UUID, at time.Time) (float64, error) {
	studio, err := s.settings.StudioFor(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load studio settings: %w", err)
	}
	hours, err := pricing.ParseWeekHours(studio.CommercialHours)
	if err != nil {
		return 0, err
	}
	rate := pricing.Rate(at, hours, studio.CommercialRate, studio.AfterHoursRate)
	return pricing.SessionTotal(rate, studio.MinimumPhotos), nil
}

// Submit runs one booking submission. Manual-PIX tenants get appointment,
// gallery and payment rows in a single transaction; gateway tenants get a
// provider charge and no local rows. Charge-creation failure leaves no
// partial state on either path.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, form Form, price float64) (Intent, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	studio, err := s.settings.StudioFor(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load studio settings: %w", err)
	}

	gatewaySettings, err := s.settings.GatewayFor(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load gateway settings: %w", err)
	}

	if gatewaySettings == nil {
		return s.submitManual(ctx, tenantID, form, price, studio)
	}
	return s.submitDeferred(ctx, tenantID, form, price, studio, gatewaySettings)
}

func (s *Service) submitManual(
	ctx context.Context,
	tenantID uuid.UUID,
	form Form,
	price float64,
	studio *model.StudioSettings,
) (Intent, error) {
	now := s.now()
	intent := &Immediate{PixKey: studio.PixKey}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := repository.NewGormClientRepository(tx).
			UpsertByPhone(ctx, tenantID, form.ClientName, form.Phone, form.Email)
		if err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}

		details, err := json.Marshal(form.SessionDetails)
		if err != nil {
			return fmt.Errorf("encode session details: %w", err)
		}

		appointment := &model.Appointment{
			TenantID:       tenantID,
			ClientID:       client.ID,
			SessionType:    form.SessionType,
			SessionDetails: details,
			ScheduledDate:  form.ScheduledAt,
			TotalAmount:    price,
			MinimumPhotos:  studio.MinimumPhotos,
			Status:         model.AppointmentStatusPending,
			PaymentStatus:  model.PaymentStatusPending,
			TermsAccepted:  form.TermsAccepted,
		}
		if err := tx.Create(appointment).Error; err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		g := &model.Gallery{
			TenantID:      tenantID,
			ClientID:      client.ID,
			AppointmentID: &appointment.ID,
		}
		if err := gallery.Provision(tx, g, studio.LinkValidityDays, now); err != nil {
			return err
		}

		payment := &model.Payment{
			TenantID:      tenantID,
			ClientID:      client.ID,
			AppointmentID: &appointment.ID,
			MercadopagoID: "manual-" + appointment.ID.String(),
			Amount:        price,
			Status:        model.PaymentStatusPending,
			PaymentType:   model.PaymentTypeInitial,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		intent.Appointment = appointment
		intent.Gallery = g
		intent.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Enqueue(ctx, tenantID, model.TemplateManualPixInstructions, form.Phone, map[string]string{
		"name":         form.ClientName,
		"session_type": form.SessionType,
		"date":         form.ScheduledAt.Format("02/01/2006 15:04"),
		"amount":       strconv.FormatFloat(price, 'f', 2, 64),
		"pix_key":      studio.PixKey,
	}); err != nil {
		log.Printf("booking: enqueue manual pix instructions: %v", err)
	}

	return *intent, nil
}

func (s *Service) submitDeferred(
	ctx context.Context,
	tenantID uuid.UUID,
	form Form,
	price float64,
	studio *model.StudioSettings,
	gatewaySettings *model.GatewaySettings,
) (Intent, error) {
	externalRef := fmt.Sprintf("booking-%s-%s", tenantID, uuid.NewString())

	details, err := json.Marshal(form.SessionDetails)
	if err != nil {
		return nil, fmt.Errorf("encode session details: %w", err)
	}

	charge, err := s.newGateway(gatewaySettings.AccessToken).CreateCharge(ctx, gateway.ChargeRequest{
		Amount:            price,
		Description:       fmt.Sprintf("Sessão %s - %s", form.SessionType, studio.StudioName),
		ExternalReference: externalRef,
		PayerName:         form.ClientName,
		PayerEmail:        form.Email,
		PayerPhone:        form.Phone,
		Metadata: map[string]any{
			"tenant_id":       tenantID.String(),
			"client_name":     form.ClientName,
			"phone":           form.Phone,
			"email":           form.Email,
			"session_type":    form.SessionType,
			"session_details": string(details),
			"scheduled_date":  form.ScheduledAt.Format(time.RFC3339),
			"total_amount":    price,
			"minimum_photos":  studio.MinimumPhotos,
			"terms_accepted":  form.TermsAccepted,
		},
	})
	if err != nil {
		// Atomic by construction: nothing was written locally.
		return nil, err
	}

	return Deferred{
		ExternalReference: externalRef,
		ChargeID:          charge.ID,
		QRCode:            charge.QRCode,
		QRCodeImage:       charge.QRCodeImage,
		Amount:            charge.Amount,
		ExpiresAt:         charge.ExpiresAt,
	}, nil
}

// ChargeStatus proxies the provider's view of a charge for client-side
// polling.
func (s *Service) ChargeStatus(ctx context.Context, tenantID uuid.UUID, chargeID string) (*gateway.Charge, error) {
	gatewaySettings, err := s.settings.GatewayFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if gatewaySettings == nil {
		return nil, ErrGatewayNotConfigured
	}
	return s.newGateway(gatewaySettings.AccessToken).GetCharge(ctx, chargeID)
}

// Cancel moves an appointment to cancelled; allowed from pending or
// confirmed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, model.AppointmentStatusCancelled)
}

// Complete marks a confirmed appointment's session as done.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, model.AppointmentStatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next model.AppointmentStatus) error {
	appointment, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !appointment.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appointment.Status, next)
	}
	return s.appointments.UpdateStatus(ctx, id, next)
}
