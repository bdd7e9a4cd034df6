// Package webhook reconciles asynchronous payment-status events from the
// provider against the local booking state machine. Events arrive
// unordered, possibly duplicated, at least once.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/gallery"
	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/repository"
)

// ErrTransient marks failures worth a provider retry (network, DB). The
// HTTP handler maps it to 5xx; everything else processed-or-ignored gets
// a 200 so the provider stops redelivering.
var ErrTransient = errors.New("transient reconciliation failure")

// ErrPaymentSettled means the payment already left the pending state, by
// an earlier confirmation or a provider webhook.
var ErrPaymentSettled = errors.New("payment already settled")

// GatewayFactory builds a charger from tenant credentials.
type GatewayFactory func(accessToken string) gateway.Charger

// Notifier enqueues a templated WhatsApp message.
type Notifier interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, templateType model.NotificationTemplate, recipientPhone string, vars map[string]string) error
}

// CalendarScheduler requests an external calendar event; best-effort.
type CalendarScheduler interface {
	ScheduleEvent(ctx context.Context, appointment *model.Appointment, client *model.Client) error
}

type Reconciler struct {
	db           *gorm.DB
	payments     repository.PaymentRepository
	appointments repository.AppointmentRepository
	galleries    repository.GalleryRepository
	clients      repository.ClientRepository
	settings     repository.SettingsRepository
	notifier     Notifier
	newGateway   GatewayFactory
	calendar     CalendarScheduler

	now func() time.Time
}

func NewReconciler(
	db *gorm.DB,
	payments repository.PaymentRepository,
	appointments repository.AppointmentRepository,
	galleries repository.GalleryRepository,
	clients repository.ClientRepository,
	settings repository.SettingsRepository,
	notifier Notifier,
	newGateway GatewayFactory,
	calendar CalendarScheduler,
) *Reconciler {
	return &Reconciler{
		db:           db,
		payments:     payments,
		appointments: appointments,
		galleries:    galleries,
		clients:      clients,
		settings:     settings,
		notifier:     notifier,
		newGateway:   newGateway,
		calendar:     calendar,
		now:          time.Now,
	}
}

// HandleEvent processes one webhook delivery. The payload only names a
// charge; its authoritative status is always fetched from the provider
// (notification-to-fetch), never trusted from the webhook body.
func (r *Reconciler) HandleEvent(ctx context.Context, tenantID uuid.UUID, raw []byte) error {
	chargeID, err := ExtractChargeID(raw)
	if err != nil {
		return err
	}

	gatewaySettings, err := r.settings.GatewayFor(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("%w: load gateway settings: %v", ErrTransient, err)
	}
	if gatewaySettings == nil {
		// Manual-PIX tenant: no charge of ours can exist at the provider.
		log.Printf("webhook: event for tenant %s without gateway, ignoring", tenantID)
		return nil
	}

	charge, err := r.newGateway(gatewaySettings.AccessToken).GetCharge(ctx, chargeID)
	if err != nil {
		var gwErr *gateway.GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode == 404 {
			log.Printf("webhook: charge %s unknown at provider, ignoring", chargeID)
			return nil
		}
		return fmt.Errorf("%w: fetch charge %s: %v", ErrTransient, chargeID, err)
	}

	status := mapChargeStatus(charge.Status)

	switch {
	case strings.HasPrefix(charge.ExternalReference, "public-"):
		return r.handlePublic(ctx, tenantID, charge, status, raw)
	case strings.Contains(charge.ExternalReference, "-extra-"):
		return r.handleExtras(ctx, tenantID, charge, status, raw)
	default:
		return r.handleInitial(ctx, tenantID, charge, status, raw)
	}
}

// ConfirmManualPayment records an out-of-band PIX transfer as received.
// Staff counterpart of the provider webhook for payments the gateway never
// sees; the same pending-only gate and approval side effects apply.
func (r *Reconciler) ConfirmManualPayment(ctx context.Context, tenantID, paymentID uuid.UUID) error {
	payment, err := r.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.TenantID != tenantID {
		return gorm.ErrRecordNotFound
	}

	transitioned, err := r.payments.MarkStatus(ctx, payment.MercadopagoID, model.PaymentStatusApproved, nil)
	if err != nil {
		return fmt.Errorf("mark payment %s: %w", payment.MercadopagoID, err)
	}
	if !transitioned {
		return ErrPaymentSettled
	}

	if payment.AppointmentID != nil {
		if _, err := r.appointments.MarkPaymentStatus(ctx, *payment.AppointmentID, model.PaymentStatusApproved); err != nil {
			log.Printf("webhook: mark appointment payment status: %v", err)
		}
		r.confirmAppointment(ctx, tenantID, payment)
		return nil
	}
	r.settleExtras(ctx, tenantID, payment)
	return nil
}

// mapChargeStatus folds provider statuses into the local machine. Unknown
// and in-flight provider states stay pending.
func mapChargeStatus(s string) model.PaymentStatus {
	switch s {
	case gateway.ChargeStatusApproved:
		return model.PaymentStatusApproved
	case gateway.ChargeStatusRejected:
		return model.PaymentStatusRejected
	case gateway.ChargeStatusCancelled:
		return model.PaymentStatusCancelled
	case gateway.ChargeStatusExpired:
		return model.PaymentStatusExpired
	default:
		return model.PaymentStatusPending
	}
}

// handleInitial covers booking charges. When the gateway path deferred
// appointment creation, the approved charge's metadata carries the whole
// booking form and the appointment is materialized here first.
func (r *Reconciler) handleInitial(
	ctx context.Context,
	tenantID uuid.UUID,
	charge *gateway.Charge,
	status model.PaymentStatus,
	raw []byte,
) error {
	payment, err := r.payments.GetByChargeID(ctx, charge.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment, err = r.materializeBooking(ctx, tenantID, charge)
		if err != nil {
			return err
		}
		if payment == nil {
			return nil // unusable metadata, logged; redelivery cannot help
		}
	} else if err != nil {
		return fmt.Errorf("%w: load payment %s: %v", ErrTransient, charge.ID, err)
	}

	if status == model.PaymentStatusPending {
		return nil
	}

	// Idempotency gate: only the call that actually flips the pending row
	// runs financial side effects, no matter how often the provider
	// redelivers.
	transitioned, err := r.payments.MarkStatus(ctx, charge.ID, status, raw)
	if err != nil {
		return fmt.Errorf("%w: mark payment %s: %v", ErrTransient, charge.ID, err)
	}
	if !transitioned {
		return nil
	}

	// Payment truth is durable from here on; everything below is
	// best-effort and never asks the provider to retry.
	if payment.AppointmentID != nil {
		if _, err := r.appointments.MarkPaymentStatus(ctx, *payment.AppointmentID, status); err != nil {
			log.Printf("webhook: mark appointment payment status: %v", err)
		}
	}

	if status != model.PaymentStatusApproved {
		return nil
	}

	r.confirmAppointment(ctx, tenantID, payment)
	return nil
}

// confirmAppointment runs the approval side effects: confirm, provision
// the gallery if missing, count revenue, notify and request a calendar
// event. Each failure is logged and skipped; the payment row already
// carries the financial truth.
func (r *Reconciler) confirmAppointment(ctx context.Context, tenantID uuid.UUID, payment *model.Payment) {
	if payment.AppointmentID == nil {
		return
	}
	appointmentID := *payment.AppointmentID

	appointment, err := r.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		log.Printf("webhook: load appointment %s: %v", appointmentID, err)
		return
	}

	if appointment.CanTransitionTo(model.AppointmentStatusConfirmed) {
		if err := r.appointments.UpdateStatus(ctx, appointmentID, model.AppointmentStatusConfirmed); err != nil {
			log.Printf("webhook: confirm appointment %s: %v", appointmentID, err)
		} else {
			appointment.Status = model.AppointmentStatusConfirmed
		}
	}

	if _, err := r.galleries.GetByAppointmentID(ctx, appointmentID); errors.Is(err, gorm.ErrRecordNotFound) {
		linkDays := gallery.DefaultLinkValidityDays
		if studio, serr := r.settings.StudioFor(ctx, tenantID); serr == nil {
			linkDays = studio.LinkValidityDays
		}
		g := &model.Gallery{
			TenantID:      tenantID,
			ClientID:      payment.ClientID,
			AppointmentID: &appointmentID,
		}
		if perr := gallery.Provision(r.db.WithContext(ctx), g, linkDays, r.now()); perr != nil {
			log.Printf("webhook: provision gallery for appointment %s: %v", appointmentID, perr)
		}
	} else if err != nil {
		log.Printf("webhook: lookup gallery for appointment %s: %v", appointmentID, err)
	}

	if err := r.clients.IncrementTotalSpent(ctx, payment.ClientID, payment.Amount); err != nil {
		log.Printf("webhook: increment total spent for client %s: %v", payment.ClientID, err)
	}

	client, err := r.clients.GetByID(ctx, payment.ClientID)
	if err != nil {
		log.Printf("webhook: load client %s: %v", payment.ClientID, err)
		return
	}

	if err := r.notifier.Enqueue(ctx, tenantID, model.TemplatePaymentConfirmed, client.Phone, map[string]string{
		"name":         client.Name,
		"amount":       strconv.FormatFloat(payment.Amount, 'f', 2, 64),
		"session_type": appointment.SessionType,
		"date":         appointment.ScheduledDate.Format("02/01/2006 15:04"),
	}); err != nil {
		log.Printf("webhook: enqueue payment confirmation: %v", err)
	}

	if r.calendar != nil {
		if err := r.calendar.ScheduleEvent(ctx, appointment, client); err != nil {
			log.Printf("webhook: schedule calendar event: %v", err)
		}
	}
}

// materializeBooking rebuilds client and appointment purely from the
// charge metadata (gateway-deferred-creation case) and creates the
// pending payment row. Returns (nil, nil) when the metadata is unusable.
func (r *Reconciler) materializeBooking(
	ctx context.Context,
	tenantID uuid.UUID,
	charge *gateway.Charge,
) (*model.Payment, error) {
	meta := charge.Metadata
	name := metaString(meta, "client_name")
	phone := metaString(meta, "phone")
	scheduledRaw := metaString(meta, "scheduled_date")
	if name == "" || phone == "" || scheduledRaw == "" {
		log.Printf("webhook: charge %s has no booking metadata, ignoring", charge.ID)
		return nil, nil
	}
	scheduled, err := time.Parse(time.RFC3339, scheduledRaw)
	if err != nil {
		log.Printf("webhook: charge %s has bad scheduled_date %q, ignoring", charge.ID, scheduledRaw)
		return nil, nil
	}

	amount := metaFloat(meta, "total_amount")
	if amount == 0 {
		amount = charge.Amount
	}

	var payment *model.Payment
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := repository.NewGormClientRepository(tx).
			UpsertByPhone(ctx, tenantID, name, phone, metaString(meta, "email"))
		if err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}

		appointment := &model.Appointment{
			TenantID:       tenantID,
			ClientID:       client.ID,
			SessionType:    metaString(meta, "session_type"),
			SessionDetails: []byte(metaJSON(meta, "session_details")),
			ScheduledDate:  scheduled,
			TotalAmount:    amount,
			MinimumPhotos:  metaInt(meta, "minimum_photos"),
			Status:         model.AppointmentStatusPending,
			PaymentStatus:  model.PaymentStatusPending,
			TermsAccepted:  metaBool(meta, "terms_accepted"),
		}
		if err := tx.Create(appointment).Error; err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		payment = &model.Payment{
			TenantID:      tenantID,
			ClientID:      client.ID,
			AppointmentID: &appointment.ID,
			MercadopagoID: charge.ID,
			Amount:        amount,
			Status:        model.PaymentStatusPending,
			PaymentType:   model.PaymentTypeInitial,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: materialize booking for charge %s: %v", ErrTransient, charge.ID, err)
	}
	return payment, nil
}

// handleExtras covers extra-photos charges: the payment row always exists
// (created at submission); approval finalizes the parked selection.
func (r *Reconciler) handleExtras(
	ctx context.Context,
	tenantID uuid.UUID,
	charge *gateway.Charge,
	status model.PaymentStatus,
	raw []byte,
) error {
	payment, err := r.payments.GetByChargeID(ctx, charge.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("webhook: extras charge %s has no payment row, ignoring", charge.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: load payment %s: %v", ErrTransient, charge.ID, err)
	}

	if status == model.PaymentStatusPending {
		return nil
	}

	transitioned, err := r.payments.MarkStatus(ctx, charge.ID, status, raw)
	if err != nil {
		return fmt.Errorf("%w: mark payment %s: %v", ErrTransient, charge.ID, err)
	}
	if !transitioned || status != model.PaymentStatusApproved {
		return nil
	}

	r.settleExtras(ctx, tenantID, payment)
	return nil
}

// settleExtras runs the extras-approval side effects: finalize the parked
// selection, count revenue, notify. Best-effort, same as confirmAppointment.
func (r *Reconciler) settleExtras(ctx context.Context, tenantID uuid.UUID, payment *model.Payment) {
	if payment.GalleryID == nil {
		log.Printf("webhook: extras payment %s has no gallery", payment.ID)
		return
	}

	if _, err := r.galleries.CompleteSelection(ctx, *payment.GalleryID, r.now()); err != nil {
		log.Printf("webhook: complete selection for gallery %s: %v", *payment.GalleryID, err)
	}
	if err := r.galleries.Touch(ctx, *payment.GalleryID); err != nil {
		log.Printf("webhook: touch gallery %s: %v", *payment.GalleryID, err)
	}
	if err := r.clients.IncrementTotalSpent(ctx, payment.ClientID, payment.Amount); err != nil {
		log.Printf("webhook: increment total spent for client %s: %v", payment.ClientID, err)
	}

	client, err := r.clients.GetByID(ctx, payment.ClientID)
	if err != nil {
		log.Printf("webhook: load client %s: %v", payment.ClientID, err)
		return
	}
	if err := r.notifier.Enqueue(ctx, tenantID, model.TemplatePaymentConfirmed, client.Phone, map[string]string{
		"name":         client.Name,
		"amount":       strconv.FormatFloat(payment.Amount, 'f', 2, 64),
		"session_type": "fotos extras",
		"date":         r.now().Format("02/01/2006 15:04"),
	}); err != nil {
		log.Printf("webhook: enqueue extras confirmation: %v", err)
	}
}

// handlePublic covers public-gallery charges. There is no pre-existing
// payment row; the row's existence is itself the idempotency gate for
// the child-gallery creation and the total_spent increment.
func (r *Reconciler) handlePublic(
	ctx context.Context,
	tenantID uuid.UUID,
	charge *gateway.Charge,
	status model.PaymentStatus,
	raw []byte,
) error {
	if existing, err := r.payments.GetByChargeID(ctx, charge.ID); err == nil && existing != nil {
		// Already created; a status transition is all that may remain.
		if _, merr := r.payments.MarkStatus(ctx, charge.ID, status, raw); merr != nil {
			return fmt.Errorf("%w: mark payment %s: %v", ErrTransient, charge.ID, merr)
		}
		return nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: load payment %s: %v", ErrTransient, charge.ID, err)
	}

	if status != model.PaymentStatusApproved {
		return nil
	}

	meta := charge.Metadata
	name := metaString(meta, "client_name")
	phone := metaString(meta, "phone")
	parentID, err := uuid.Parse(metaString(meta, "gallery_id"))
	if name == "" || phone == "" || err != nil {
		log.Printf("webhook: public charge %s has no usable metadata, ignoring", charge.ID)
		return nil
	}

	parent, err := r.galleries.GetByID(ctx, parentID)
	if err != nil {
		log.Printf("webhook: public charge %s references unknown gallery %s", charge.ID, parentID)
		return nil
	}

	var selected []string
	if rawSel := metaJSON(meta, "selected_photos"); rawSel != "" {
		if err := json.Unmarshal([]byte(rawSel), &selected); err != nil {
			log.Printf("webhook: public charge %s has bad selected_photos: %v", charge.ID, err)
		}
	}
	seeded, _ := json.Marshal(selected)

	// Loaded before the transaction: repository reads run on the outer
	// connection pool and must not interleave with an open tx.
	linkDays := gallery.DefaultLinkValidityDays
	if studio, serr := r.settings.StudioFor(ctx, tenantID); serr == nil {
		linkDays = studio.LinkValidityDays
	}

	var clientID uuid.UUID
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := repository.NewGormClientRepository(tx).
			UpsertByPhone(ctx, tenantID, name, phone, metaString(meta, "email"))
		if err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}
		clientID = client.ID

		child := &model.Gallery{
			TenantID:        tenantID,
			ClientID:        client.ID,
			ParentGalleryID: &parent.ID,
			IsPublic:        true,
			PhotosSelected:  seeded,
		}
		if err := gallery.Provision(tx, child, linkDays, r.now()); err != nil {
			return err
		}

		payment := &model.Payment{
			TenantID:      tenantID,
			ClientID:      client.ID,
			GalleryID:     &child.ID,
			MercadopagoID: charge.ID,
			Amount:        charge.Amount,
			Status:        model.PaymentStatusApproved,
			PaymentType:   model.PaymentTypePublicGallery,
			WebhookData:   raw,
		}
		return tx.Create(payment).Error
	})
	if err != nil {
		return fmt.Errorf("%w: create public-gallery records for charge %s: %v", ErrTransient, charge.ID, err)
	}

	if err := r.clients.IncrementTotalSpent(ctx, clientID, charge.Amount); err != nil {
		log.Printf("webhook: increment total spent for client %s: %v", clientID, err)
	}
	return nil
}

// ===== metadata access =====
//
// The provider round-trips metadata loosely (numbers come back as
// float64, booleans sometimes as strings), so reads are tolerant.

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaJSON(meta map[string]any, key string) string {
	return metaString(meta, key)
}

func metaFloat(meta map[string]any, key string) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func metaInt(meta map[string]any, key string) int {
	return int(metaFloat(meta, key))
}

func metaBool(meta map[string]any, key string) bool {
	if meta == nil {
		return false
	}
	switch v := meta[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
