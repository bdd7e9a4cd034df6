package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/gallery"
	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/repository"
	"github.com/valdigley/studio-booking/internal/testutil"
)

type reconcilerFixture struct {
	db       *gorm.DB
	rec      *Reconciler
	charger  *testutil.FakeCharger
	notifier *testutil.FakeNotifier
	tenantID uuid.UUID
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	db := testutil.NewDB(t)
	tenantID := testutil.SeedStudio(t, db)
	testutil.ActivateGateway(t, db, tenantID)

	charger := testutil.NewFakeCharger()
	notifier := &testutil.FakeNotifier{}

	rec := NewReconciler(
		db,
		repository.NewGormPaymentRepository(db),
		repository.NewGormAppointmentRepository(db),
		repository.NewGormGalleryRepository(db),
		repository.NewGormClientRepository(db),
		repository.NewGormSettingsRepository(db),
		notifier,
		charger.Factory,
		nil,
	)
	return &reconcilerFixture{db: db, rec: rec, charger: charger, notifier: notifier, tenantID: tenantID}
}

// bookingCharge creates a provider-side charge the way a deferred booking
// submission would, with the whole form in the metadata.
func (fx *reconcilerFixture) bookingCharge(t *testing.T, amount float64) *gateway.Charge {
	t.Helper()
	charge, err := fx.charger.CreateCharge(context.Background(), gateway.ChargeRequest{
		Amount:            amount,
		ExternalReference: fmt.Sprintf("booking-%s-%s", fx.tenantID, uuid.NewString()),
		Metadata: map[string]any{
			"tenant_id":      fx.tenantID.String(),
			"client_name":    "João Souza",
			"phone":          "11977776666",
			"email":          "joao@example.com",
			"session_type":   "newborn",
			"scheduled_date": "2025-02-10T14:00:00Z",
			"total_amount":   amount,
			"minimum_photos": 5,
			"terms_accepted": true,
		},
	})
	require.NoError(t, err)
	return charge
}

func eventFor(chargeID string) []byte {
	return []byte(fmt.Sprintf(`{"type":"payment","data":{"id":%q}}`, chargeID))
}

func (fx *reconcilerFixture) deliver(t *testing.T, chargeID string) {
	t.Helper()
	require.NoError(t, fx.rec.HandleEvent(context.Background(), fx.tenantID, eventFor(chargeID)))
}

func TestHandleEvent_ApprovedBookingMaterializesOnce(t *testing.T) {
	fx := newReconcilerFixture(t)
	charge := fx.bookingCharge(t, 750)
	fx.charger.SetStatus(charge.ID, gateway.ChargeStatusApproved)

	// At-least-once delivery: the provider redelivers the same event.
	for i := 0; i < 3; i++ {
		fx.deliver(t, charge.ID)
	}

	var appointments []model.Appointment
	require.NoError(t, fx.db.Find(&appointments).Error)
	require.Len(t, appointments, 1)
	a := appointments[0]
	assert.Equal(t, model.AppointmentStatusConfirmed, a.Status)
	assert.Equal(t, model.PaymentStatusApproved, a.PaymentStatus)
	assert.Equal(t, "newborn", a.SessionType)
	assert.Equal(t, 5, a.MinimumPhotos)
	assert.Equal(t, 750.0, a.TotalAmount)
	assert.True(t, a.TermsAccepted)

	var payments []model.Payment
	require.NoError(t, fx.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentStatusApproved, payments[0].Status)
	assert.Equal(t, charge.ID, payments[0].MercadopagoID)

	var galleries []model.Gallery
	require.NoError(t, fx.db.Find(&galleries).Error)
	require.Len(t, galleries, 1)
	assert.Len(t, galleries[0].GalleryToken, 64)

	var client model.Client
	require.NoError(t, fx.db.First(&client).Error)
	assert.Equal(t, 750.0, client.TotalSpent, "revenue must count exactly once")

	require.Len(t, fx.notifier.Messages, 1)
	assert.Equal(t, model.TemplatePaymentConfirmed, fx.notifier.Messages[0].Template)
}

func TestHandleEvent_PendingChargeOnlyMaterializes(t *testing.T) {
	fx := newReconcilerFixture(t)
	charge := fx.bookingCharge(t, 750)

	fx.deliver(t, charge.ID)

	var a model.Appointment
	require.NoError(t, fx.db.First(&a).Error)
	assert.Equal(t, model.AppointmentStatusPending, a.Status)
	assert.Equal(t, model.PaymentStatusPending, a.PaymentStatus)

	var client model.Client
	require.NoError(t, fx.db.First(&client).Error)
	assert.Equal(t, 0.0, client.TotalSpent)
	assert.Empty(t, fx.notifier.Messages)
	assert.EqualValues(t, 0, countRows(t, fx.db, &model.Gallery{}))
}

func TestHandleEvent_ExpiredChargeNeverConfirms(t *testing.T) {
	fx := newReconcilerFixture(t)
	charge := fx.bookingCharge(t, 750)

	fx.charger.SetStatus(charge.ID, gateway.ChargeStatusExpired)
	fx.deliver(t, charge.ID)

	// A stale approved delivery after expiry must not reopen the payment.
	fx.charger.SetStatus(charge.ID, gateway.ChargeStatusApproved)
	fx.deliver(t, charge.ID)

	var p model.Payment
	require.NoError(t, fx.db.First(&p).Error)
	assert.Equal(t, model.PaymentStatusExpired, p.Status)

	var a model.Appointment
	require.NoError(t, fx.db.First(&a).Error)
	assert.Equal(t, model.AppointmentStatusPending, a.Status)

	var client model.Client
	require.NoError(t, fx.db.First(&client).Error)
	assert.Equal(t, 0.0, client.TotalSpent)
	assert.Empty(t, fx.notifier.Messages)
}

func TestHandleEvent_ExtrasApprovalCompletesSelection(t *testing.T) {
	fx := newReconcilerFixture(t)
	ctx := context.Background()
	client := testutil.SeedClient(t, fx.db, fx.tenantID, "Ana", "11955554444")

	g := &model.Gallery{TenantID: fx.tenantID, ClientID: client.ID}
	require.NoError(t, gallery.Provision(fx.db, g, 30, time.Now()))

	charge, err := fx.charger.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:            50,
		ExternalReference: fmt.Sprintf("%s-extra-%s", g.ID, uuid.NewString()),
	})
	require.NoError(t, err)

	require.NoError(t, fx.db.Create(&model.Payment{
		TenantID:      fx.tenantID,
		ClientID:      client.ID,
		GalleryID:     &g.ID,
		MercadopagoID: charge.ID,
		Amount:        50,
		Status:        model.PaymentStatusPending,
		PaymentType:   model.PaymentTypeExtraPhotos,
	}).Error)

	fx.charger.SetStatus(charge.ID, gateway.ChargeStatusApproved)
	fx.deliver(t, charge.ID)
	fx.deliver(t, charge.ID)

	var got model.Gallery
	require.NoError(t, fx.db.First(&got, "id = ?", g.ID).Error)
	assert.True(t, got.SelectionCompleted)
	assert.Equal(t, model.GalleryStatusCompleted, got.Status)

	var spent model.Client
	require.NoError(t, fx.db.First(&spent, "id = ?", client.ID).Error)
	assert.Equal(t, 50.0, spent.TotalSpent)

	require.Len(t, fx.notifier.Messages, 1)
}

func TestHandleEvent_PublicGalleryCreatesChildOnce(t *testing.T) {
	fx := newReconcilerFixture(t)
	ctx := context.Background()
	owner := testutil.SeedClient(t, fx.db, fx.tenantID, "Dona do ensaio", "11933332222")

	parent := &model.Gallery{TenantID: fx.tenantID, ClientID: owner.ID, IsPublic: true}
	require.NoError(t, gallery.Provision(fx.db, parent, 30, time.Now()))

	selected, _ := json.Marshal([]string{uuid.NewString(), uuid.NewString()})
	charge, err := fx.charger.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:            100,
		ExternalReference: "public-" + parent.ID.String(),
		Metadata: map[string]any{
			"client_name":     "Comprador",
			"phone":           "11911110000",
			"gallery_id":      parent.ID.String(),
			"selected_photos": string(selected),
		},
	})
	require.NoError(t, err)

	fx.charger.SetStatus(charge.ID, gateway.ChargeStatusApproved)
	fx.deliver(t, charge.ID)
	fx.deliver(t, charge.ID)

	var children []model.Gallery
	require.NoError(t, fx.db.Find(&children, "parent_gallery_id = ?", parent.ID).Error)
	require.Len(t, children, 1)
	assert.True(t, children[0].IsPublic)
	assert.JSONEq(t, string(selected), string(children[0].PhotosSelected))

	var payments []model.Payment
	require.NoError(t, fx.db.Find(&payments, "mercadopago_id = ?", charge.ID).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentStatusApproved, payments[0].Status)
	assert.Equal(t, model.PaymentTypePublicGallery, payments[0].PaymentType)

	var buyer model.Client
	require.NoError(t, fx.db.First(&buyer, "phone = ?", "11911110000").Error)
	assert.Equal(t, 100.0, buyer.TotalSpent)
}

// newManualFixture wires a reconciler for a tenant without a gateway,
// where only out-of-band confirmation can settle payments.
func newManualFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	db := testutil.NewDB(t)
	tenantID := testutil.SeedStudio(t, db)

	notifier := &testutil.FakeNotifier{}
	rec := NewReconciler(
		db,
		repository.NewGormPaymentRepository(db),
		repository.NewGormAppointmentRepository(db),
		repository.NewGormGalleryRepository(db),
		repository.NewGormClientRepository(db),
		repository.NewGormSettingsRepository(db),
		notifier,
		testutil.NewFakeCharger().Factory,
		nil,
	)
	return &reconcilerFixture{db: db, rec: rec, notifier: notifier, tenantID: tenantID}
}

// seedManualBooking creates the rows a manual-PIX booking submission
// leaves behind: pending appointment plus its manual payment.
func (fx *reconcilerFixture) seedManualBooking(t *testing.T, clientID uuid.UUID, amount float64) *model.Payment {
	t.Helper()

	appointment := &model.Appointment{
		TenantID:      fx.tenantID,
		ClientID:      clientID,
		SessionType:   "gestante",
		ScheduledDate: time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC),
		TotalAmount:   amount,
		MinimumPhotos: 5,
		Status:        model.AppointmentStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TermsAccepted: true,
	}
	require.NoError(t, fx.db.Create(appointment).Error)

	payment := &model.Payment{
		TenantID:      fx.tenantID,
		ClientID:      clientID,
		AppointmentID: &appointment.ID,
		MercadopagoID: "manual-" + appointment.ID.String(),
		Amount:        amount,
		Status:        model.PaymentStatusPending,
		PaymentType:   model.PaymentTypeInitial,
	}
	require.NoError(t, fx.db.Create(payment).Error)
	return payment
}

func TestConfirmManualPayment_RunsApprovalOnce(t *testing.T) {
	fx := newManualFixture(t)
	ctx := context.Background()
	client := testutil.SeedClient(t, fx.db, fx.tenantID, "Beatriz", "11944443333")
	payment := fx.seedManualBooking(t, client.ID, 750)

	require.NoError(t, fx.rec.ConfirmManualPayment(ctx, fx.tenantID, payment.ID))

	var p model.Payment
	require.NoError(t, fx.db.First(&p, "id = ?", payment.ID).Error)
	assert.Equal(t, model.PaymentStatusApproved, p.Status)

	var a model.Appointment
	require.NoError(t, fx.db.First(&a, "id = ?", *payment.AppointmentID).Error)
	assert.Equal(t, model.AppointmentStatusConfirmed, a.Status)
	assert.Equal(t, model.PaymentStatusApproved, a.PaymentStatus)

	var spent model.Client
	require.NoError(t, fx.db.First(&spent, "id = ?", client.ID).Error)
	assert.Equal(t, 750.0, spent.TotalSpent)

	assert.EqualValues(t, 1, countRows(t, fx.db, &model.Gallery{}))
	require.Len(t, fx.notifier.Messages, 1)
	assert.Equal(t, model.TemplatePaymentConfirmed, fx.notifier.Messages[0].Template)

	// A second confirmation finds the row already settled and repeats
	// nothing.
	require.ErrorIs(t, fx.rec.ConfirmManualPayment(ctx, fx.tenantID, payment.ID), ErrPaymentSettled)

	require.NoError(t, fx.db.First(&spent, "id = ?", client.ID).Error)
	assert.Equal(t, 750.0, spent.TotalSpent)
	assert.EqualValues(t, 1, countRows(t, fx.db, &model.Gallery{}))
	assert.Len(t, fx.notifier.Messages, 1)
}

func TestConfirmManualPayment_WrongTenant(t *testing.T) {
	fx := newManualFixture(t)
	client := testutil.SeedClient(t, fx.db, fx.tenantID, "Beatriz", "11944443333")
	payment := fx.seedManualBooking(t, client.ID, 750)

	err := fx.rec.ConfirmManualPayment(context.Background(), uuid.New(), payment.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var p model.Payment
	require.NoError(t, fx.db.First(&p, "id = ?", payment.ID).Error)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
}

func TestConfirmManualPayment_ExtrasFinalizesSelection(t *testing.T) {
	fx := newManualFixture(t)
	ctx := context.Background()
	client := testutil.SeedClient(t, fx.db, fx.tenantID, "Carla", "11922221111")

	g := &model.Gallery{TenantID: fx.tenantID, ClientID: client.ID}
	require.NoError(t, gallery.Provision(fx.db, g, 30, time.Now()))

	payment := &model.Payment{
		TenantID:      fx.tenantID,
		ClientID:      client.ID,
		GalleryID:     &g.ID,
		MercadopagoID: "manual-" + uuid.NewString(),
		Amount:        75,
		Status:        model.PaymentStatusPending,
		PaymentType:   model.PaymentTypeExtraPhotos,
	}
	require.NoError(t, fx.db.Create(payment).Error)

	require.NoError(t, fx.rec.ConfirmManualPayment(ctx, fx.tenantID, payment.ID))

	var got model.Gallery
	require.NoError(t, fx.db.First(&got, "id = ?", g.ID).Error)
	assert.True(t, got.SelectionCompleted)
	assert.Equal(t, model.GalleryStatusCompleted, got.Status)

	var spent model.Client
	require.NoError(t, fx.db.First(&spent, "id = ?", client.ID).Error)
	assert.Equal(t, 75.0, spent.TotalSpent)
	require.Len(t, fx.notifier.Messages, 1)
}

func TestHandleEvent_UnknownChargeIsIgnored(t *testing.T) {
	fx := newReconcilerFixture(t)

	require.NoError(t, fx.rec.HandleEvent(context.Background(), fx.tenantID, eventFor("does-not-exist")))

	assert.EqualValues(t, 0, countRows(t, fx.db, &model.Payment{}))
}

func TestHandleEvent_TenantWithoutGatewayIsIgnored(t *testing.T) {
	db := testutil.NewDB(t)
	tenantID := testutil.SeedStudio(t, db)

	charger := testutil.NewFakeCharger()
	rec := NewReconciler(
		db,
		repository.NewGormPaymentRepository(db),
		repository.NewGormAppointmentRepository(db),
		repository.NewGormGalleryRepository(db),
		repository.NewGormClientRepository(db),
		repository.NewGormSettingsRepository(db),
		&testutil.FakeNotifier{},
		charger.Factory,
		nil,
	)

	require.NoError(t, rec.HandleEvent(context.Background(), tenantID, eventFor("123")))
}

func TestHandleEvent_BadPayload(t *testing.T) {
	fx := newReconcilerFixture(t)

	err := fx.rec.HandleEvent(context.Background(), fx.tenantID, []byte(`{"type":"oops"}`))
	require.ErrorIs(t, err, ErrBadEvent)
}

func countRows(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
