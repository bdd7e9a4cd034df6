package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/repository"
	"github.com/valdigley/studio-booking/internal/testutil"
)

type selectionFixture struct {
	db       *gorm.DB
	svc      *Service
	charger  *testutil.FakeCharger
	notifier *testutil.FakeNotifier
	tenantID uuid.UUID
	client   *model.Client
	gallery  *model.Gallery
	photos   []model.Photo
}

func newSelectionFixture(t *testing.T, photoCount int) *selectionFixture {
	t.Helper()

	db := testutil.NewDB(t)
	tenantID := testutil.SeedStudio(t, db)
	client := testutil.SeedClient(t, db, tenantID, "Carla", "11944443333")

	charger := testutil.NewFakeCharger()
	notifier := &testutil.FakeNotifier{}

	svc := NewService(
		repository.NewGormGalleryRepository(db),
		repository.NewGormPhotoRepository(db),
		repository.NewGormPaymentRepository(db),
		repository.NewGormAppointmentRepository(db),
		repository.NewGormClientRepository(db),
		repository.NewGormSettingsRepository(db),
		notifier,
		charger.Factory,
	)

	g := &model.Gallery{TenantID: tenantID, ClientID: client.ID}
	require.NoError(t, Provision(db, g, 30, time.Now()))

	photos := make([]model.Photo, 0, photoCount)
	for i := 0; i < photoCount; i++ {
		p := model.Photo{
			GalleryID: g.ID,
			Filename:  fmt.Sprintf("IMG_%04d.jpg", i),
			URL:       fmt.Sprintf("https://cdn.example.com/%d.jpg", i),
			Size:      1024,
		}
		require.NoError(t, db.Create(&p).Error)
		photos = append(photos, p)
	}

	return &selectionFixture{
		db: db, svc: svc, charger: charger, notifier: notifier,
		tenantID: tenantID, client: client, gallery: g, photos: photos,
	}
}

func (fx *selectionFixture) photoIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fx.photos[i].ID)
	}
	return ids
}

func TestProvision_TokenShape(t *testing.T) {
	db := testutil.NewDB(t)
	tenantID := testutil.SeedStudio(t, db)
	client := testutil.SeedClient(t, db, tenantID, "Bia", "11900001111")

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		g := &model.Gallery{TenantID: tenantID, ClientID: client.ID}
		require.NoError(t, Provision(db, g, 30, time.Now()))
		assert.Len(t, g.GalleryToken, TokenLength)
		assert.False(t, seen[g.GalleryToken], "tokens must be unique")
		seen[g.GalleryToken] = true
		assert.Equal(t, model.GalleryStatusPending, g.Status)
	}
}

func TestAccessByToken(t *testing.T) {
	fx := newSelectionFixture(t, 3)
	ctx := context.Background()

	g, photos, err := fx.svc.AccessByToken(ctx, fx.gallery.GalleryToken)
	require.NoError(t, err)
	assert.Equal(t, fx.gallery.ID, g.ID)
	assert.Len(t, photos, 3)

	_, _, err = fx.svc.AccessByToken(ctx, strings.Repeat("0", TokenLength))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccessByToken_ExpiredLink(t *testing.T) {
	fx := newSelectionFixture(t, 1)

	require.NoError(t, fx.db.Model(&model.Gallery{}).
		Where("id = ?", fx.gallery.ID).
		Update("link_expires_at", time.Now().Add(-time.Hour)).Error)

	_, _, err := fx.svc.AccessByToken(context.Background(), fx.gallery.GalleryToken)
	require.ErrorIs(t, err, ErrLinkExpired)
}

func TestToggle_AddAndRemove(t *testing.T) {
	fx := newSelectionFixture(t, 2)
	ctx := context.Background()

	selected, err := fx.svc.Toggle(ctx, fx.gallery.ID, fx.photos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fx.photos[0].ID}, selected)

	selected, err = fx.svc.Toggle(ctx, fx.gallery.ID, fx.photos[1].ID)
	require.NoError(t, err)
	assert.Len(t, selected, 2)

	// Toggling again removes.
	selected, err = fx.svc.Toggle(ctx, fx.gallery.ID, fx.photos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fx.photos[1].ID}, selected)
}

func TestToggle_RejectsForeignPhoto(t *testing.T) {
	fx := newSelectionFixture(t, 1)

	other := &model.Gallery{TenantID: fx.tenantID, ClientID: fx.client.ID}
	require.NoError(t, Provision(fx.db, other, 30, time.Now()))
	stray := model.Photo{GalleryID: other.ID, Filename: "stray.jpg", URL: "https://cdn.example.com/s.jpg", Size: 10}
	require.NoError(t, fx.db.Create(&stray).Error)

	_, err := fx.svc.Toggle(context.Background(), fx.gallery.ID, stray.ID)
	require.ErrorIs(t, err, ErrPhotoNotInGallery)
}

func TestComment_SetAndClear(t *testing.T) {
	fx := newSelectionFixture(t, 1)
	ctx := context.Background()
	photoID := fx.photos[0].ID

	require.NoError(t, fx.svc.Comment(ctx, fx.gallery.ID, photoID, "ampliar essa"))

	var g model.Gallery
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	comments := map[string]string{}
	require.NoError(t, json.Unmarshal(g.PhotoComments, &comments))
	assert.Equal(t, "ampliar essa", comments[photoID.String()])

	require.NoError(t, fx.svc.Comment(ctx, fx.gallery.ID, photoID, ""))
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	comments = map[string]string{}
	require.NoError(t, json.Unmarshal(g.PhotoComments, &comments))
	assert.Empty(t, comments)
}

func TestSubmitSelection_ExactMinimumCompletes(t *testing.T) {
	fx := newSelectionFixture(t, 6)
	ctx := context.Background()

	result, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(5))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Zero(t, result.ExtraCount)
	assert.Nil(t, result.Charge)

	var g model.Gallery
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	assert.True(t, g.SelectionCompleted)
	assert.Equal(t, model.GalleryStatusCompleted, g.Status)

	assert.Empty(t, fx.charger.CreateCalls)
	require.Len(t, fx.notifier.Messages, 1)
	assert.Equal(t, model.TemplateSelectionReceived, fx.notifier.Messages[0].Template)

	// Everything is locked afterwards.
	_, err = fx.svc.Toggle(ctx, fx.gallery.ID, fx.photos[5].ID)
	require.ErrorIs(t, err, ErrSelectionLocked)
	_, err = fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(5))
	require.ErrorIs(t, err, ErrSelectionLocked)
}

func TestSubmitSelection_BelowMinimum(t *testing.T) {
	fx := newSelectionFixture(t, 6)

	_, err := fx.svc.SubmitSelection(context.Background(), fx.gallery.ID, fx.photoIDs(3))
	require.ErrorIs(t, err, ErrBelowMinimum)

	var g model.Gallery
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	assert.False(t, g.SelectionCompleted)
	assert.Empty(t, fx.notifier.Messages)
}

func TestSubmitSelection_ExtrasWithGateway(t *testing.T) {
	fx := newSelectionFixture(t, 8)
	testutil.ActivateGateway(t, fx.db, fx.tenantID)
	ctx := context.Background()

	result, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(7))
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 2, result.ExtraCount)
	assert.Equal(t, 50.0, result.ExtraAmount, "2 extras at 25 each")
	require.NotNil(t, result.Charge)

	require.Len(t, fx.charger.CreateCalls, 1)
	call := fx.charger.CreateCalls[0]
	assert.Equal(t, 50.0, call.Amount)
	assert.Contains(t, call.ExternalReference, "-extra-")
	assert.True(t, strings.HasPrefix(call.ExternalReference, fx.gallery.ID.String()))

	var g model.Gallery
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	assert.False(t, g.SelectionCompleted, "completion waits for payment approval")
	assert.Equal(t, model.GalleryStatusAwaitingExtras, g.Status)
	assert.Equal(t, 2, g.ExtraPhotosSelected)
	require.NotNil(t, g.ExtraPhotosPayment)

	var p model.Payment
	require.NoError(t, fx.db.First(&p, "id = ?", *g.ExtraPhotosPayment).Error)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Equal(t, model.PaymentTypeExtraPhotos, p.PaymentType)
	assert.Equal(t, result.Charge.ID, p.MercadopagoID)

	require.Len(t, fx.notifier.Messages, 1)
	msg := fx.notifier.Messages[0]
	assert.Equal(t, model.TemplateSelectionExtras, msg.Template)
	assert.Equal(t, "2", msg.Vars["extra_count"])
	assert.Equal(t, "50.00", msg.Vars["extra_amount"])
}

func TestSubmitSelection_ExtrasChargeFailureLeavesGalleryIntact(t *testing.T) {
	fx := newSelectionFixture(t, 8)
	testutil.ActivateGateway(t, fx.db, fx.tenantID)
	fx.charger.CreateErr = &gateway.GatewayError{StatusCode: 500, ProviderMessage: "internal error"}
	ctx := context.Background()

	_, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(7))
	require.Error(t, err)

	// Nothing stuck: the client can retry the exact same submission later.
	var g model.Gallery
	require.NoError(t, fx.db.First(&g, "id = ?", fx.gallery.ID).Error)
	assert.False(t, g.SelectionCompleted)
	assert.Equal(t, model.GalleryStatusPending, g.Status)
	assert.JSONEq(t, "[]", string(g.PhotosSelected))
	assert.Nil(t, g.ExtraPhotosPayment)

	var n int64
	require.NoError(t, fx.db.Model(&model.Payment{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
	assert.Empty(t, fx.notifier.Messages)

	fx.charger.CreateErr = nil
	result, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(7))
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExtraCount)
}

func TestSubmitSelection_ExtrasWithoutGateway(t *testing.T) {
	fx := newSelectionFixture(t, 8)
	ctx := context.Background()

	result, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(6))
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, result.ExtraCount)
	assert.Nil(t, result.Charge)
	assert.Empty(t, fx.charger.CreateCalls)

	var p model.Payment
	require.NoError(t, fx.db.First(&p, "gallery_id = ?", fx.gallery.ID).Error)
	assert.True(t, strings.HasPrefix(p.MercadopagoID, "manual-"))
	assert.Equal(t, 25.0, p.Amount)
}

func TestSubmitSelection_MinimumFromAppointment(t *testing.T) {
	fx := newSelectionFixture(t, 4)
	ctx := context.Background()

	// This booking negotiated a lower minimum than the studio default.
	appointment := &model.Appointment{
		TenantID:      fx.tenantID,
		ClientID:      fx.client.ID,
		SessionType:   "casal",
		ScheduledDate: time.Now().Add(48 * time.Hour),
		TotalAmount:   450,
		MinimumPhotos: 3,
		Status:        model.AppointmentStatusConfirmed,
		PaymentStatus: model.PaymentStatusApproved,
		TermsAccepted: true,
	}
	require.NoError(t, fx.db.Create(appointment).Error)
	require.NoError(t, fx.db.Model(&model.Gallery{}).
		Where("id = ?", fx.gallery.ID).
		Update("appointment_id", appointment.ID).Error)

	result, err := fx.svc.SubmitSelection(ctx, fx.gallery.ID, fx.photoIDs(3))
	require.NoError(t, err)
	assert.True(t, result.Completed)
}
