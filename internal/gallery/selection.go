// Package gallery manages client photo selection: favorites, the
// minimum-photo threshold and the extra-photo payment branch.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/repository"
)

var (
	ErrSelectionLocked   = errors.New("selection already completed")
	ErrBelowMinimum      = errors.New("selection below minimum photos")
	ErrPhotoNotInGallery = errors.New("photo does not belong to gallery")
	ErrLinkExpired       = errors.New("gallery link expired")
)

// GatewayFactory builds a charger from tenant credentials; swapped for a
// fake in tests.
type GatewayFactory func(accessToken string) gateway.Charger

// Notifier enqueues a templated WhatsApp message.
type Notifier interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, templateType model.NotificationTemplate, recipientPhone string, vars map[string]string) error
}

type Service struct {
	galleries    repository.GalleryRepository
	photos       repository.PhotoRepository
	payments     repository.PaymentRepository
	appointments repository.AppointmentRepository
	clients      repository.ClientRepository
	settings     repository.SettingsRepository
	notifier     Notifier
	newGateway   GatewayFactory

	now func() time.Time
}

func NewService(
	galleries repository.GalleryRepository,
	photos repository.PhotoRepository,
	payments repository.PaymentRepository,
	appointments repository.AppointmentRepository,
	clients repository.ClientRepository,
	settings repository.SettingsRepository,
	notifier Notifier,
	newGateway GatewayFactory,
) *Service {
	return &Service{
		galleries:    galleries,
		photos:       photos,
		payments:     payments,
		appointments: appointments,
		clients:      clients,
		settings:     settings,
		notifier:     notifier,
		newGateway:   newGateway,
		now:          time.Now,
	}
}

// AccessByToken resolves the client-facing view. The token is the only
// credential; expired links are rejected.
func (s *Service) AccessByToken(ctx context.Context, token string) (*model.Gallery, []model.Photo, error) {
	g, err := s.galleries.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if g.Expired(s.now()) {
		return nil, nil, ErrLinkExpired
	}

	photos, _, err := s.photos.ListByGallery(ctx, g.ID, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	return g, photos, nil
}

// Toggle flips a photo's membership in the selected set. Disallowed once
// the selection is completed.
func (s *Service) Toggle(ctx context.Context, galleryID, photoID uuid.UUID) ([]uuid.UUID, error) {
	g, err := s.galleries.GetByID(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if g.SelectionCompleted {
		return nil, ErrSelectionLocked
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo.GalleryID != g.ID {
		return nil, ErrPhotoNotInGallery
	}

	selected, err := decodeSelection(g.PhotosSelected)
	if err != nil {
		return nil, err
	}

	if idx := indexOf(selected, photoID); idx >= 0 {
		selected = append(selected[:idx], selected[idx+1:]...)
	} else {
		selected = append(selected, photoID)
	}

	encoded, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("encode selection: %w", err)
	}
	if err := s.galleries.UpdateSelection(ctx, g.ID, encoded, nil); err != nil {
		return nil, err
	}
	return selected, nil
}

// Comment sets (or clears, when text is empty) the client's note on a
// photo. Independent of selection membership, editable until completed.
func (s *Service) Comment(ctx context.Context, galleryID, photoID uuid.UUID, text string) error {
	g, err := s.galleries.GetByID(ctx, galleryID)
	if err != nil {
		return err
	}
	if g.SelectionCompleted {
		return ErrSelectionLocked
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.GalleryID != g.ID {
		return ErrPhotoNotInGallery
	}

	comments := map[string]string{}
	if len(g.PhotoComments) > 0 {
		if err := json.Unmarshal(g.PhotoComments, &comments); err != nil {
			return fmt.Errorf("decode photo comments: %w", err)
		}
	}
	if text == "" {
		delete(comments, photoID.String())
	} else {
		comments[photoID.String()] = text
	}

	encoded, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("encode photo comments: %w", err)
	}
	return s.galleries.UpdateSelection(ctx, g.ID, nil, encoded)
}

// SubmissionResult distinguishes "selection finalized" from "selection
// submitted, awaiting extra-photo payment".
type SubmissionResult struct {
	Completed   bool            `json:"completed"`
	ExtraCount  int             `json:"extra_count"`
	ExtraAmount float64         `json:"extra_amount"`
	Charge      *gateway.Charge `json:"charge,omitempty"`
}

// SubmitSelection validates the selection against the minimum threshold.
// Exactly the minimum finalizes immediately; more routes to an extra-photos
// charge whose approval (handled by the webhook reconciler) finalizes it.
func (s *Service) SubmitSelection(ctx context.Context, galleryID uuid.UUID, selectedIDs []uuid.UUID) (*SubmissionResult, error) {
	g, err := s.galleries.GetByID(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if g.SelectionCompleted {
		return nil, ErrSelectionLocked
	}

	studio, err := s.settings.StudioFor(ctx, g.TenantID)
	if err != nil {
		return nil, err
	}

	minimum := studio.MinimumPhotos
	if g.AppointmentID != nil {
		appointment, err := s.appointments.GetByID(ctx, *g.AppointmentID)
		if err != nil {
			return nil, err
		}
		minimum = appointment.MinimumPhotos
	}

	if len(selectedIDs) < minimum {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrBelowMinimum, len(selectedIDs), minimum)
	}

	client, err := s.clients.GetByID(ctx, g.ClientID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("encode selection: %w", err)
	}

	now := s.now()

	if len(selectedIDs) == minimum {
		if err := s.galleries.UpdateSelection(ctx, g.ID, encoded, nil); err != nil {
			return nil, err
		}
		if _, err := s.galleries.CompleteSelection(ctx, g.ID, now); err != nil {
			return nil, err
		}
		if err := s.notifier.Enqueue(ctx, g.TenantID, model.TemplateSelectionReceived, client.Phone, map[string]string{
			"name":  client.Name,
			"count": strconv.Itoa(len(selectedIDs)),
		}); err != nil {
			return nil, err
		}
		return &SubmissionResult{Completed: true}, nil
	}

	extraCount := len(selectedIDs) - minimum
	extraAmount := float64(extraCount) * studio.PerPhotoRate

	result := &SubmissionResult{
		ExtraCount:  extraCount,
		ExtraAmount: extraAmount,
	}

	gatewaySettings, err := s.settings.GatewayFor(ctx, g.TenantID)
	if err != nil {
		return nil, err
	}

	payment := &model.Payment{
		TenantID:    g.TenantID,
		ClientID:    g.ClientID,
		GalleryID:   &g.ID,
		Amount:      extraAmount,
		Status:      model.PaymentStatusPending,
		PaymentType: model.PaymentTypeExtraPhotos,
	}

	if gatewaySettings != nil {
		externalRef := fmt.Sprintf("%s-extra-%s", g.ID, uuid.NewString())
		charge, err := s.newGateway(gatewaySettings.AccessToken).CreateCharge(ctx, gateway.ChargeRequest{
			Amount:            extraAmount,
			Description:       fmt.Sprintf("%d fotos extras", extraCount),
			ExternalReference: externalRef,
			PayerName:         client.Name,
			PayerEmail:        client.Email,
			PayerPhone:        client.Phone,
			Metadata: map[string]any{
				"gallery_id": g.ID.String(),
				"client_id":  client.ID.String(),
			},
		})
		if err != nil {
			return nil, err
		}
		payment.MercadopagoID = charge.ID
		result.Charge = charge
	} else {
		// Manual-PIX tenant: no provider charge exists, staff reconcile
		// the transfer by hand against this row.
		payment.MercadopagoID = "manual-" + uuid.NewString()
	}

	// Persist the selection only once the charge exists: a gateway failure
	// must leave the gallery exactly as it was before the submission.
	if err := s.galleries.UpdateSelection(ctx, g.ID, encoded, nil); err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.galleries.MarkAwaitingExtras(ctx, g.ID, payment.ID, extraCount, now); err != nil {
		return nil, err
	}

	if err := s.notifier.Enqueue(ctx, g.TenantID, model.TemplateSelectionExtras, client.Phone, map[string]string{
		"name":         client.Name,
		"extra_count":  strconv.Itoa(extraCount),
		"extra_amount": formatAmount(extraAmount),
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func decodeSelection(raw []byte) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return []uuid.UUID{}, nil
	}
	var selected []uuid.UUID
	if err := json.Unmarshal(raw, &selected); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return selected, nil
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
