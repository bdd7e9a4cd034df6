// Package handlers exposes the booking core over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/valdigley/studio-booking/internal/booking"
	"github.com/valdigley/studio-booking/internal/gallery"
	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/webhook"
)

type Handler struct {
	booking    *booking.Service
	galleries  *gallery.Service
	reconciler *webhook.Reconciler
}

func New(bookingSvc *booking.Service, gallerySvc *gallery.Service, reconciler *webhook.Reconciler) *Handler {
	return &Handler{booking: bookingSvc, galleries: gallerySvc, reconciler: reconciler}
}

// Register mounts all routes. Tenant auth itself is handled upstream;
// here the tenant is taken from the X-Tenant-ID header, and webhook URLs
// carry the tenant explicitly since the provider sends no headers of ours.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/slots", h.ListSlots)
	r.Post("/api/bookings", h.CreateBooking)
	r.Get("/api/appointments", h.ListAppointments)
	r.Get("/api/charges/{chargeID}", h.ChargeStatus)
	r.Post("/api/payments/{paymentID}/confirm", h.ConfirmManualPayment)

	r.Post("/api/webhooks/mercadopago/{tenantID}", h.MercadoPagoWebhook)

	r.Get("/api/galleries/{token}", h.GetGallery)
	r.Post("/api/galleries/{token}/selection", h.SubmitSelection)
	r.Post("/api/galleries/{token}/photos/{photoID}/toggle", h.ToggleSelection)
	r.Post("/api/galleries/{token}/photos/{photoID}/comment", h.CommentPhoto)
}

func tenantFromHeader(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
	return id, err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID")
		return
	}

	slots, err := h.booking.ListAvailableSlots(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID")
		return
	}

	var form booking.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking payload")
		return
	}

	price, err := h.booking.Quote(r.Context(), tenantID, form.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not price session")
		return
	}

	intent, err := h.booking.Submit(r.Context(), tenantID, form, price)
	if err != nil {
		var validation *booking.ValidationError
		var gwErr *gateway.GatewayError
		switch {
		case errors.As(err, &validation):
			writeError(w, http.StatusUnprocessableEntity, validation.Error())
		case errors.As(err, &gwErr):
			writeError(w, http.StatusBadGateway, "payment provider rejected the charge")
		default:
			writeError(w, http.StatusInternalServerError, "could not submit booking")
		}
		return
	}

	switch v := intent.(type) {
	case booking.Immediate:
		writeJSON(w, http.StatusCreated, map[string]any{"type": "immediate", "booking": v})
	case booking.Deferred:
		writeJSON(w, http.StatusCreated, map[string]any{"type": "deferred", "charge": v})
	default:
		writeError(w, http.StatusInternalServerError, "unknown booking outcome")
	}
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	appointments, total, err := h.booking.ListAppointments(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list appointments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appointments,
		"total":        total,
	})
}

// ConfirmManualPayment settles a manual-PIX payment after staff verify
// the transfer out of band.
func (h *Handler) ConfirmManualPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID")
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	switch err := h.reconciler.ConfirmManualPayment(r.Context(), tenantID, paymentID); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{})
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, webhook.ErrPaymentSettled):
		writeError(w, http.StatusConflict, "payment already settled")
	default:
		writeError(w, http.StatusInternalServerError, "could not confirm payment")
	}
}

func (h *Handler) ChargeStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID")
		return
	}

	charge, err := h.booking.ChargeStatus(r.Context(), tenantID, chi.URLParam(r, "chargeID"))
	if err != nil {
		if errors.Is(err, booking.ErrGatewayNotConfigured) {
			writeError(w, http.StatusNotFound, "no payment gateway configured")
			return
		}
		writeError(w, http.StatusBadGateway, "could not fetch charge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         charge.ID,
		"status":     charge.Status,
		"expires_at": charge.ExpiresAt,
	})
}

// MercadoPagoWebhook translates reconciler outcomes into provider retry
// semantics: 200 for processed-or-safely-ignored, 400 when redelivery
// cannot help, 5xx only on transient failures.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	switch err := h.reconciler.HandleEvent(r.Context(), tenantID, body); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{})
	case errors.Is(err, webhook.ErrBadEvent):
		writeError(w, http.StatusBadRequest, "unparseable event")
	default:
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
	}
}

func (h *Handler) GetGallery(w http.ResponseWriter, r *http.Request) {
	g, photos, err := h.galleries.AccessByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeGalleryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gallery": g, "photos": photos})
}

func (h *Handler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	g, _, err := h.galleries.AccessByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeGalleryError(w, err)
		return
	}
	photoID, err := uuid.Parse(chi.URLParam(r, "photoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	selected, err := h.galleries.Toggle(r.Context(), g.ID, photoID)
	if err != nil {
		writeGalleryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos_selected": selected})
}

func (h *Handler) SubmitSelection(w http.ResponseWriter, r *http.Request) {
	g, _, err := h.galleries.AccessByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeGalleryError(w, err)
		return
	}

	var payload struct {
		SelectedIDs []uuid.UUID `json:"selected_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selection payload")
		return
	}

	result, err := h.galleries.SubmitSelection(r.Context(), g.ID, payload.SelectedIDs)
	if err != nil {
		if errors.Is(err, gallery.ErrBelowMinimum) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeGalleryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CommentPhoto(w http.ResponseWriter, r *http.Request) {
	g, _, err := h.galleries.AccessByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeGalleryError(w, err)
		return
	}
	photoID, err := uuid.Parse(chi.URLParam(r, "photoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment payload")
		return
	}

	if err := h.galleries.Comment(r.Context(), g.ID, photoID, payload.Text); err != nil {
		writeGalleryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func writeGalleryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, gallery.ErrLinkExpired):
		writeError(w, http.StatusGone, "gallery link expired")
	case errors.Is(err, gallery.ErrSelectionLocked):
		writeError(w, http.StatusConflict, "selection already completed")
	case errors.Is(err, gallery.ErrPhotoNotInGallery):
		writeError(w, http.StatusBadRequest, "photo does not belong to gallery")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
