package booking

import (
	"time"

	"github.com/valdigley/studio-booking/internal/model"
)

// Intent is the outcome of a booking submission. The two variants are a
// deliberate split: manual-PIX tenants get rows immediately so staff can
// reconcile out-of-band payments, gateway tenants get no rows until the
// charge is approved so unpaid bookings never pollute the schedule.
type Intent interface {
	bookingIntent()
}

// Immediate is the no-gateway outcome. Appointment, gallery and payment
// rows exist; payment is owed out-of-band via the tenant's PIX key.
type Immediate struct {
	Appointment *model.Appointment `json:"appointment"`
	Gallery     *model.Gallery     `json:"gallery"`
	Payment     *model.Payment     `json:"payment"`
	PixKey      string             `json:"pix_key"`
}

func (Immediate) bookingIntent() {}

// Deferred is the gateway outcome. Only a provider-side charge exists; the
// appointment is materialized by the webhook reconciler on approval.
type Deferred struct {
	ExternalReference string    `json:"external_reference"`
	ChargeID          string    `json:"charge_id"`
	QRCode            string    `json:"qr_code"`
	QRCodeImage       string    `json:"qr_code_image"`
	Amount            float64   `json:"amount"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (Deferred) bookingIntent() {}
