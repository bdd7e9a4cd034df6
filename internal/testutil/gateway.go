package testutil

import (
	"context"
	"fmt"

	"github.com/valdigley/studio-booking/internal/gateway"
)

// FakeCharger is an in-memory gateway.Charger. Created charges are
// retrievable by id, and their fields can be mutated to simulate
// provider-side status changes between webhook deliveries.
type FakeCharger struct {
	CreateCalls []gateway.ChargeRequest
	Charges     map[string]*gateway.Charge

	NextID    string
	CreateErr error
	GetErr    error
}

func NewFakeCharger() *FakeCharger {
	return &FakeCharger{Charges: map[string]*gateway.Charge{}}
}

func (f *FakeCharger) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	f.CreateCalls = append(f.CreateCalls, req)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	id := f.NextID
	if id == "" {
		id = fmt.Sprintf("charge-%d", len(f.CreateCalls))
	}
	charge := &gateway.Charge{
		ID:                id,
		Status:            gateway.ChargeStatusPending,
		ExternalReference: req.ExternalReference,
		Amount:            req.Amount,
		QRCode:            "pix-qr-" + id,
		QRCodeImage:       "base64-" + id,
		Metadata:          req.Metadata,
	}
	f.Charges[id] = charge
	return charge, nil
}

func (f *FakeCharger) GetCharge(ctx context.Context, chargeID string) (*gateway.Charge, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	charge, ok := f.Charges[chargeID]
	if !ok {
		return nil, &gateway.GatewayError{StatusCode: 404, ProviderMessage: "payment not found"}
	}
	return charge, nil
}

// SetStatus simulates the provider moving a charge to a new status.
func (f *FakeCharger) SetStatus(chargeID, status string) {
	if charge, ok := f.Charges[chargeID]; ok {
		charge.Status = status
	}
}

// Factory returns a GatewayFactory-shaped constructor ignoring the token.
func (f *FakeCharger) Factory(accessToken string) gateway.Charger {
	return f
}
