// Package notify queues and delivers templated WhatsApp messages.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/repository"
)

// Service renders and enqueues outbound notifications. Delivery happens
// later via Dispatcher so an unreachable WhatsApp gateway never blocks
// the booking or webhook path.
type Service struct {
	notifications repository.NotificationRepository
}

func NewService(notifications repository.NotificationRepository) *Service {
	return &Service{notifications: notifications}
}

func (s *Service) Enqueue(
	ctx context.Context,
	tenantID uuid.UUID,
	templateType model.NotificationTemplate,
	recipientPhone string,
	vars map[string]string,
) error {
	template, ok := TemplateBody(templateType)
	if !ok {
		return fmt.Errorf("unknown notification template %q", templateType)
	}

	n := &model.Notification{
		TenantID:       tenantID,
		RecipientPhone: repository.NormalizePhone(recipientPhone),
		TemplateType:   templateType,
		Body:           Render(template, vars),
		Status:         model.NotificationStatusQueued,
	}
	return s.notifications.Create(ctx, n)
}

// Sender delivers one rendered message through a tenant's WhatsApp
// gateway instance.
type Sender interface {
	Send(ctx context.Context, settings *model.WhatsAppSettings, phone, body string) error
}

// WhatsAppSender talks to an Evolution-style WhatsApp HTTP gateway.
type WhatsAppSender struct {
	HTTP *http.Client
}

func NewWhatsAppSender() *WhatsAppSender {
	return &WhatsAppSender{HTTP: &http.Client{Timeout: 15 * time.Second}}
}

func (s *WhatsAppSender) Send(ctx context.Context, settings *model.WhatsAppSettings, phone, body string) error {
	payload, err := json.Marshal(map[string]string{
		"number": phone,
		"text":   body,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.InstanceURL+"/message/sendText", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", settings.APIKey)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher drains the queue. Tenants without active WhatsApp settings
// are a recognized configuration, not a failure: their rows are skipped.
type Dispatcher struct {
	notifications repository.NotificationRepository
	settings      repository.SettingsRepository
	sender        Sender
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	settings repository.SettingsRepository,
	sender Sender,
) *Dispatcher {
	return &Dispatcher{notifications: notifications, settings: settings, sender: sender}
}

// Flush delivers up to limit queued notifications. Per-row failures are
// recorded on the row and do not stop the batch.
func (d *Dispatcher) Flush(ctx context.Context, limit int) error {
	queued, err := d.notifications.ListQueued(ctx, limit)
	if err != nil {
		return fmt.Errorf("list queued notifications: %w", err)
	}

	for _, n := range queued {
		settings, err := d.settings.WhatsAppFor(ctx, n.TenantID)
		if err != nil {
			log.Printf("notify: whatsapp settings for tenant %s: %v", n.TenantID, err)
			continue
		}
		if settings == nil {
			if err := d.notifications.MarkSkipped(ctx, n.ID); err != nil {
				log.Printf("notify: mark skipped %s: %v", n.ID, err)
			}
			continue
		}

		if err := d.sender.Send(ctx, settings, n.RecipientPhone, n.Body); err != nil {
			log.Printf("notify: send %s: %v", n.ID, err)
			if merr := d.notifications.MarkFailed(ctx, n.ID, err.Error()); merr != nil {
				log.Printf("notify: mark failed %s: %v", n.ID, merr)
			}
			continue
		}

		if err := d.notifications.MarkSent(ctx, n.ID, time.Now().UTC()); err != nil {
			log.Printf("notify: mark sent %s: %v", n.ID, err)
		}
	}

	return nil
}
