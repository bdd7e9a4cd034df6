// Package testutil provides the shared sqlite harness and test doubles.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/valdigley/studio-booking/internal/model"
)

// NewDB opens a private in-memory sqlite database with all migrations
// applied. Named shared-cache DSN so every pooled connection sees the
// same database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// SeedStudio creates a tenant with standard studio settings: Mon-Fri
// 09:00-18:00, commercial 150, after-hours 200, 25 per extra photo,
// minimum 5 photos, 1h sessions with 1h buffer.
func SeedStudio(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()

	tenantID := uuid.New()
	settings := &model.StudioSettings{
		TenantID:   tenantID,
		StudioName: "Estúdio Teste",
		CommercialHours: []byte(`{
			"monday":    {"enabled": true, "start": "09:00", "end": "18:00"},
			"tuesday":   {"enabled": true, "start": "09:00", "end": "18:00"},
			"wednesday": {"enabled": true, "start": "09:00", "end": "18:00"},
			"thursday":  {"enabled": true, "start": "09:00", "end": "18:00"},
			"friday":    {"enabled": true, "start": "09:00", "end": "18:00"}
		}`),
		CommercialRate:         150,
		AfterHoursRate:         200,
		PerPhotoRate:           25,
		MinimumPhotos:          5,
		SessionDurationMinutes: 60,
		SlotBufferMinutes:      60,
		LinkValidityDays:       30,
		PixKey:                 "estudio@pix.example",
	}
	if err := db.Create(settings).Error; err != nil {
		t.Fatalf("seed studio settings: %v", err)
	}
	return tenantID
}

// ActivateGateway stores active MercadoPago credentials for a tenant.
func ActivateGateway(t *testing.T, db *gorm.DB, tenantID uuid.UUID) {
	t.Helper()
	if err := db.Create(&model.GatewaySettings{
		TenantID:    tenantID,
		AccessToken: "TEST-TOKEN",
		Active:      true,
	}).Error; err != nil {
		t.Fatalf("seed gateway settings: %v", err)
	}
}

// SeedClient creates a client row for a tenant.
func SeedClient(t *testing.T, db *gorm.DB, tenantID uuid.UUID, name, phone string) *model.Client {
	t.Helper()
	c := &model.Client{TenantID: tenantID, Name: name, Phone: phone}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

// EnqueuedMessage is one recorded notification.
type EnqueuedMessage struct {
	TenantID uuid.UUID
	Template model.NotificationTemplate
	Phone    string
	Vars     map[string]string
}

// FakeNotifier records enqueued notifications; satisfies the Notifier
// interfaces of booking, gallery and webhook.
type FakeNotifier struct {
	Messages []EnqueuedMessage
}

func (f *FakeNotifier) Enqueue(
	ctx context.Context,
	tenantID uuid.UUID,
	templateType model.NotificationTemplate,
	recipientPhone string,
	vars map[string]string,
) error {
	f.Messages = append(f.Messages, EnqueuedMessage{
		TenantID: tenantID,
		Template: templateType,
		Phone:    recipientPhone,
		Vars:     vars,
	})
	return nil
}
