package model

import "gorm.io/gorm"

// AutoMigrate runs migrations for every entity in the booking core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Client{},
		&StudioSettings{},
		&GatewaySettings{},
		&WhatsAppSettings{},
		&Appointment{},
		&Payment{},
		&Gallery{},
		&Photo{},
		&Notification{},
	)
}
