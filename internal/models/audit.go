package models

import "gorm.io/gorm"

// AbuseAudit records a rejected message attempt for abuse monitoring.
// Rows are written on every ForbiddenError from the append path and read
// back by the admin CLI.
type AbuseAudit struct {
	gorm.Model

	SenderID   uint   `gorm:"not null;index"`
	ReceiverID uint   `gorm:"not null"`
	Reason     string `gorm:"type:text;not null"`
}
