package models

import "gorm.io/gorm"

// Connection statuses.
const (
	ConnectionPending  = "pending"
	ConnectionApproved = "approved"
	ConnectionBlocked  = "blocked"
)

// Connection is a directed friend request between two users. Messaging is
// permitted only while an approved connection exists in either direction,
// and the check is re-run on every append because status can change at any
// time.
type Connection struct {
	gorm.Model

	RequesterID uint   `gorm:"not null;uniqueIndex:uk_conn_pair" json:"requester_id"`
	AddresseeID uint   `gorm:"not null;uniqueIndex:uk_conn_pair" json:"addressee_id"`
	Status      string `gorm:"not null;default:pending" json:"status"`
}
