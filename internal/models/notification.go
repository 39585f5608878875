package models

import "time"

// NotificationChannel enumerates outbound messaging channels.
type NotificationChannel string

const (
	NotificationChannelWhatsApp NotificationChannel = "WHATSAPP"
	NotificationChannelEmail    NotificationChannel = "EMAIL"
)

// NotificationStatus records the outcome of a send attempt.
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
	NotificationStatusSkipped NotificationStatus = "SKIPPED"
)

// NotificationLog records one attempted send, successful or not.
type NotificationLog struct {
	ID        string              `db:"id" json:"id"`
	Channel   NotificationChannel `db:"channel" json:"channel"`
	Template  string              `db:"template" json:"template"`
	Recipient string              `db:"recipient" json:"recipient"`
	PersonID  *string             `db:"person_id" json:"person_id,omitempty"`
	Status    NotificationStatus  `db:"status" json:"status"`
	Error     *string             `db:"error" json:"error,omitempty"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
}

// NotificationFilter provides filters for listing the send log.
type NotificationFilter struct {
	Channel   NotificationChannel
	Template  string
	Recipient string
	Status    NotificationStatus
	Page      int
	PageSize  int
}

// BulkSendReport aggregates the outcome of a bulk send loop.
type BulkSendReport struct {
	Requested int `json:"requested"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
