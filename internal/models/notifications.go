package models

import "time"

const (
	NotificationKindSystem   = "system"
	NotificationKindSecurity = "security"
	NotificationKindMarket   = "market"
)

type Notification struct {
	UserID         string    `json:"-" db:"user_id"`
	NotificationID string    `json:"notification_id" db:"notification_id"`
	Kind           string    `json:"kind" db:"kind"`
	Title          string    `json:"title" db:"title"`
	Body           string    `json:"body" db:"body"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
