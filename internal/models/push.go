package models

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is a browser push endpoint registered by an admin device.
type PushSubscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
