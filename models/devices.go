package models

import "time"

// DeviceRegistration maps a (user, device) pair to its current push token.
// Unique on (user_id, device_id); the token is replaced on refresh.
type DeviceRegistration struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	DeviceID  string    `json:"device_id" bson:"device_id"`
	PushToken string    `json:"push_token" bson:"push_token"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
