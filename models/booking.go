package models

// PricedSlot is an offered, bookable interval wrapped with its price tier.
// Ephemeral; never persisted.
type PricedSlot struct {
	StartTime       string `json:"start_time"` // RFC3339
	EndTime         string `json:"end_time"`   // RFC3339
	DurationMinutes int64  `json:"duration_minutes"`
	Price           int64  `json:"price"` // minor currency units
	Currency        string `json:"currency"`
	ProductName     string `json:"product_name,omitempty"`
}

// BookedEvent mirrors what the calendar provider reports for an event.
type BookedEvent struct {
	EventID     string `json:"event_id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"` // RFC3339
	EndTime     string `json:"end_time"`   // RFC3339
	Status      string `json:"status"`     // "confirmed", "cancelled"
	Created     string `json:"created,omitempty"`
	Updated     string `json:"updated,omitempty"`
}

type BookSlotRequest struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

type BookingResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message,omitempty"`
}
