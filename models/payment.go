package models

import "encoding/json"

// PaymentEvent is the outer object delivered by the payment provider webhook.
type PaymentEvent struct {
	ID       string           `json:"id"`
	Object   string           `json:"object"` // "event"
	Created  int64            `json:"created"`
	Livemode bool             `json:"livemode"`
	Type     string           `json:"type"` // e.g. "checkout.session.completed"
	Data     PaymentEventData `json:"data"`
}

type PaymentEventData struct {
	Object json.RawMessage `json:"object"`
}

// CheckoutSessionObject is data.object when the event type is
// "checkout.session.completed".
type CheckoutSessionObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"` // "checkout.session"
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"` // "paid", "unpaid", "no_payment_required"
	Status            string            `json:"status"`         // "open", "complete", "expired"
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerDetails   *CustomerDetails  `json:"customer_details,omitempty"`
}

type CustomerDetails struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SessionSnapshot is what FetchSession returns for reconciliation.
type SessionSnapshot struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}
