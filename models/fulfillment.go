package models

import (
	"encoding/json"
	"fmt"
)

// Fulfillment instruction types. The tag selects which executor branch runs.
const (
	FulfillmentGcalBooking     = "gcal_booking"
	FulfillmentAdhocGcalTwilio = "adhoc_gcal_twilio"
)

// FulfillmentMetadataKey is the single reserved key under which the serialized
// envelope rides through the payment provider's metadata map.
const FulfillmentMetadataKey = "fulfillment"

// FulfillmentVersion is the envelope schema version the webhook handler accepts.
const FulfillmentVersion = 1

// FulfillmentEnvelope is the versioned wrapper round-tripped through payment
// provider metadata. Unknown versions are rejected rather than mis-deserialized.
type FulfillmentEnvelope struct {
	Version int             `json:"v"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// GcalBookingInstruction fulfills a plain paid calendar booking.
type GcalBookingInstruction struct {
	StartTime   string `json:"start_time"` // RFC3339
	EndTime     string `json:"end_time"`   // RFC3339
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"` // idempotency key, usually the checkout session id
	PaymentRef  string `json:"payment_ref,omitempty"`
	NotifyPhone string `json:"notify_phone,omitempty"`
}

// AdhocGcalTwilioInstruction fulfills an ad-hoc session: calendar event plus
// a freshly minted video room.
type AdhocGcalTwilioInstruction struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	RoomName    string `json:"room_name"`
	ReferenceID string `json:"reference_id,omitempty"`
	NotifyPhone string `json:"notify_phone,omitempty"`
}

// EncodeFulfillment wraps an instruction in a versioned envelope and returns
// the compact JSON that goes into the provider metadata map.
func EncodeFulfillment(instructionType string, data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment data: %w", err)
	}
	env := FulfillmentEnvelope{
		Version: FulfillmentVersion,
		Type:    instructionType,
		Data:    raw,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment envelope: %w", err)
	}
	return string(out), nil
}

// DecodeFulfillment parses the metadata value back into an envelope,
// rejecting unknown versions and types.
func DecodeFulfillment(value string) (*FulfillmentEnvelope, error) {
	var env FulfillmentEnvelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return nil, fmt.Errorf("parse fulfillment envelope: %w", err)
	}
	if env.Version != FulfillmentVersion {
		return nil, fmt.Errorf("unsupported fulfillment envelope version %d", env.Version)
	}
	switch env.Type {
	case FulfillmentGcalBooking, FulfillmentAdhocGcalTwilio:
	default:
		return nil, fmt.Errorf("unknown fulfillment type %q", env.Type)
	}
	return &env, nil
}
