package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bookable/calendar"
	"bookable/config"
	"bookable/models"
	"bookable/notify"
	"bookable/utils"
)

// ErrBadInstruction marks an instruction the executor cannot act on.
// Handlers map it to a 400.
var ErrBadInstruction = errors.New("invalid fulfillment instruction")

// refTag formats the idempotency marker embedded in event descriptions.
// Fulfillment scans for it before creating, so a webhook redelivered after
// the dedupe key expired still cannot double-book.
func refTag(referenceID string) string {
	return "[ref:" + referenceID + "]"
}

// Result reports what one fulfillment run did.
type Result struct {
	EventID   string
	Duplicate bool // an event for this reference already existed
}

// Executor performs the paid-booking side effects: calendar event plus
// notifications. Side effects are at-most-once per reference id.
type Executor struct {
	Cal calendar.Service
	Cfg *config.AppConfig
	SMS notify.SMSSender
}

func NewExecutor(cal calendar.Service, cfg *config.AppConfig, sms notify.SMSSender) *Executor {
	if sms == nil {
		sms = notify.NoopSMSSender{}
	}
	return &Executor{Cal: cal, Cfg: cfg, SMS: sms}
}

// ExecuteGcalBooking creates the calendar event for a paid booking and sends
// the confirmation SMS. SMS failure never fails the fulfillment.
func (e *Executor) ExecuteGcalBooking(ctx context.Context, instr models.GcalBookingInstruction) (*Result, error) {
	start, end, err := parseInstructionWindow(instr.StartTime, instr.EndTime)
	if err != nil {
		return nil, err
	}

	description := instr.Description
	if instr.ReferenceID != "" {
		if existing, err := e.findByReference(ctx, start, end, instr.ReferenceID); err != nil {
			return nil, err
		} else if existing != "" {
			log.Printf("fulfillment: reference %s already fulfilled as event %s", instr.ReferenceID, existing)
			return &Result{EventID: existing, Duplicate: true}, nil
		}
		description = strings.TrimSpace(description + "\n" + refTag(instr.ReferenceID))
	}

	metadata := map[string]string{}
	if instr.ReferenceID != "" {
		metadata["reference_id"] = instr.ReferenceID
	}
	if instr.PaymentRef != "" {
		metadata["payment_ref"] = instr.PaymentRef
	}

	eventID, err := e.Cal.CreateEvent(ctx, e.Cfg.Gcal.CalendarID, calendar.EventInput{
		Start:       start,
		End:         end,
		Summary:     instr.Summary,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	e.notifySMS(ctx, instr.NotifyPhone, fmt.Sprintf(
		"Booking confirmed: %s, %s to %s.",
		instr.Summary,
		start.Format("Mon 2 Jan 15:04"),
		end.Format("15:04")))

	log.Printf("fulfillment: booked event %s for reference %q", eventID, instr.ReferenceID)
	return &Result{EventID: eventID}, nil
}

// ExecuteAdhocSession creates the calendar event for a paid ad-hoc session
// and texts the video room to the participant.
func (e *Executor) ExecuteAdhocSession(ctx context.Context, instr models.AdhocGcalTwilioInstruction) (*Result, error) {
	if instr.RoomName == "" {
		return nil, fmt.Errorf("%w: missing room_name", ErrBadInstruction)
	}
	start, end, err := parseInstructionWindow(instr.StartTime, instr.EndTime)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(instr.Description + "\nRoom: " + instr.RoomName)
	if instr.ReferenceID != "" {
		if existing, err := e.findByReference(ctx, start, end, instr.ReferenceID); err != nil {
			return nil, err
		} else if existing != "" {
			log.Printf("fulfillment: reference %s already fulfilled as event %s", instr.ReferenceID, existing)
			return &Result{EventID: existing, Duplicate: true}, nil
		}
		description += "\n" + refTag(instr.ReferenceID)
	}

	metadata := map[string]string{"room_name": instr.RoomName}
	if instr.ReferenceID != "" {
		metadata["reference_id"] = instr.ReferenceID
	}

	eventID, err := e.Cal.CreateEvent(ctx, e.Cfg.Gcal.CalendarID, calendar.EventInput{
		Start:       start,
		End:         end,
		Summary:     instr.Summary,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	e.notifySMS(ctx, instr.NotifyPhone, fmt.Sprintf(
		"Your session starts at %s. Join room %s.",
		start.Format("15:04"), instr.RoomName))

	log.Printf("fulfillment: booked ad-hoc event %s, room %s", eventID, instr.RoomName)
	return &Result{EventID: eventID}, nil
}

// findByReference scans events around the instruction window for the
// reference marker.
func (e *Executor) findByReference(ctx context.Context, start, end time.Time, referenceID string) (string, error) {
	events, err := e.Cal.ListEvents(ctx, e.Cfg.Gcal.CalendarID,
		start.Add(-24*time.Hour), end.Add(24*time.Hour), true)
	if err != nil {
		return "", fmt.Errorf("scan for reference %s: %w", referenceID, err)
	}
	tag := refTag(referenceID)
	for _, ev := range events {
		if strings.Contains(ev.Description, tag) {
			return ev.EventID, nil
		}
	}
	return "", nil
}

func (e *Executor) notifySMS(ctx context.Context, to, body string) {
	if to == "" {
		to = e.Cfg.Twilio.NotifyPhone
	}
	if to == "" {
		return
	}
	if err := e.SMS.SendSMS(ctx, to, body); err != nil {
		// the booking stands even if the text does not arrive
		log.Printf("fulfillment: SMS to %s failed: %v", utils.RedactPhone(to), err)
	}
}

func parseInstructionWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start_time: %v", ErrBadInstruction, err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end_time: %v", ErrBadInstruction, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_time must be after start_time", ErrBadInstruction)
	}
	return start, end, nil
}
