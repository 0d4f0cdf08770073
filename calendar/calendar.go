package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bookable/models"
)

// BusyInterval is a period during which no slot may be offered.
// Start < End; instants are time-zone aware.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// EventInput is the provider-independent shape of an event to create.
type EventInput struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	// Metadata is attached to the created event as opaque provider
	// properties; the fulfillment reference id travels here.
	Metadata map[string]string
}

// Sentinel errors for the calendar contract.
var (
	// ErrConflict: the provider reports an overlapping event.
	ErrConflict = errors.New("calendar: booking conflict")
	// ErrNotFound: the event does not exist.
	ErrNotFound = errors.New("calendar: event not found")
)

// TransientError wraps retriable provider failures (network, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("calendar: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps non-retriable provider failures (4xx other than conflict).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("calendar: permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Service is the semantic calendar capability the core depends on.
// Installed variant (real provider or in-memory double) is a runtime
// decision driven by configuration.
type Service interface {
	// BusyTimes returns busy intervals sorted by start. Overlapping
	// intervals may be returned and must be merged by consumers.
	BusyTimes(ctx context.Context, calendarID string, start, end time.Time) ([]BusyInterval, error)

	// CreateEvent returns the provider event id, or ErrConflict on overlap.
	CreateEvent(ctx context.Context, calendarID string, input EventInput) (string, error)

	// CancelEvent hard-deletes. Deleting a missing event is success. A
	// soft-cancelled event is restored then deleted; if that ultimately
	// fails the implementation logs and reports success.
	CancelEvent(ctx context.Context, calendarID, eventID string, notifyAttendees bool) error

	// MarkCancelled soft-cancels, bumping the event's sequence number.
	MarkCancelled(ctx context.Context, calendarID, eventID string, notifyAttendees bool) (string, error)

	// ListEvents returns events ordered by start time.
	ListEvents(ctx context.Context, calendarID string, start, end time.Time, includeCancelled bool) ([]models.BookedEvent, error)
}

// MergeBusy merges overlapping or adjacent intervals into a canonical list
// sorted by start. The input is not modified.
func MergeBusy(busy []BusyInterval) []BusyInterval {
	if len(busy) == 0 {
		return nil
	}
	sorted := make([]BusyInterval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []BusyInterval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !cur.Start.After(last.End) {
			if cur.End.After(last.End) {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Overlaps reports whether [start, end) intersects the interval.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}
