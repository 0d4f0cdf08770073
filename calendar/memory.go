package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookable/models"
)

// MemoryCalendar is the in-process variant of the calendar port. It enforces
// the same conflict contract as the real provider so availability and
// fulfillment paths behave identically under test.
type MemoryCalendar struct {
	mu     sync.Mutex
	nextID int
	events map[string][]*memoryEvent // calendarID -> events
}

type memoryEvent struct {
	id          string
	start       time.Time
	end         time.Time
	summary     string
	description string
	metadata    map[string]string
	status      string // "confirmed" or "cancelled"
	sequence    int
	created     time.Time
	updated     time.Time
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{events: make(map[string][]*memoryEvent)}
}

// Seed inserts an event bypassing the conflict check, for representing
// externally created calendar entries.
func (m *MemoryCalendar) Seed(calendarID string, start, end time.Time, summary string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(calendarID, EventInput{Start: start, End: end, Summary: summary})
}

func (m *MemoryCalendar) insertLocked(calendarID string, input EventInput) string {
	m.nextID++
	ev := &memoryEvent{
		id:          fmt.Sprintf("evt_%d", m.nextID),
		start:       input.Start,
		end:         input.End,
		summary:     input.Summary,
		description: input.Description,
		metadata:    input.Metadata,
		status:      "confirmed",
		created:     time.Now().UTC(),
		updated:     time.Now().UTC(),
	}
	m.events[calendarID] = append(m.events[calendarID], ev)
	return ev.id
}

func (m *MemoryCalendar) BusyTimes(ctx context.Context, calendarID string, start, end time.Time) ([]BusyInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var busy []BusyInterval
	for _, ev := range m.events[calendarID] {
		if ev.status == "cancelled" {
			continue
		}
		if ev.start.Before(end) && ev.end.After(start) {
			busy = append(busy, BusyInterval{Start: ev.start, End: ev.end})
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (m *MemoryCalendar) CreateEvent(ctx context.Context, calendarID string, input EventInput) (string, error) {
	if !input.End.After(input.Start) {
		return "", &PermanentError{Err: fmt.Errorf("end %v not after start %v", input.End, input.Start)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events[calendarID] {
		if ev.status == "cancelled" {
			continue
		}
		if input.Start.Before(ev.end) && input.End.After(ev.start) {
			return "", ErrConflict
		}
	}
	return m.insertLocked(calendarID, input), nil
}

func (m *MemoryCalendar) CancelEvent(ctx context.Context, calendarID, eventID string, notifyAttendees bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.events[calendarID]
	for i, ev := range list {
		if ev.id == eventID {
			// soft-cancelled events are restored then deleted; in memory
			// that collapses to a plain removal
			m.events[calendarID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	// deleting a missing event is success
	return nil
}

func (m *MemoryCalendar) MarkCancelled(ctx context.Context, calendarID, eventID string, notifyAttendees bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events[calendarID] {
		if ev.id == eventID {
			ev.status = "cancelled"
			ev.sequence++
			ev.updated = time.Now().UTC()
			return ev.id, nil
		}
	}
	return "", ErrNotFound
}

func (m *MemoryCalendar) ListEvents(ctx context.Context, calendarID string, start, end time.Time, includeCancelled bool) ([]models.BookedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.BookedEvent
	for _, ev := range m.events[calendarID] {
		if ev.status == "cancelled" && !includeCancelled {
			continue
		}
		if !ev.start.Before(end) || !ev.end.After(start) {
			continue
		}
		out = append(out, models.BookedEvent{
			EventID:     ev.id,
			Summary:     ev.summary,
			Description: ev.description,
			StartTime:   ev.start.Format(time.RFC3339),
			EndTime:     ev.end.Format(time.RFC3339),
			Status:      ev.status,
			Created:     ev.created.Format(time.RFC3339),
			Updated:     ev.updated.Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}
