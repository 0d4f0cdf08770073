package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookable/calendar"
)

// WallClock is a local time-of-day, minute resolution.
type WallClock struct {
	Hour   int
	Minute int
}

// ParseWallClock parses "HH:MM".
func ParseWallClock(s string) (WallClock, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return WallClock{}, fmt.Errorf("invalid wall clock %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return WallClock{}, fmt.Errorf("invalid wall clock %q", s)
	}
	return WallClock{Hour: h, Minute: m}, nil
}

func (w WallClock) Minutes() int { return w.Hour*60 + w.Minute }

// ParseWorkingDays maps "Mon".."Sun" names onto weekdays. Unknown names are
// ignored, matching how the provider config treated them.
func ParseWorkingDays(names []string) map[time.Weekday]bool {
	lookup := map[string]time.Weekday{
		"Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
		"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
		"Sun": time.Sunday,
	}
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		if d, ok := lookup[n]; ok {
			out[d] = true
		}
	}
	return out
}

// Slot is an offered interval. End - Start == Params.Duration.
type Slot struct {
	Start time.Time
	End   time.Time
}

type Params struct {
	QueryStart time.Time
	QueryEnd   time.Time
	Busy       []calendar.BusyInterval
	Duration   time.Duration
	WorkStart  WallClock
	WorkEnd    WallClock
	// WorkingDays is the weekday subset slots may start on. Empty means
	// no slots (outside always-open mode).
	WorkingDays map[time.Weekday]bool
	Buffer      time.Duration
	Step        time.Duration
	Location    *time.Location
}

const midnightEdgeMinutes = 23*60 + 59

// Calculate walks the query window with a moving cursor and emits every
// bookable slot: inside working hours, clear of merged busy intervals when
// expanded by the buffer, chronologically increasing. Emitted instants have
// seconds and nanoseconds zeroed.
func Calculate(p Params) ([]Slot, error) {
	if p.Duration <= 0 {
		return nil, errors.New("availability: duration must be positive")
	}
	if p.QueryEnd.Before(p.QueryStart) {
		return nil, nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	step := p.Step
	if step <= 0 {
		step = 15 * time.Minute
	}
	hourly := p.Duration == time.Hour
	alwaysOpen := p.WorkStart.Minutes() == 0 && p.WorkEnd.Minutes() >= midnightEdgeMinutes
	if !alwaysOpen && len(p.WorkingDays) == 0 {
		return nil, nil
	}

	merged := calendar.MergeBusy(p.Busy)

	var slots []Slot
	cursor := snap(p.QueryStart, loc, step, hourly)
	for {
		slotEnd := cursor.Add(p.Duration)
		if slotEnd.After(p.QueryEnd) {
			break
		}
		slotEndBuffered := slotEnd.Add(p.Buffer)

		if !alwaysOpen {
			if ok, next := p.checkWorkingHours(cursor, slotEnd, loc); !ok {
				cursor = snap(next, loc, step, hourly)
				continue
			}
		}

		overlapped := false
		for _, b := range merged {
			if cursor.Before(b.End) && slotEndBuffered.After(b.Start) {
				overlapped = true
				jump := b.End.Add(p.Buffer)
				if min := cursor.Add(step); jump.Before(min) {
					jump = min
				}
				cursor = snap(jump, loc, step, hourly)
				break
			}
		}
		if overlapped {
			continue
		}

		slots = append(slots, Slot{Start: cursor, End: slotEnd})
		cursor = snap(cursor.Add(p.Duration+p.Buffer), loc, step, hourly)
	}
	return slots, nil
}

// checkWorkingHours validates the slot against the configured wall-clock
// window. On rejection it returns the next cursor position to try: the
// same-day work start when the slot is too early, otherwise the start of the
// next working day.
func (p Params) checkWorkingHours(cursor, slotEnd time.Time, loc *time.Location) (bool, time.Time) {
	local := cursor.In(loc)
	startMin := local.Hour()*60 + local.Minute()
	workStartMin := p.WorkStart.Minutes()
	workEndMin := p.WorkEnd.Minutes()

	if !p.WorkingDays[local.Weekday()] {
		return false, p.nextWorkingDayStart(local, loc)
	}
	if startMin < workStartMin {
		return false, time.Date(local.Year(), local.Month(), local.Day(),
			p.WorkStart.Hour, p.WorkStart.Minute, 0, 0, loc)
	}
	if startMin > workEndMin {
		return false, p.nextWorkingDayStart(local, loc)
	}

	endLocal := slotEnd.In(loc)
	sameDay := endLocal.Year() == local.Year() && endLocal.YearDay() == local.YearDay()
	if sameDay {
		endMin := endLocal.Hour()*60 + endLocal.Minute()
		if endMin > workEndMin {
			// remaining time on this day is shorter than the appointment
			return false, p.nextWorkingDayStart(local, loc)
		}
		return true, time.Time{}
	}

	// The slot crosses midnight. An end of exactly 00:00 with a 23:59 work
	// end is the allowed edge, provided the next day is also a working day.
	if endLocal.Hour() == 0 && endLocal.Minute() == 0 &&
		workEndMin >= midnightEdgeMinutes && p.WorkingDays[endLocal.Weekday()] {
		return true, time.Time{}
	}
	return false, p.nextWorkingDayStart(local, loc)
}

func (p Params) nextWorkingDayStart(local time.Time, loc *time.Location) time.Time {
	for i := 1; i <= 8; i++ {
		day := local.AddDate(0, 0, i)
		if p.WorkingDays[day.Weekday()] {
			return time.Date(day.Year(), day.Month(), day.Day(),
				p.WorkStart.Hour, p.WorkStart.Minute, 0, 0, loc)
		}
	}
	// no working day within a week: push past any reasonable query window
	return local.AddDate(1, 0, 0)
}

// snap rounds t forward to the next step boundary in local wall-clock terms,
// or to the next full hour for hourly appointments, zeroing seconds and
// nanoseconds either way.
func snap(t time.Time, loc *time.Location, step time.Duration, hourly bool) time.Time {
	local := t.In(loc)
	floored := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), 0, 0, loc)
	if floored.Before(local) {
		floored = floored.Add(time.Minute)
		local = floored.In(loc)
	}

	if hourly {
		if local.Minute() == 0 {
			return floored
		}
		return floored.Add(time.Duration(60-local.Minute()) * time.Minute)
	}

	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		stepMin = 1
	}
	rem := local.Minute() % stepMin
	if rem == 0 {
		return floored
	}
	return floored.Add(time.Duration(stepMin-rem) * time.Minute)
}
