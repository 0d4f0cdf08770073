package gcal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"bookable/calendar"
	"bookable/config"
	"bookable/models"
	"bookable/pricing"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Gcal: config.GcalConfig{
			CalendarID:             "primary",
			TimeZone:               "Europe/Zurich",
			WorkStartTime:          "09:00",
			WorkEndTime:            "17:00",
			WorkingDays:            []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			PreparationTimeMinutes: 120,
			StepMinutes:            15,
		},
	}
}

func testTiers() *pricing.Catalog {
	return pricing.NewCatalog([]config.PriceTier{
		{DurationMinutes: 30, UnitAmount: 4500, ProductName: "Consultation 30 min"},
		{DurationMinutes: 60, UnitAmount: 8000, ProductName: "Consultation 60 min"},
		{DurationMinutes: 90, UnitAmount: 11000, ProductName: "Consultation 90 min"},
	}, "chf")
}

func newTestHandler(cal calendar.Service, now time.Time) *Handler {
	h := NewHandler(cal, testConfig(), testTiers())
	h.now = func() time.Time { return now }
	return h
}

func getAvailability(h *Handler, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/gcal/availability?"+query, nil)
	rec := httptest.NewRecorder()
	h.GetAvailability(rec, req, nil)
	return rec
}

func decodeSlots(t *testing.T, rec *httptest.ResponseRecorder) []models.PricedSlot {
	t.Helper()
	var resp struct {
		Slots []models.PricedSlot `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return resp.Slots
}

func TestAvailabilityReturnsPricedSlots(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	// a Monday; "now" is long before the queried week so the preparation
	// clamp does not bite
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, zurich)
	cal := calendar.NewMemoryCalendar()
	cal.Seed("primary",
		time.Date(2026, 3, 16, 10, 0, 0, 0, zurich),
		time.Date(2026, 3, 16, 11, 0, 0, 0, zurich),
		"existing booking")

	h := newTestHandler(cal, now)
	rec := getAvailability(h, "start_date=2026-03-16&end_date=2026-03-17&duration_minutes=60")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	slots := decodeSlots(t, rec)
	if len(slots) == 0 {
		t.Fatal("expected offered slots")
	}
	for _, s := range slots {
		if s.DurationMinutes != 60 || s.Price != 8000 || s.Currency != "chf" {
			t.Errorf("slot not priced from the 60-minute tier: %+v", s)
		}
		start, err := time.Parse(time.RFC3339, s.StartTime)
		if err != nil {
			t.Fatalf("start_time not RFC3339: %v", err)
		}
		local := start.In(zurich)
		if local.Year() != 2026 || local.Month() != time.March || local.Day() != 16 {
			t.Errorf("slot %s outside the requested date range", s.StartTime)
		}
		if local.Hour() == 10 {
			t.Errorf("slot %s overlaps the seeded busy block", s.StartTime)
		}
		if local.Minute() != 0 {
			t.Errorf("hourly slot %s does not start on the hour", s.StartTime)
		}
	}
}

func TestAvailabilityNoMatchingTier(t *testing.T) {
	h := newTestHandler(calendar.NewMemoryCalendar(), time.Now())
	rec := getAvailability(h, "start_date=2026-03-16&end_date=2026-03-17&duration_minutes=17")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != "no service offered for 17 minute duration" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestAvailabilityPreparationClamp(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	// Monday 08:30 local with a 120 minute lead: nothing before 10:30,
	// which snaps to 11:00 for hourly slots
	now := time.Date(2026, 3, 16, 8, 30, 0, 0, zurich)
	h := newTestHandler(calendar.NewMemoryCalendar(), now)

	rec := getAvailability(h, "start_date=2026-03-16&end_date=2026-03-17&duration_minutes=60")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	slots := decodeSlots(t, rec)
	if len(slots) == 0 {
		t.Fatal("expected slots after the preparation window")
	}
	first, _ := time.Parse(time.RFC3339, slots[0].StartTime)
	want := time.Date(2026, 3, 16, 11, 0, 0, 0, zurich)
	if !first.Equal(want) {
		t.Errorf("first slot = %s, want %s", first.In(zurich), want)
	}
}

func TestAvailabilityBadQuery(t *testing.T) {
	h := newTestHandler(calendar.NewMemoryCalendar(), time.Now())
	cases := []struct {
		name  string
		query string
	}{
		{"missing dates", "duration_minutes=60"},
		{"bad date format", "start_date=16.03.2026&end_date=2026-03-17&duration_minutes=60"},
		{"reversed range", "start_date=2026-03-18&end_date=2026-03-16&duration_minutes=60"},
		{"zero duration", "start_date=2026-03-16&end_date=2026-03-17&duration_minutes=0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := getAvailability(h, tc.query); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func postBook(h *Handler, req models.BookSlotRequest) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/api/gcal/book", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.BookSlot(rec, r, nil)
	return rec
}

func TestBookSlot(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal := calendar.NewMemoryCalendar()
	h := newTestHandler(cal, time.Now())

	start := time.Date(2026, 3, 16, 14, 0, 0, 0, zurich)
	rec := postBook(h, models.BookSlotRequest{
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(time.Hour).Format(time.RFC3339),
		Summary:   "Consultation",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.BookingResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.EventID == "" {
		t.Fatalf("booking response = %+v", resp)
	}
}

func TestBookSlotConflict(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal := calendar.NewMemoryCalendar()
	start := time.Date(2026, 3, 16, 10, 0, 0, 0, zurich)
	// an external booking landed between quote and book
	cal.Seed("primary", start, start.Add(time.Hour), "someone else")

	h := newTestHandler(cal, time.Now())
	rec := postBook(h, models.BookSlotRequest{
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(time.Hour).Format(time.RFC3339),
		Summary:   "Consultation",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp models.BookingResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success {
		t.Error("conflicting booking reported success")
	}
}

func TestBookSlotValidation(t *testing.T) {
	h := newTestHandler(calendar.NewMemoryCalendar(), time.Now())
	start := time.Now().Add(24 * time.Hour)

	cases := []struct {
		name string
		req  models.BookSlotRequest
	}{
		{"bad start", models.BookSlotRequest{StartTime: "noon", EndTime: start.Format(time.RFC3339), Summary: "x"}},
		{"end before start", models.BookSlotRequest{
			StartTime: start.Format(time.RFC3339),
			EndTime:   start.Add(-time.Hour).Format(time.RFC3339),
			Summary:   "x",
		}},
		{"missing summary", models.BookSlotRequest{
			StartTime: start.Format(time.RFC3339),
			EndTime:   start.Add(time.Hour).Format(time.RFC3339),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := postBook(h, tc.req); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestDeleteAndMarkCancelled(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal := calendar.NewMemoryCalendar()
	start := time.Date(2026, 3, 16, 10, 0, 0, 0, zurich)
	eventID := cal.Seed("primary", start, start.Add(time.Hour), "to cancel")

	h := newTestHandler(cal, time.Now())

	// soft cancel first
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/mark_cancelled/"+eventID, nil)
	rec := httptest.NewRecorder()
	h.MarkCancelled(rec, req, httprouter.Params{{Key: "event_id", Value: eventID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark_cancelled status = %d, body %s", rec.Code, rec.Body.String())
	}

	// then hard delete; deleting again stays a success
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodDelete, "/api/admin/gcal/delete/"+eventID, nil)
		rec = httptest.NewRecorder()
		h.DeleteEvent(rec, req, httprouter.Params{{Key: "event_id", Value: eventID}})
		if rec.Code != http.StatusOK {
			t.Fatalf("delete attempt %d: status = %d", i, rec.Code)
		}
	}
}

func TestMarkCancelledMissingEvent(t *testing.T) {
	h := newTestHandler(calendar.NewMemoryCalendar(), time.Now())
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/mark_cancelled/ghost", nil)
	rec := httptest.NewRecorder()
	h.MarkCancelled(rec, req, httprouter.Params{{Key: "event_id", Value: "ghost"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListBookings(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal := calendar.NewMemoryCalendar()
	for i := 0; i < 3; i++ {
		start := time.Date(2026, 3, 16+i, 10, 0, 0, 0, zurich)
		cal.Seed("primary", start, start.Add(time.Hour), fmt.Sprintf("booking %d", i))
	}

	h := newTestHandler(cal, time.Date(2026, 3, 15, 8, 0, 0, 0, zurich))
	req := httptest.NewRequest(http.MethodGet,
		"/api/admin/bookings?start_date=2026-03-16&end_date=2026-03-17", nil)
	rec := httptest.NewRecorder()
	h.ListBookings(rec, req, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Bookings []models.BookedEvent `json:"bookings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// the range covers the 16th and 17th only
	if len(resp.Bookings) != 2 {
		t.Fatalf("bookings = %d, want 2", len(resp.Bookings))
	}
	if resp.Bookings[0].StartTime > resp.Bookings[1].StartTime {
		t.Error("bookings not ordered by start time")
	}
}
