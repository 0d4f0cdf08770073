package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	"bookable/calendar"
	"bookable/config"
	"bookable/models"
)

type recordingSMS struct {
	sent []string
	err  error
}

func (r *recordingSMS) SendSMS(ctx context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, to+": "+body)
	return nil
}

func testExecutor(cal calendar.Service, sms *recordingSMS) *Executor {
	cfg := &config.AppConfig{
		Gcal:   config.GcalConfig{CalendarID: "primary", TimeZone: "Europe/Zurich"},
		Twilio: config.TwilioConfig{NotifyPhone: "+41790001122"},
	}
	return NewExecutor(cal, cfg, sms)
}

func gcalInstruction(ref string) models.GcalBookingInstruction {
	return models.GcalBookingInstruction{
		StartTime:   "2026-03-20T10:00:00+01:00",
		EndTime:     "2026-03-20T11:00:00+01:00",
		Summary:     "Consultation 60 min",
		ReferenceID: ref,
	}
}

func TestExecuteGcalBooking(t *testing.T) {
	cal := calendar.NewMemoryCalendar()
	sms := &recordingSMS{}
	exec := testExecutor(cal, sms)

	result, err := exec.ExecuteGcalBooking(context.Background(), gcalInstruction("cs_abc"))
	if err != nil {
		t.Fatal(err)
	}
	if result.EventID == "" || result.Duplicate {
		t.Fatalf("result = %+v", result)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("SMS sent = %d, want 1", len(sms.sent))
	}

	events, _ := cal.ListEvents(context.Background(), "primary",
		time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC), true)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func TestExecuteGcalBookingIdempotent(t *testing.T) {
	cal := calendar.NewMemoryCalendar()
	sms := &recordingSMS{}
	exec := testExecutor(cal, sms)

	first, err := exec.ExecuteGcalBooking(context.Background(), gcalInstruction("cs_repeat"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := exec.ExecuteGcalBooking(context.Background(), gcalInstruction("cs_repeat"))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate {
		t.Fatal("second run not detected as duplicate")
	}
	if second.EventID != first.EventID {
		t.Errorf("duplicate returned event %s, first created %s", second.EventID, first.EventID)
	}
	if len(sms.sent) != 1 {
		t.Errorf("SMS sent = %d, want 1 (no resend on duplicate)", len(sms.sent))
	}
}

func TestExecuteGcalBookingConflict(t *testing.T) {
	cal := calendar.NewMemoryCalendar()
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal.Seed("primary",
		time.Date(2026, 3, 20, 10, 30, 0, 0, zurich),
		time.Date(2026, 3, 20, 11, 30, 0, 0, zurich),
		"external booking")

	exec := testExecutor(cal, &recordingSMS{})
	_, err := exec.ExecuteGcalBooking(context.Background(), gcalInstruction("cs_conflict"))
	if !errors.Is(err, calendar.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestExecuteGcalBookingSurvivesSMSFailure(t *testing.T) {
	cal := calendar.NewMemoryCalendar()
	sms := &recordingSMS{err: errors.New("provider down")}
	exec := testExecutor(cal, sms)

	result, err := exec.ExecuteGcalBooking(context.Background(), gcalInstruction("cs_smsdown"))
	if err != nil {
		t.Fatalf("booking failed because of SMS: %v", err)
	}
	if result.EventID == "" {
		t.Fatal("no event created")
	}
}

func TestExecuteAdhocSession(t *testing.T) {
	cal := calendar.NewMemoryCalendar()
	sms := &recordingSMS{}
	exec := testExecutor(cal, sms)

	result, err := exec.ExecuteAdhocSession(context.Background(), models.AdhocGcalTwilioInstruction{
		StartTime:   "2026-03-20T14:05:00+01:00",
		EndTime:     "2026-03-20T14:35:00+01:00",
		Summary:     "Consultation 30 min",
		RoomName:    "adhoc-9f2c",
		ReferenceID: "cs_adhoc",
		NotifyPhone: "+41795556677",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.EventID == "" {
		t.Fatal("no event created")
	}
	if len(sms.sent) != 1 {
		t.Fatalf("SMS sent = %d, want 1", len(sms.sent))
	}
	// the explicit recipient wins over the configured default
	if got := sms.sent[0]; got[:13] != "+41795556677:" {
		t.Errorf("SMS recipient: %s", got)
	}
}

func TestExecuteAdhocSessionRequiresRoom(t *testing.T) {
	exec := testExecutor(calendar.NewMemoryCalendar(), &recordingSMS{})
	_, err := exec.ExecuteAdhocSession(context.Background(), models.AdhocGcalTwilioInstruction{
		StartTime: "2026-03-20T14:05:00+01:00",
		EndTime:   "2026-03-20T14:35:00+01:00",
		Summary:   "Consultation 30 min",
	})
	if !errors.Is(err, ErrBadInstruction) {
		t.Fatalf("got %v, want ErrBadInstruction", err)
	}
}

func protectedEndpoint(secret string) (httprouter.Handle, *int) {
	hits := 0
	handle := RequireSharedSecret(secret, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		hits++
		w.WriteHeader(http.StatusOK)
	})
	return handle, &hits
}

func TestRequireSharedSecret(t *testing.T) {
	cases := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantHits   int
	}{
		{"valid", "s3cret", "s3cret", http.StatusOK, 1},
		{"missing header", "s3cret", "", http.StatusUnauthorized, 0},
		{"wrong value", "s3cret", "nope", http.StatusUnauthorized, 0},
		{"unconfigured", "", "anything", http.StatusInternalServerError, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handle, hits := protectedEndpoint(tc.secret)
			req := httptest.NewRequest(http.MethodPost, "/api/fulfill/gcal-booking", nil)
			if tc.header != "" {
				req.Header.Set(AuthHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handle(rec, req, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if *hits != tc.wantHits {
				t.Fatalf("handler hits = %d, want %d", *hits, tc.wantHits)
			}
		})
	}

	t.Run("missing header reason differs from wrong value", func(t *testing.T) {
		handle, _ := protectedEndpoint("s3cret")

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		handle(rec, req, nil)
		var missing map[string]string
		json.Unmarshal(rec.Body.Bytes(), &missing)

		req = httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(AuthHeader, "nope")
		rec = httptest.NewRecorder()
		handle(rec, req, nil)
		var wrong map[string]string
		json.Unmarshal(rec.Body.Bytes(), &wrong)

		if missing["error"] == wrong["error"] {
			t.Error("missing-header and wrong-value responses should differ")
		}
	})
}

func TestFulfillEndpointStatusMapping(t *testing.T) {
	zurich, _ := time.LoadLocation("Europe/Zurich")
	cal := calendar.NewMemoryCalendar()
	cal.Seed("primary",
		time.Date(2026, 3, 20, 10, 0, 0, 0, zurich),
		time.Date(2026, 3, 20, 11, 0, 0, 0, zurich),
		"taken")
	h := NewHandler(testExecutor(cal, &recordingSMS{}))

	post := func(body interface{}) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/fulfill/gcal-booking", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		h.FulfillGcalBooking(rec, req, nil)
		return rec
	}

	if rec := post(gcalInstruction("cs_taken")); rec.Code != http.StatusConflict {
		t.Fatalf("conflict: status = %d, want 409", rec.Code)
	}
	if rec := post(models.GcalBookingInstruction{StartTime: "bad"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad instruction: status = %d, want 400", rec.Code)
	}
}
