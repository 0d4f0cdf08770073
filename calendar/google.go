package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bookable/globals"
	"bookable/models"
)

// GoogleCalendar talks to the Google Calendar v3 REST API through the shared
// process-wide HTTP client. Obtaining the access token is treated as an
// opaque capability supplied by the deployment.
type GoogleCalendar struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGoogleCalendar(baseURL, accessToken string) *GoogleCalendar {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/calendar/v3"
	}
	return &GoogleCalendar{baseURL: baseURL, token: accessToken, client: globals.HTTPClient}
}

type gcalEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gcalEvent struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Sequence    int            `json:"sequence,omitempty"`
	Start       *gcalEventTime `json:"start,omitempty"`
	End         *gcalEventTime `json:"end,omitempty"`
	Created     string         `json:"created,omitempty"`
	Updated     string         `json:"updated,omitempty"`
	ExtendedProperties *struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
}

func (g *GoogleCalendar) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, &PermanentError{Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, &PermanentError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, &TransientError{Err: fmt.Errorf("calendar API %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return resp.StatusCode, ErrConflict
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &PermanentError{Err: fmt.Errorf("calendar API %d: %s", resp.StatusCode, detail)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &PermanentError{Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

func (g *GoogleCalendar) BusyTimes(ctx context.Context, calendarID string, start, end time.Time) ([]BusyInterval, error) {
	reqBody := map[string]interface{}{
		"timeMin":  start.Format(time.RFC3339),
		"timeMax":  end.Format(time.RFC3339),
		"timeZone": "UTC",
		"items":    []map[string]string{{"id": calendarID}},
	}
	var freebusy struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/freeBusy", nil, reqBody, &freebusy); err != nil {
		return nil, err
	}

	var busy []BusyInterval
	for _, period := range freebusy.Calendars[calendarID].Busy {
		bs, err1 := time.Parse(time.RFC3339, period.Start)
		be, err2 := time.Parse(time.RFC3339, period.End)
		if err1 != nil || err2 != nil {
			log.Printf("calendar: skipping busy period with bad bounds %q..%q", period.Start, period.End)
			continue
		}
		busy = append(busy, BusyInterval{Start: bs, End: be})
	}
	return MergeBusy(busy), nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, input EventInput) (string, error) {
	ev := gcalEvent{
		Summary:     input.Summary,
		Description: input.Description,
		Start:       &gcalEventTime{DateTime: input.Start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcalEventTime{DateTime: input.End.Format(time.RFC3339), TimeZone: "UTC"},
	}
	if len(input.Metadata) > 0 {
		ev.ExtendedProperties = &struct {
			Private map[string]string `json:"private,omitempty"`
		}{Private: input.Metadata}
	}
	var created gcalEvent
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if _, err := g.do(ctx, http.MethodPost, path, nil, ev, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (g *GoogleCalendar) CancelEvent(ctx context.Context, calendarID, eventID string, notifyAttendees bool) error {
	base := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)

	var current gcalEvent
	if _, err := g.do(ctx, http.MethodGet, base, nil, nil, &current); err != nil {
		if err == ErrNotFound {
			return nil // already gone
		}
		return err
	}

	q := url.Values{"sendUpdates": []string{sendUpdates(notifyAttendees)}}
	_, err := g.do(ctx, http.MethodDelete, base, q, nil, nil)
	if err == nil || err == ErrNotFound {
		return nil
	}

	// A soft-cancelled event refuses plain deletion: restore it first,
	// then delete. Terminal failure is logged and reported as success so
	// an operator can reconcile.
	if current.Status == "cancelled" || isPermanent(err) {
		restore := gcalEvent{Status: "confirmed", Sequence: current.Sequence + 1}
		restoreQ := url.Values{"sendUpdates": []string{"none"}}
		if _, rerr := g.do(ctx, http.MethodPatch, base, restoreQ, restore, nil); rerr != nil {
			log.Printf("calendar: could not restore event %s before delete: %v", eventID, rerr)
			return nil
		}
		if _, derr := g.do(ctx, http.MethodDelete, base, q, nil, nil); derr != nil && derr != ErrNotFound {
			log.Printf("calendar: could not delete event %s after restore: %v", eventID, derr)
		}
		return nil
	}
	return err
}

func (g *GoogleCalendar) MarkCancelled(ctx context.Context, calendarID, eventID string, notifyAttendees bool) (string, error) {
	base := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)

	var current gcalEvent
	if _, err := g.do(ctx, http.MethodGet, base, nil, nil, &current); err != nil {
		return "", err
	}

	patch := gcalEvent{Status: "cancelled", Sequence: current.Sequence + 1}
	q := url.Values{"sendUpdates": []string{sendUpdates(notifyAttendees)}}
	var updated gcalEvent
	if _, err := g.do(ctx, http.MethodPatch, base, q, patch, &updated); err != nil {
		return "", err
	}
	return updated.ID, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, start, end time.Time, includeCancelled bool) ([]models.BookedEvent, error) {
	q := url.Values{
		"timeMin":      []string{start.Format(time.RFC3339)},
		"timeMax":      []string{end.Format(time.RFC3339)},
		"singleEvents": []string{"true"},
		"orderBy":      []string{"startTime"},
		"showDeleted":  []string{strconv.FormatBool(includeCancelled)},
	}
	var list struct {
		Items []gcalEvent `json:"items"`
	}
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if _, err := g.do(ctx, http.MethodGet, path, q, nil, &list); err != nil {
		return nil, err
	}

	var out []models.BookedEvent
	for _, ev := range list.Items {
		status := ev.Status
		if status == "" {
			status = "confirmed"
		}
		if !includeCancelled && status == "cancelled" {
			continue
		}
		out = append(out, models.BookedEvent{
			EventID:     ev.ID,
			Summary:     ev.Summary,
			Description: ev.Description,
			StartTime:   eventTimeString(ev.Start, "T00:00:00Z"),
			EndTime:     eventTimeString(ev.End, "T23:59:59Z"),
			Status:      status,
			Created:     ev.Created,
			Updated:     ev.Updated,
		})
	}
	return out, nil
}

func eventTimeString(t *gcalEventTime, allDaySuffix string) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	if t.Date != "" {
		return t.Date + allDaySuffix
	}
	return ""
}

func sendUpdates(notify bool) string {
	if notify {
		return "all"
	}
	return "none"
}

func isPermanent(err error) bool {
	_, ok := err.(*PermanentError)
	return ok
}
