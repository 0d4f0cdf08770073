package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookable/globals"
)

type fakePush struct {
	lastUser string
	ids      []string
	err      error
}

func (f *fakePush) SendPushToUser(ctx context.Context, userID, title, body string, data map[string]string) ([]string, error) {
	f.lastUser = userID
	return f.ids, f.err
}

func sendPush(h *Handler, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/notify/send", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.SendPush(rec, req, nil)
	return rec
}

func TestSendPush(t *testing.T) {
	push := &fakePush{ids: []string{"m1", "m2"}}
	h := NewHandler(push)

	rec := sendPush(h, map[string]string{"user_id": "u1", "title": "Booking confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if push.lastUser != "u1" {
		t.Errorf("pushed to %q", push.lastUser)
	}
	var resp struct {
		Success    bool     `json:"success"`
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.MessageIDs) != 2 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSendPushDefaultsToAuthenticatedUser(t *testing.T) {
	push := &fakePush{ids: []string{"m1"}}
	h := NewHandler(push)

	raw, _ := json.Marshal(map[string]string{"title": "Booking confirmed"})
	req := httptest.NewRequest(http.MethodPost, "/api/notify/send", bytes.NewReader(raw))
	req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, "u-self"))
	rec := httptest.NewRecorder()
	h.SendPush(rec, req, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if push.lastUser != "u-self" {
		t.Errorf("pushed to %q, want the authenticated user", push.lastUser)
	}
}

func TestSendPushValidation(t *testing.T) {
	h := NewHandler(&fakePush{})
	if rec := sendPush(h, map[string]string{"user_id": "u1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title: status = %d, want 400", rec.Code)
	}
	if rec := sendPush(h, map[string]string{"title": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user: status = %d, want 400", rec.Code)
	}
}

func TestSendPushProviderFailure(t *testing.T) {
	h := NewHandler(&fakePush{err: errors.New("registry down")})
	if rec := sendPush(h, map[string]string{"user_id": "u1", "title": "x"}); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
