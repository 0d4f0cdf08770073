package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"bookable/config"
	"bookable/devices"
	"bookable/globals"
)

// PushSender fans a notification out to every registered device of a user
// and returns the provider message ids of the deliveries that succeeded.
// A user with no devices is not an error.
type PushSender interface {
	SendPushToUser(ctx context.Context, userID, title, body string, data map[string]string) ([]string, error)
}

// FcmSender delivers through the FCM HTTP API, looking tokens up in the
// device registry.
type FcmSender struct {
	cfg    config.FcmConfig
	repo   devices.Repository
	client *http.Client
}

func NewFcmSender(cfg config.FcmConfig, repo devices.Repository) *FcmSender {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	return &FcmSender{cfg: cfg, repo: repo, client: globals.HTTPClient}
}

type fcmMessage struct {
	To           string            `json:"to"`
	Notification map[string]string `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (f *FcmSender) SendPushToUser(ctx context.Context, userID, title, body string, data map[string]string) ([]string, error) {
	regs, err := f.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices for push: %w", err)
	}

	var messageIDs []string
	for _, reg := range regs {
		id, err := f.sendToToken(ctx, reg.PushToken, title, body, data)
		if err != nil {
			log.Printf("push to user %s device %s failed: %v", userID, reg.DeviceID, err)
			continue
		}
		messageIDs = append(messageIDs, id)
	}
	return messageIDs, nil
}

func (f *FcmSender) sendToToken(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	msg := fcmMessage{
		To:           token,
		Notification: map[string]string{"title": title, "body": body},
		Data:         data,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "key="+f.cfg.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("push provider %d", resp.StatusCode)
	}

	var parsed fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Results) > 0 {
		if parsed.Results[0].Error != "" {
			return "", fmt.Errorf("push provider: %s", parsed.Results[0].Error)
		}
		return parsed.Results[0].MessageID, nil
	}
	return "", nil
}

// NoopPushSender is installed when push is disabled.
type NoopPushSender struct{}

func (NoopPushSender) SendPushToUser(ctx context.Context, userID, title, body string, data map[string]string) ([]string, error) {
	log.Printf("push disabled; dropping notification for user %s", userID)
	return nil, nil
}
