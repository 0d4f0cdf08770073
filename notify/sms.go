package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"bookable/config"
	"bookable/globals"
	"bookable/utils"
)

// SMSSender delivers a text message. Failures are non-fatal to callers; they
// log with the recipient redacted and move on.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSender posts to the Twilio Messages API through the shared HTTP
// client.
type TwilioSender struct {
	cfg    config.TwilioConfig
	client *http.Client
}

func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.twilio.com"
	}
	return &TwilioSender{cfg: cfg, client: globals.HTTPClient}
}

func (t *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		t.cfg.APIBaseURL, url.PathEscape(t.cfg.AccountSID))

	form := url.Values{
		"To":   []string{to},
		"From": []string{t.cfg.PhoneNumber},
		"Body": []string{body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send SMS to %s: %w", utils.RedactPhone(to), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SMS provider %d for %s: %s",
			resp.StatusCode, utils.RedactPhone(to), detail)
	}
	log.Printf("SMS sent to %s", utils.RedactPhone(to))
	return nil
}

// NoopSMSSender is installed when SMS is disabled.
type NoopSMSSender struct{}

func (NoopSMSSender) SendSMS(ctx context.Context, to, body string) error {
	log.Printf("SMS disabled; dropping message for %s", utils.RedactPhone(to))
	return nil
}
