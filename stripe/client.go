package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bookable/config"
	"bookable/globals"
	"bookable/models"
)

// ErrConfig signals a missing secret or malformed template; handlers map it
// to a 500 and log loudly.
var ErrConfig = errors.New("stripe: missing or invalid configuration")

// UpstreamError wraps a payment-provider failure; handlers map it to 502.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stripe: upstream %d: %s", e.Status, e.Detail)
}

// Client talks to the payment provider's REST API through the shared
// process-wide HTTP client.
type Client struct {
	cfg        config.StripeConfig
	httpClient *http.Client
}

func NewClient(cfg config.StripeConfig) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.stripe.com"
	}
	return &Client{cfg: cfg, httpClient: globals.HTTPClient}
}

// CheckoutParams describes one checkout session to create. Metadata is
// opaque to the provider and round-trips back on the webhook.
type CheckoutParams struct {
	Amount            int64 // minor currency units
	Currency          string
	ProductName       string
	ClientReferenceID string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

type CheckoutSession struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// CreateCheckout creates a hosted checkout session and returns the redirect
// URL the client should be sent to.
func (c *Client) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if c.cfg.SecretKey == "" {
		return nil, ErrConfig
	}
	if p.Amount < 0 || p.Currency == "" {
		return nil, fmt.Errorf("stripe: invalid amount/currency")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	if p.ClientReferenceID != "" {
		form.Set("client_reference_id", p.ClientReferenceID)
	}
	for k, v := range p.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &CheckoutSession{URL: session.URL, SessionID: session.ID}, nil
}

// FetchSession retrieves a session snapshot for reconciliation.
func (c *Client) FetchSession(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	if c.cfg.SecretKey == "" {
		return nil, ErrConfig
	}
	var snap models.SessionSnapshot
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.SecretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Status: 0, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &UpstreamError{Status: resp.StatusCode, Detail: string(detail)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
