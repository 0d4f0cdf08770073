package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"bookable/config"
	"bookable/globals"
	"bookable/models"
	"bookable/rdx"
	"bookable/utils"
)

const (
	maxWebhookBody = 1 << 20
	// dedupeTTL bounds how long a provider event id blocks re-processing.
	// Longer than any realistic webhook retry schedule.
	dedupeTTL = 72 * time.Hour
)

// WebhookHandler receives payment-provider callbacks, verifies their
// signature and hands verified paid sessions to the internal fulfillment API.
type WebhookHandler struct {
	Cfg    *config.AppConfig
	client *http.Client
}

func NewWebhookHandler(cfg *config.AppConfig) *WebhookHandler {
	return &WebhookHandler{Cfg: cfg, client: globals.HTTPClient}
}

// POST /api/payment/webhook
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = VerifySignature(payload, r.Header.Get("Stripe-Signature"), h.Cfg.Stripe.WebhookSecret, SignatureOptions{
		Tolerance:                time.Duration(h.Cfg.Stripe.ToleranceSeconds) * time.Second,
		WarnOnlyOutsideTolerance: !h.Cfg.Stripe.RejectOutsideTolerance,
	})
	if errors.Is(err, ErrConfig) {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	if err != nil {
		log.Printf("webhook rejected: %v", err)
		utils.RespondWithError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// verified but unparseable: processing error, let the provider retry
		utils.RespondWithInternalError(w, http.StatusInternalServerError, fmt.Errorf("parse event: %w", err))
		return
	}

	if err := h.process(r.Context(), event); err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"received": true})
}

func (h *WebhookHandler) process(ctx context.Context, event models.PaymentEvent) error {
	switch event.Type {
	case "checkout.session.completed":
		return h.processCheckoutCompleted(ctx, event)
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		// informational; fulfillment only ever runs off a checkout session
		log.Printf("webhook: acknowledged %s (event %s)", event.Type, event.ID)
		return nil
	default:
		log.Printf("webhook: ignoring unhandled event type %s", event.Type)
		return nil
	}
}

func (h *WebhookHandler) processCheckoutCompleted(ctx context.Context, event models.PaymentEvent) error {
	var session models.CheckoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("parse checkout session object: %w", err)
	}

	if session.PaymentStatus != "paid" {
		log.Printf("webhook: session %s completed with payment_status=%q, no fulfillment",
			session.ID, session.PaymentStatus)
		return nil
	}

	rawInstruction, ok := session.Metadata[models.FulfillmentMetadataKey]
	if !ok {
		return fmt.Errorf("session %s has no %s metadata", session.ID, models.FulfillmentMetadataKey)
	}
	envelope, err := models.DecodeFulfillment(rawInstruction)
	if err != nil {
		return fmt.Errorf("session %s: %w", session.ID, err)
	}

	// At-most-once: claim the provider event id before side effects. A lost
	// claim means a concurrent or earlier delivery already ran fulfillment.
	acquired, err := rdx.RdxSetNX(ctx, "fulfill:"+event.ID, session.ID, dedupeTTL)
	if err != nil {
		return fmt.Errorf("webhook dedupe: %w", err)
	}
	if !acquired {
		log.Printf("webhook: event %s already processed, acknowledging", event.ID)
		return nil
	}

	if err := h.callFulfillment(ctx, envelope, session.ID, session.PaymentIntent); err != nil {
		// release the claim so the provider's retry can try again
		_ = rdx.RdxDel(ctx, "fulfill:"+event.ID)
		return err
	}
	log.Printf("webhook: fulfillment for session %s (type %s) triggered", session.ID, envelope.Type)
	return nil
}

func (h *WebhookHandler) callFulfillment(ctx context.Context, envelope *models.FulfillmentEnvelope, sessionID, paymentIntent string) error {
	secret := h.Cfg.Fulfillment.SharedSecret
	if secret == "" {
		return fmt.Errorf("fulfillment shared secret not configured")
	}

	var path string
	switch envelope.Type {
	case models.FulfillmentGcalBooking:
		path = "/api/fulfill/gcal-booking"
	case models.FulfillmentAdhocGcalTwilio:
		path = "/api/fulfill/adhoc-gcal-twilio"
	default:
		return fmt.Errorf("unknown fulfillment type %q", envelope.Type)
	}

	body, err := stampReference(envelope.Data, sessionID, paymentIntent)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.Cfg.Fulfillment.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Auth-Secret", secret)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("call fulfillment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		// the slot was taken between payment and fulfillment; acknowledge so
		// the provider stops retrying, an operator reconciles manually
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("webhook: fulfillment conflict, needs manual reconciliation: %s", detail)
		return nil
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fulfillment service returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// stampReference fills in the idempotency reference the checkout could not
// know yet: the instruction was serialized before the session existed, so
// the session id gets stamped in here, on the verified side.
func stampReference(data json.RawMessage, sessionID, paymentIntent string) ([]byte, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse instruction data: %w", err)
	}
	if ref, _ := fields["reference_id"].(string); ref == "" {
		fields["reference_id"] = sessionID
	}
	if pr, _ := fields["payment_ref"].(string); pr == "" && paymentIntent != "" {
		fields["payment_ref"] = paymentIntent
	}
	return json.Marshal(fields)
}
