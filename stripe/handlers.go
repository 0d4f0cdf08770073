package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"bookable/config"
	"bookable/models"
	"bookable/pricing"
	"bookable/utils"
)

// CheckoutRequest is the body of POST /api/payment/create-checkout. The
// caller has already picked a priced slot; we re-derive the price from the
// configured tiers rather than trusting a client-sent amount.
type CheckoutRequest struct {
	StartTime   string `json:"start_time"` // RFC3339
	EndTime     string `json:"end_time"`   // RFC3339
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	NotifyPhone string `json:"notify_phone,omitempty"`
}

// Handler serves the payment-facing endpoints.
type Handler struct {
	Cfg    *config.AppConfig
	Client *Client
	Tiers  *pricing.Catalog
}

func NewHandler(cfg *config.AppConfig, client *Client, tiers *pricing.Catalog) *Handler {
	return &Handler{Cfg: cfg, Client: client, Tiers: tiers}
}

// POST /api/payment/create-checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !start.After(time.Now()) {
		utils.RespondWithError(w, http.StatusBadRequest, "start_time must be in the future")
		return
	}

	duration := int64(end.Sub(start) / time.Minute)
	tier, err := h.Tiers.TierFor(duration)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary := req.Summary
	if summary == "" {
		summary = tier.ProductName
	}
	instruction := models.GcalBookingInstruction{
		StartTime:   start.Format(time.RFC3339),
		EndTime:     end.Format(time.RFC3339),
		Summary:     summary,
		Description: req.Description,
		NotifyPhone: req.NotifyPhone,
	}
	envelope, err := models.EncodeFulfillment(models.FulfillmentGcalBooking, instruction)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	session, err := h.Client.CreateCheckout(r.Context(), CheckoutParams{
		Amount:      tier.UnitAmount,
		Currency:    tier.Currency,
		ProductName: tier.ProductName,
		Metadata:    map[string]string{models.FulfillmentMetadataKey: envelope},
		SuccessURL:  h.Cfg.Stripe.SuccessURL,
		CancelURL:   h.Cfg.Stripe.CancelURL,
	})
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	log.Printf("checkout: session %s created for %s (%d %s)",
		session.SessionID, start.Format(time.RFC3339), tier.UnitAmount, tier.Currency)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"redirect_url": session.URL,
		"session_id":   session.SessionID,
	})
}

// GET /api/payment/session/:session_id
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("session_id")
	if sessionID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing session id")
		return
	}
	snap, err := h.Client.FetchSession(r.Context(), sessionID)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "session not found")
			return
		}
		h.respondCheckoutError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, snap)
}

func (h *Handler) respondCheckoutError(w http.ResponseWriter, err error) {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrConfig):
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
	case errors.As(err, &upstream):
		log.Printf("payment provider error: %v", err)
		utils.RespondWithError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
	}
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time: %v", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time: %v", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time must be after start_time")
	}
	return start, end, nil
}
