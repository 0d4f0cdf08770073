package adhoc

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"bookable/calendar"
	"bookable/config"
	"bookable/models"
	"bookable/pricing"
	"bookable/stripe"
	"bookable/utils"
)

// InitiateRequest asks for a session starting as soon as possible. The slot
// is not chosen by the caller; it is now plus the configured lead time.
type InitiateRequest struct {
	DurationMinutes int64  `json:"duration_minutes"`
	Summary         string `json:"summary,omitempty"`
	NotifyPhone     string `json:"notify_phone,omitempty"`
}

type InitiateResponse struct {
	RedirectURL    string `json:"redirect_url"`
	SessionID      string `json:"session_id"`
	RoomName       string `json:"room_name"`
	EffectiveStart string `json:"effective_start"`
	EffectiveEnd   string `json:"effective_end"`
}

// Handler starts paid ad-hoc sessions: immediate slot, video room, checkout.
type Handler struct {
	Cal      calendar.Service
	Cfg      *config.AppConfig
	Tiers    *pricing.Catalog
	Payments *stripe.Client

	now func() time.Time
}

func NewHandler(cal calendar.Service, cfg *config.AppConfig, tiers *pricing.Catalog, payments *stripe.Client) *Handler {
	return &Handler{Cal: cal, Cfg: cfg, Tiers: tiers, Payments: payments, now: time.Now}
}

// POST /api/adhoc/initiate-session
func (h *Handler) InitiateSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.Cfg.Adhoc.AdminEnabled {
		utils.RespondWithError(w, http.StatusForbidden, "ad-hoc sessions are currently disabled")
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tier, err := h.Tiers.TierFor(req.DurationMinutes)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := h.now().Add(time.Duration(h.Cfg.Adhoc.PreparationTimeMinutes) * time.Minute).Truncate(time.Minute)
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	busy, err := h.Cal.BusyTimes(r.Context(), h.Cfg.Gcal.CalendarID, start, end)
	if err != nil {
		log.Printf("adhoc: busy lookup failed: %v", err)
		utils.RespondWithError(w, http.StatusBadGateway, "calendar provider unavailable")
		return
	}
	for _, b := range busy {
		if b.Overlaps(start, end) {
			utils.RespondWithError(w, http.StatusConflict, "no immediate slot available")
			return
		}
	}

	summary := req.Summary
	if summary == "" {
		summary = tier.ProductName
	}
	roomName := "adhoc-" + uuid.NewString()

	envelope, err := models.EncodeFulfillment(models.FulfillmentAdhocGcalTwilio, models.AdhocGcalTwilioInstruction{
		StartTime:   start.Format(time.RFC3339),
		EndTime:     end.Format(time.RFC3339),
		Summary:     summary,
		RoomName:    roomName,
		NotifyPhone: req.NotifyPhone,
	})
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	session, err := h.Payments.CreateCheckout(r.Context(), stripe.CheckoutParams{
		Amount:            tier.UnitAmount,
		Currency:          tier.Currency,
		ProductName:       tier.ProductName,
		ClientReferenceID: roomName,
		Metadata:          map[string]string{models.FulfillmentMetadataKey: envelope},
		SuccessURL:        h.Cfg.Stripe.SuccessURL,
		CancelURL:         h.Cfg.Stripe.CancelURL,
	})
	if err != nil {
		var upstream *stripe.UpstreamError
		if errors.As(err, &upstream) {
			log.Printf("adhoc: payment provider error: %v", err)
			utils.RespondWithError(w, http.StatusBadGateway, "payment provider unavailable")
			return
		}
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	log.Printf("adhoc: session %s initiated, room %s, %s to %s",
		session.SessionID, roomName, start.Format(time.RFC3339), end.Format(time.RFC3339))
	utils.RespondWithJSON(w, http.StatusOK, InitiateResponse{
		RedirectURL:    session.URL,
		SessionID:      session.SessionID,
		RoomName:       roomName,
		EffectiveStart: start.Format(time.RFC3339),
		EffectiveEnd:   end.Format(time.RFC3339),
	})
}
