package fulfillment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bookable/calendar"
	"bookable/models"
	"bookable/utils"
)

// Handler exposes the internal typed fulfillment endpoints. Both sit behind
// RequireSharedSecret; nothing here is reachable from the public internet
// without the secret.
type Handler struct {
	Exec *Executor
}

func NewHandler(exec *Executor) *Handler {
	return &Handler{Exec: exec}
}

// POST /api/fulfill/gcal-booking
func (h *Handler) FulfillGcalBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var instr models.GcalBookingInstruction
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := h.Exec.ExecuteGcalBooking(r.Context(), instr)
	if err != nil {
		h.respondExecError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":   true,
		"event_id":  result.EventID,
		"duplicate": result.Duplicate,
	})
}

// POST /api/fulfill/adhoc-gcal-twilio
func (h *Handler) FulfillAdhocSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var instr models.AdhocGcalTwilioInstruction
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := h.Exec.ExecuteAdhocSession(r.Context(), instr)
	if err != nil {
		h.respondExecError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":   true,
		"event_id":  result.EventID,
		"room_name": instr.RoomName,
		"duplicate": result.Duplicate,
	})
}

func (h *Handler) respondExecError(w http.ResponseWriter, err error) {
	var transient *calendar.TransientError
	switch {
	case errors.Is(err, ErrBadInstruction):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrConflict):
		// paid but unfulfillable; the webhook caller acknowledges and an
		// operator reconciles
		utils.RespondWithError(w, http.StatusConflict, "booking conflict")
	case errors.As(err, &transient):
		utils.RespondWithError(w, http.StatusBadGateway, "calendar provider unavailable")
	default:
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
	}
}
