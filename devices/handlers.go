package devices

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bookable/utils"
)

// Handler exposes device-token registration over HTTP.
type Handler struct {
	Repo Repository
}

func NewHandler(repo Repository) *Handler { return &Handler{Repo: repo} }

type registerRequest struct {
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
}

// POST /api/devices/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" || req.DeviceID == "" || req.PushToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "user_id, device_id and push_token are required")
		return
	}

	reg, err := h.Repo.Upsert(r.Context(), req.UserID, req.DeviceID, req.PushToken)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, reg)
}

// DELETE /api/devices/:userid/:deviceid
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := ps.ByName("userid")
	deviceID := ps.ByName("deviceid")
	if userID == "" || deviceID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "user and device ids are required")
		return
	}
	// a user may only remove their own device registrations
	if requester := utils.GetUserIDFromRequest(r); requester != userID {
		utils.RespondWithError(w, http.StatusForbidden, "cannot unregister another user's device")
		return
	}

	deleted, err := h.Repo.Delete(r.Context(), userID, deviceID)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "deleted": deleted})
}
