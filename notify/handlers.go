package notify

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bookable/utils"
)

type Handler struct {
	Push PushSender
}

func NewHandler(push PushSender) *Handler { return &Handler{Push: push} }

type sendPushRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// POST /api/notify/send
func (h *Handler) SendPush(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req sendPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// back-office callers may push to any user; without an explicit target
	// the notification goes to the caller's own devices
	userID := req.UserID
	if userID == "" {
		userID = utils.GetUserIDFromRequest(r)
	}
	if userID == "" || req.Title == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "user_id and title are required")
		return
	}

	ids, err := h.Push.SendPushToUser(r.Context(), userID, req.Title, req.Body, req.Data)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":     true,
		"message_ids": ids,
	})
}
