package gcal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"bookable/availability"
	"bookable/calendar"
	"bookable/config"
	"bookable/models"
	"bookable/pricing"
	"bookable/utils"
)

// Handler serves calendar availability quotes and booking administration.
// The calendar behind it is whichever Service the process was booted with.
type Handler struct {
	Cal   calendar.Service
	Cfg   *config.AppConfig
	Tiers *pricing.Catalog

	// now is swappable for tests.
	now func() time.Time
}

func NewHandler(cal calendar.Service, cfg *config.AppConfig, tiers *pricing.Catalog) *Handler {
	return &Handler{Cal: cal, Cfg: cfg, Tiers: tiers, now: time.Now}
}

// GET /api/gcal/availability?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD&duration_minutes=N
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	loc, err := time.LoadLocation(h.Cfg.Gcal.TimeZone)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, fmt.Errorf("load time zone: %w", err))
		return
	}

	q := r.URL.Query()
	startDate, err := time.ParseInLocation("2006-01-02", q.Get("start_date"), loc)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
		return
	}
	endDate, err := time.ParseInLocation("2006-01-02", q.Get("end_date"), loc)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
		return
	}
	if endDate.Before(startDate) {
		utils.RespondWithError(w, http.StatusBadRequest, "end_date must not precede start_date")
		return
	}

	duration, err := strconv.ParseInt(q.Get("duration_minutes"), 10, 64)
	if err != nil || duration <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	tier, err := h.Tiers.TierFor(duration)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Nothing inside the preparation window is offered; clamp the query
	// start forward rather than filtering afterwards.
	queryStart := startDate
	if minStart := h.now().Add(time.Duration(h.Cfg.Gcal.PreparationTimeMinutes) * time.Minute); queryStart.Before(minStart) {
		queryStart = minStart
	}
	// The date range is half-open: slots on end_date itself are not offered.
	queryEnd := endDate

	busy, err := h.Cal.BusyTimes(r.Context(), h.Cfg.Gcal.CalendarID, queryStart, queryEnd)
	if err != nil {
		h.respondCalendarError(w, err)
		return
	}

	workStart, err := availability.ParseWallClock(h.Cfg.Gcal.WorkStartTime)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}
	workEnd, err := availability.ParseWallClock(h.Cfg.Gcal.WorkEndTime)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	slots, err := availability.Calculate(availability.Params{
		QueryStart:  queryStart,
		QueryEnd:    queryEnd,
		Busy:        busy,
		Duration:    time.Duration(duration) * time.Minute,
		WorkStart:   workStart,
		WorkEnd:     workEnd,
		WorkingDays: availability.ParseWorkingDays(h.Cfg.Gcal.WorkingDays),
		Buffer:      time.Duration(h.Cfg.Gcal.BufferMinutes) * time.Minute,
		Step:        time.Duration(h.Cfg.Gcal.StepMinutes) * time.Minute,
		Location:    loc,
	})
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	priced := make([]models.PricedSlot, 0, len(slots))
	for _, s := range slots {
		local := s.Start.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if day.Before(startDate) || !day.Before(endDate) {
			continue
		}
		priced = append(priced, models.PricedSlot{
			StartTime:       s.Start.Format(time.RFC3339),
			EndTime:         s.End.Format(time.RFC3339),
			DurationMinutes: duration,
			Price:           tier.UnitAmount,
			Currency:        tier.Currency,
			ProductName:     tier.ProductName,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"slots": priced})
}

// POST /api/gcal/book
func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.BookSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid end_time")
		return
	}
	if !end.After(start) {
		utils.RespondWithError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}
	if req.Summary == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "summary is required")
		return
	}

	// Quotes go stale; re-check before writing.
	busy, err := h.Cal.BusyTimes(r.Context(), h.Cfg.Gcal.CalendarID, start, end)
	if err != nil {
		h.respondCalendarError(w, err)
		return
	}
	for _, b := range busy {
		if b.Overlaps(start, end) {
			utils.RespondWithJSON(w, http.StatusConflict, models.BookingResponse{
				Success: false,
				Message: "slot no longer available",
			})
			return
		}
	}

	eventID, err := h.Cal.CreateEvent(r.Context(), h.Cfg.Gcal.CalendarID, calendar.EventInput{
		Start:       start,
		End:         end,
		Summary:     req.Summary,
		Description: req.Description,
	})
	if errors.Is(err, calendar.ErrConflict) {
		utils.RespondWithJSON(w, http.StatusConflict, models.BookingResponse{
			Success: false,
			Message: "slot no longer available",
		})
		return
	}
	if err != nil {
		h.respondCalendarError(w, err)
		return
	}

	log.Printf("gcal: booked %s (%s to %s)", eventID, req.StartTime, req.EndTime)
	utils.RespondWithJSON(w, http.StatusOK, models.BookingResponse{
		Success: true,
		EventID: eventID,
		Message: "booking confirmed",
	})
}

// DELETE /api/admin/gcal/delete/:event_id
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	eventID := ps.ByName("event_id")
	if eventID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing event id")
		return
	}
	notify := r.URL.Query().Get("notify") != "false"

	if err := h.Cal.CancelEvent(r.Context(), h.Cfg.Gcal.CalendarID, eventID, notify); err != nil {
		h.respondCalendarError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "event_id": eventID})
}

// PATCH /api/admin/mark_cancelled/:event_id
func (h *Handler) MarkCancelled(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	eventID := ps.ByName("event_id")
	if eventID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing event id")
		return
	}
	notify := r.URL.Query().Get("notify") != "false"

	if _, err := h.Cal.MarkCancelled(r.Context(), h.Cfg.Gcal.CalendarID, eventID, notify); err != nil {
		h.respondCalendarError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":  true,
		"event_id": eventID,
		"status":   "cancelled",
	})
}

// GET /api/admin/bookings?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD&include_cancelled=true
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	loc, err := time.LoadLocation(h.Cfg.Gcal.TimeZone)
	if err != nil {
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
		return
	}

	q := r.URL.Query()
	start := h.now().In(loc)
	if s := q.Get("start_date"); s != "" {
		start, err = time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
			return
		}
	}
	end := start.AddDate(0, 0, 30)
	if s := q.Get("end_date"); s != "" {
		end, err = time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
		end = end.AddDate(0, 0, 1)
	}
	includeCancelled := q.Get("include_cancelled") == "true"

	events, err := h.Cal.ListEvents(r.Context(), h.Cfg.Gcal.CalendarID, start, end, includeCancelled)
	if err != nil {
		h.respondCalendarError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"bookings": events})
}

func (h *Handler) respondCalendarError(w http.ResponseWriter, err error) {
	var transient *calendar.TransientError
	switch {
	case errors.Is(err, calendar.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, calendar.ErrConflict):
		utils.RespondWithError(w, http.StatusConflict, "booking conflict")
	case errors.As(err, &transient):
		log.Printf("calendar provider error: %v", err)
		utils.RespondWithError(w, http.StatusBadGateway, "calendar provider unavailable")
	default:
		utils.RespondWithInternalError(w, http.StatusInternalServerError, err)
	}
}
