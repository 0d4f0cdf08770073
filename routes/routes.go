package routes

import (
	"github.com/julienschmidt/httprouter"

	"bookable/adhoc"
	"bookable/devices"
	"bookable/fulfillment"
	"bookable/gcal"
	"bookable/middleware"
	"bookable/notify"
	"bookable/ratelim"
	"bookable/stripe"
)

// AddGcalRoutes wires availability quoting and booking administration.
func AddGcalRoutes(router *httprouter.Router, h *gcal.Handler, rl *ratelim.RateLimiter) {
	router.GET("/api/gcal/availability", rl.Limit(h.GetAvailability))
	router.POST("/api/gcal/book", rl.Limit(middleware.Authenticate(h.BookSlot)))

	router.DELETE("/api/admin/gcal/delete/:event_id", middleware.Authenticate(h.DeleteEvent))
	router.PATCH("/api/admin/mark_cancelled/:event_id", middleware.Authenticate(h.MarkCancelled))
	router.GET("/api/admin/bookings", middleware.Authenticate(h.ListBookings))
}

// AddPaymentRoutes wires checkout creation and the provider webhook.
func AddPaymentRoutes(router *httprouter.Router, h *stripe.Handler, wh *stripe.WebhookHandler, rl *ratelim.RateLimiter) {
	router.POST("/api/payment/create-checkout", rl.Limit(h.CreateCheckout))
	router.GET("/api/payment/session/:session_id", middleware.Authenticate(h.GetSession))

	// no rate limit: the provider retries aggressively and is already
	// gated by signature verification
	router.POST("/api/payment/webhook", wh.HandleWebhook)
}

func AddAdhocRoutes(router *httprouter.Router, h *adhoc.Handler, rl *ratelim.RateLimiter) {
	router.POST("/api/adhoc/initiate-session", rl.Limit(h.InitiateSession))
}

// AddFulfillmentRoutes wires the internal API behind the shared secret.
func AddFulfillmentRoutes(router *httprouter.Router, h *fulfillment.Handler, sharedSecret string) {
	router.POST("/api/fulfill/gcal-booking",
		fulfillment.RequireSharedSecret(sharedSecret, h.FulfillGcalBooking))
	router.POST("/api/fulfill/adhoc-gcal-twilio",
		fulfillment.RequireSharedSecret(sharedSecret, h.FulfillAdhocSession))
}

func AddNotifyRoutes(router *httprouter.Router, h *notify.Handler, rl *ratelim.RateLimiter) {
	router.POST("/api/notify/send", rl.Limit(middleware.Authenticate(h.SendPush)))
}

func AddDeviceRoutes(router *httprouter.Router, h *devices.Handler, rl *ratelim.RateLimiter) {
	router.POST("/api/devices/register", rl.Limit(h.Register))
	router.DELETE("/api/devices/:userid/:deviceid", middleware.Authenticate(h.Unregister))
}
