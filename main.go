package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"bookable/adhoc"
	"bookable/calendar"
	"bookable/config"
	"bookable/db"
	"bookable/devices"
	"bookable/fulfillment"
	"bookable/gcal"
	"bookable/notify"
	"bookable/pricing"
	"bookable/ratelim"
	"bookable/rdx"
	"bookable/routes"
	"bookable/stripe"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// XSS, content sniffing, framing
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		// Referrer and permissions
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// Prevent caching
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s from %s – %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// pickCalendar installs the configured calendar variant: the real provider
// when enabled, an in-memory one otherwise (local development, tests).
func pickCalendar(cfg *config.AppConfig) calendar.Service {
	if cfg.UseGcal && cfg.Gcal.AccessToken != "" {
		return calendar.NewGoogleCalendar(cfg.Gcal.APIBaseURL, cfg.Gcal.AccessToken)
	}
	log.Println("calendar: provider disabled or no token, using in-memory calendar")
	return calendar.NewMemoryCalendar()
}

func pickDeviceRepo(ctx context.Context, cfg *config.AppConfig) devices.Repository {
	if cfg.MongoURI != "" {
		if err := db.Init(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			log.Printf("mongo unavailable (%v), using in-memory device registry", err)
			return devices.NewMemoryRepository()
		}
		return devices.NewMongoRepository()
	}
	return devices.NewMemoryRepository()
}

func pickSenders(cfg *config.AppConfig, repo devices.Repository) (notify.SMSSender, notify.PushSender) {
	var sms notify.SMSSender = notify.NoopSMSSender{}
	if cfg.UseTwilio && cfg.Twilio.AccountSID != "" {
		sms = notify.NewTwilioSender(cfg.Twilio)
	}
	var push notify.PushSender = notify.NoopPushSender{}
	if cfg.UseFcm && cfg.Fcm.ServerKey != "" {
		push = notify.NewFcmSender(cfg.Fcm, repo)
	}
	return sms, push
}

func setupRouter(cfg *config.AppConfig, cal calendar.Service, repo devices.Repository,
	sms notify.SMSSender, push notify.PushSender, rateLimiter *ratelim.RateLimiter) *httprouter.Router {

	tiers := pricing.NewCatalog(cfg.Stripe.PriceTiers, cfg.Stripe.DefaultCurrency)
	payments := stripe.NewClient(cfg.Stripe)

	router := httprouter.New()
	router.GET("/health", Index)

	routes.AddGcalRoutes(router, gcal.NewHandler(cal, cfg, tiers), rateLimiter)
	routes.AddPaymentRoutes(router, stripe.NewHandler(cfg, payments, tiers), stripe.NewWebhookHandler(cfg), rateLimiter)
	routes.AddAdhocRoutes(router, adhoc.NewHandler(cal, cfg, tiers, payments), rateLimiter)
	routes.AddFulfillmentRoutes(router,
		fulfillment.NewHandler(fulfillment.NewExecutor(cal, cfg, sms)),
		cfg.Fulfillment.SharedSecret)
	routes.AddNotifyRoutes(router, notify.NewHandler(push), rateLimiter)
	routes.AddDeviceRoutes(router, devices.NewHandler(repo), rateLimiter)

	return router
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()

	if cfg.UseRedis {
		if err := rdx.Init(cfg.RedisAddr); err != nil {
			log.Fatalf("❌ Redis error: %v", err)
		}
	}

	repo := pickDeviceRepo(bootCtx, cfg)
	cal := pickCalendar(cfg)
	sms, push := pickSenders(cfg, repo)

	rateLimiter := ratelim.NewRateLimiter()
	router := setupRouter(cfg, cal, repo, sms, push, rateLimiter)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Stripe-Signature"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	// create HTTP server
	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(ctx); err != nil {
			log.Printf("DB close: %v", err)
		}
	})

	// start server
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// initiate graceful shutdown
	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
