package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// PriceTier maps an appointment duration to its price. Loaded once at boot,
// immutable afterwards.
type PriceTier struct {
	DurationMinutes int64  `json:"duration_minutes" mapstructure:"duration_minutes"`
	UnitAmount      int64  `json:"unit_amount" mapstructure:"unit_amount"` // minor currency units
	Currency        string `json:"currency,omitempty" mapstructure:"currency"`
	ProductName     string `json:"product_name,omitempty" mapstructure:"product_name"`
}

type GcalConfig struct {
	CalendarID             string
	TimeZone               string
	WorkStartTime          string // "HH:MM" wall clock, local to TimeZone
	WorkEndTime            string
	WorkingDays            []string // "Mon".."Sun"
	PreparationTimeMinutes int
	BufferMinutes          int
	StepMinutes            int
	APIBaseURL             string
	AccessToken            string // opaque; real deployments inject via OAuth
}

type StripeConfig struct {
	SecretKey              string
	WebhookSecret          string
	DefaultCurrency        string
	SuccessURL             string
	CancelURL              string
	APIBaseURL             string
	ToleranceSeconds       int64
	RejectOutsideTolerance bool
	PriceTiers             []PriceTier
}

type AdhocConfig struct {
	AdminEnabled           bool
	PreparationTimeMinutes int
}

type FulfillmentConfig struct {
	SharedSecret string
	BaseURL      string // where the webhook receiver reaches the internal API
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	NotifyPhone string // default SMS recipient for booking confirmations
	APIBaseURL  string
}

type FcmConfig struct {
	ServerKey string
	Endpoint  string
}

type AppConfig struct {
	Port      string
	MongoURI  string
	MongoDB   string
	RedisAddr string

	UseGcal   bool
	UseStripe bool
	UseTwilio bool
	UseFcm    bool
	UseRedis  bool

	Gcal        GcalConfig
	Stripe      StripeConfig
	Adhoc       AdhocConfig
	Fulfillment FulfillmentConfig
	Twilio      TwilioConfig
	Fcm         FcmConfig
}

// Load reads config.yaml if present and merges BOOKABLE_* environment
// variables over it. Secrets only ever come from the environment.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetDefault("port", "8080")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.db", "bookable")
	v.SetDefault("redis.addr", "")

	v.SetDefault("use.gcal", true)
	v.SetDefault("use.stripe", true)
	v.SetDefault("use.twilio", false)
	v.SetDefault("use.fcm", false)
	v.SetDefault("use.redis", false)

	v.SetDefault("gcal.calendar_id", "primary")
	v.SetDefault("gcal.time_zone", "Europe/Zurich")
	v.SetDefault("gcal.work_start_time", "09:00")
	v.SetDefault("gcal.work_end_time", "17:00")
	v.SetDefault("gcal.working_days", []string{"Mon", "Tue", "Wed", "Thu", "Fri"})
	v.SetDefault("gcal.preparation_time_minutes", 120)
	v.SetDefault("gcal.buffer_minutes", 0)
	v.SetDefault("gcal.step_minutes", 15)
	v.SetDefault("gcal.api_base_url", "https://www.googleapis.com/calendar/v3")

	v.SetDefault("stripe.default_currency", "chf")
	v.SetDefault("stripe.success_url", "http://localhost:5173/booking/success")
	v.SetDefault("stripe.cancel_url", "http://localhost:5173/booking/cancelled")
	v.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("stripe.tolerance_seconds", 600)
	v.SetDefault("stripe.reject_outside_tolerance", true)

	v.SetDefault("adhoc.admin_enabled", true)
	v.SetDefault("adhoc.preparation_time_minutes", 5)

	v.SetDefault("fulfillment.base_url", "")

	v.SetDefault("twilio.api_base_url", "https://api.twilio.com")
	v.SetDefault("fcm.endpoint", "https://fcm.googleapis.com/fcm/send")

	_ = v.BindEnv("port", "BOOKABLE_PORT", "PORT")
	_ = v.BindEnv("mongo.uri", "BOOKABLE_MONGO_URI", "MONGO_URI")
	_ = v.BindEnv("redis.addr", "BOOKABLE_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("gcal.access_token", "BOOKABLE_GCAL_ACCESS_TOKEN", "GCAL_ACCESS_TOKEN")
	_ = v.BindEnv("stripe.secret_key", "BOOKABLE_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("stripe.webhook_secret", "BOOKABLE_STRIPE_WEBHOOK_SECRET", "STRIPE_WEBHOOK_SECRET")
	_ = v.BindEnv("fulfillment.shared_secret", "BOOKABLE_FULFILLMENT_SHARED_SECRET", "FULFILLMENT_SHARED_SECRET")
	_ = v.BindEnv("twilio.account_sid", "BOOKABLE_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "BOOKABLE_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("twilio.phone_number", "BOOKABLE_TWILIO_PHONE_NUMBER", "TWILIO_PHONE_NUMBER")
	_ = v.BindEnv("twilio.notify_phone", "BOOKABLE_TWILIO_NOTIFY_PHONE", "TWILIO_NOTIFY_PHONE")
	_ = v.BindEnv("fcm.server_key", "BOOKABLE_FCM_SERVER_KEY", "FCM_SERVER_KEY")
	_ = v.BindEnv("price.tiers", "BOOKABLE_PRICE_TIERS", "PRICE_TIERS")

	tiers, err := loadPriceTiers(v)
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		Port:      normalizePort(v.GetString("port")),
		MongoURI:  v.GetString("mongo.uri"),
		MongoDB:   v.GetString("mongo.db"),
		RedisAddr: v.GetString("redis.addr"),

		UseGcal:   v.GetBool("use.gcal"),
		UseStripe: v.GetBool("use.stripe"),
		UseTwilio: v.GetBool("use.twilio"),
		UseFcm:    v.GetBool("use.fcm"),
		UseRedis:  v.GetBool("use.redis"),

		Gcal: GcalConfig{
			CalendarID:             v.GetString("gcal.calendar_id"),
			TimeZone:               v.GetString("gcal.time_zone"),
			WorkStartTime:          v.GetString("gcal.work_start_time"),
			WorkEndTime:            v.GetString("gcal.work_end_time"),
			WorkingDays:            v.GetStringSlice("gcal.working_days"),
			PreparationTimeMinutes: v.GetInt("gcal.preparation_time_minutes"),
			BufferMinutes:          v.GetInt("gcal.buffer_minutes"),
			StepMinutes:            v.GetInt("gcal.step_minutes"),
			APIBaseURL:             v.GetString("gcal.api_base_url"),
			AccessToken:            v.GetString("gcal.access_token"),
		},
		Stripe: StripeConfig{
			SecretKey:              v.GetString("stripe.secret_key"),
			WebhookSecret:          v.GetString("stripe.webhook_secret"),
			DefaultCurrency:        v.GetString("stripe.default_currency"),
			SuccessURL:             v.GetString("stripe.success_url"),
			CancelURL:              v.GetString("stripe.cancel_url"),
			APIBaseURL:             v.GetString("stripe.api_base_url"),
			ToleranceSeconds:       v.GetInt64("stripe.tolerance_seconds"),
			RejectOutsideTolerance: v.GetBool("stripe.reject_outside_tolerance"),
			PriceTiers:             tiers,
		},
		Adhoc: AdhocConfig{
			AdminEnabled:           v.GetBool("adhoc.admin_enabled"),
			PreparationTimeMinutes: v.GetInt("adhoc.preparation_time_minutes"),
		},
		Fulfillment: FulfillmentConfig{
			SharedSecret: v.GetString("fulfillment.shared_secret"),
			BaseURL:      v.GetString("fulfillment.base_url"),
		},
		Twilio: TwilioConfig{
			AccountSID:  v.GetString("twilio.account_sid"),
			AuthToken:   v.GetString("twilio.auth_token"),
			PhoneNumber: v.GetString("twilio.phone_number"),
			NotifyPhone: v.GetString("twilio.notify_phone"),
			APIBaseURL:  v.GetString("twilio.api_base_url"),
		},
		Fcm: FcmConfig{
			ServerKey: v.GetString("fcm.server_key"),
			Endpoint:  v.GetString("fcm.endpoint"),
		},
	}

	if cfg.Fulfillment.BaseURL == "" {
		cfg.Fulfillment.BaseURL = "http://127.0.0.1" + cfg.Port
	}
	return cfg, nil
}

// loadPriceTiers reads tiers from the config file list, or from the
// PRICE_TIERS env var as a JSON array, falling back to the stock offering.
func loadPriceTiers(v *viper.Viper) ([]PriceTier, error) {
	if raw := v.GetString("price.tiers"); raw != "" && strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var tiers []PriceTier
		if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
			return nil, fmt.Errorf("parse PRICE_TIERS: %w", err)
		}
		return tiers, nil
	}
	var tiers []PriceTier
	if err := v.UnmarshalKey("stripe.price_tiers", &tiers); err == nil && len(tiers) > 0 {
		return tiers, nil
	}
	return []PriceTier{
		{DurationMinutes: 30, UnitAmount: 4500, ProductName: "Consultation 30 min"},
		{DurationMinutes: 60, UnitAmount: 8000, ProductName: "Consultation 60 min"},
		{DurationMinutes: 90, UnitAmount: 11000, ProductName: "Consultation 90 min"},
	}, nil
}

func normalizePort(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] != ':' {
		return ":" + port
	}
	return port
}
