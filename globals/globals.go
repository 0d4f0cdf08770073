package globals

import (
	"net/http"
	"os"
	"time"
)

var (
	JwtSecret = []byte(getenv("JWT_SECRET", "dev_secret_change_me"))
)

// HTTPClient is the single process-wide client used for every outbound
// call (payment provider, calendar, SMS, push). Per-request clients are a bug.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// Context keys
type ContextKey string

const UserIDKey ContextKey = "userId"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
