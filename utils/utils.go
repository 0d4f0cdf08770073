package utils

import (
	"net/http"

	"bookable/globals"
)

// RedactPhone keeps the last two digits of a phone number for logs.
func RedactPhone(phone string) string {
	if len(phone) <= 2 {
		return "***"
	}
	return "***" + phone[len(phone)-2:]
}

// GetUserIDFromRequest returns the authenticated user id placed in the
// request context by middleware.Authenticate, or "" when unauthenticated.
func GetUserIDFromRequest(r *http.Request) string {
	ctx := r.Context()
	requestingUserID, ok := ctx.Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}
