package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
)

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, map[string]string{"error": msg})
}

// RespondWithInternalError logs err with a correlation id and returns the id
// to the caller instead of the error detail.
func RespondWithInternalError(w http.ResponseWriter, code int, err error) {
	correlationID := uuid.NewString()
	log.Printf("internal error [%s]: %v", correlationID, err)
	RespondWithJSON(w, code, map[string]string{
		"error":          "internal error",
		"correlation_id": correlationID,
	})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

type M map[string]interface{}
