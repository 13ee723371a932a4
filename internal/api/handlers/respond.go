package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// parseDateParam accepts YYYY-MM-DD or the literal "today" (UTC)
func parseDateParam(raw string) (time.Time, error) {
	if raw == "today" {
		return contracts.NormalizeDate(time.Now().UTC()), nil
	}
	return ingest.ParseDate(raw)
}
