package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DhruvWebDev/Deploify/internal/coordinator"
	"github.com/DhruvWebDev/Deploify/internal/repository"
)

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps coordinator and repository errors onto HTTP statuses:
// validation failures are the caller's fault, missing records are 404,
// everything else is opaque.
func errorStatus(err error) int {
	var verr *coordinator.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err per errorStatus, hiding internal error text
// behind the fallback message.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	status := errorStatus(err)
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeError(w, status, msg)
}
