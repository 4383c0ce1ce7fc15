// Helpers for sending JSON bodies and mapping domain errors onto status codes.

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vrsandeep/collections-go/internal/jobs"
	"github.com/vrsandeep/collections-go/internal/store"
)

// RespondWithJSON writes payload as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling response: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// RespondWithError writes {"error": message}.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithEngineError maps engine and store errors onto HTTP statuses.
// Anything unrecognised is logged and hidden behind a 500.
func respondWithEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrValidation):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, store.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrConflict):
		RespondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
