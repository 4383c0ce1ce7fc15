package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/collections-go/internal/models"
)

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	offset, limit := getPageParams(r)
	filter := models.EventFilter{
		Type:   models.EventType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}
	s.respondWithEvents(w, r, filter)
}

func (s *Server) handleGetJobActivity(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.engine.Status(r.Context(), jobID); err != nil {
		respondWithEngineError(w, err)
		return
	}
	offset, limit := getPageParams(r)
	s.respondWithEvents(w, r, models.EventFilter{JobID: jobID, Limit: limit, Offset: offset})
}

func (s *Server) respondWithEvents(w http.ResponseWriter, r *http.Request, filter models.EventFilter) {
	events, total, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleActivityStats counts events per type and day over the last
// ?days= days (1-30, default 7).
func (s *Server) handleActivityStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 30 {
			RespondWithError(w, http.StatusBadRequest, "days must be between 1 and 30")
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := s.store.EventStats(r.Context(), since)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"period_days": days,
		"stats":       stats,
	})
}
