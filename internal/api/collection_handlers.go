package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/collections-go/internal/models"
)

// IdempotencyKeyHeader lets clients retry a submit without starting a
// second job. The idempotency_key query parameter is accepted too.
const IdempotencyKeyHeader = "Idempotency-Key"

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.store.ListCollections(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	if collections == nil {
		collections = []*models.Collection{}
	}
	RespondWithJSON(w, http.StatusOK, collections)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	offset, limit := getPageParams(r)
	page, err := s.store.GetCollectionPage(r.Context(), chi.URLParam(r, "collectionID"), offset, limit)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, page)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	offset, limit := getPageParams(r)
	companies, total, err := s.store.ListCompanies(r.Context(), offset, limit)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"companies": companies,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func decodeBulkRequest(w http.ResponseWriter, r *http.Request) (models.BulkAddRequest, bool) {
	var req models.BulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return req, false
	}
	return req, true
}

func (s *Server) handleAddToCollection(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulkRequest(w, r)
	if !ok {
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		key = r.URL.Query().Get("idempotency_key")
	}

	acc, err := s.engine.Submit(r.Context(), chi.URLParam(r, "collectionID"), req, key)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	status := http.StatusAccepted
	if acc.Existing {
		status = http.StatusOK
	}
	RespondWithJSON(w, status, models.BulkAddResponse{
		JobID:         acc.Job.ID,
		Message:       acc.Message,
		EstimatedTime: acc.EstimatedTime,
	})
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulkRequest(w, r)
	if !ok {
		return
	}
	est, err := s.engine.DryRun(r.Context(), chi.URLParam(r, "collectionID"), req)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, est)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.Undo(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Last operation undone successfully",
		"event":   ev,
	})
}
