package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/collections-go/internal/models"
)

// jobResponse adds the derived progress percentage to a job.
type jobResponse struct {
	models.Job
	Progress float64 `json:"progress"`
}

func newJobResponse(job models.Job) jobResponse {
	return jobResponse{Job: job, Progress: job.Progress()}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > maxPageSize {
		limit = maxPageSize
	}
	list, err := s.engine.List(r.Context(), limit)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	resp := make([]jobResponse, 0, len(list))
	for _, job := range list {
		resp = append(resp, newJobResponse(job))
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Job cancelled successfully"})
}

func (s *Server) handleGetThroughput(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ThroughputStats(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}
