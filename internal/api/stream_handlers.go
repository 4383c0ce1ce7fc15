package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/websocket"
)

// handleJobStream serves a job's progress as server-sent events: one
// "data:" event per snapshot, a comment line for keepalives, and end of
// stream after the terminal snapshot. A client hanging up never cancels the
// job.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sub, err := s.engine.Subscribe(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			if u.Type == models.UpdateKeepalive {
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
				continue
			}
			data, err := json.Marshal(u)
			if err != nil {
				log.Printf("Error marshalling progress update: %v", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleJobWebsocket(w http.ResponseWriter, r *http.Request) {
	sub, err := s.engine.Subscribe(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	websocket.ServeJobStream(w, r, sub)
}
