// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrsandeep/collections-go/internal/core"
	"github.com/vrsandeep/collections-go/internal/jobs"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app    *core.App
	store  *store.Store
	engine *jobs.Engine
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:    app,
		store:  app.Store(),
		engine: app.Engine(),
	}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Engine returns the job engine behind the API.
func (s *Server) Engine() *jobs.Engine {
	return s.engine
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(s.ClientVersionMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", s.handleGetVersion)
	r.Handle("/metrics", promhttp.HandlerFor(s.app.Metrics(), promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Collections and records
		r.Get("/api/collections", s.handleListCollections)
		r.Get("/api/collections/{collectionID}", s.handleGetCollection)
		r.Get("/api/records", s.handleListRecords)

		// Bulk membership jobs
		r.Post("/api/collections/{collectionID}/add", s.handleAddToCollection)
		r.Post("/api/collections/{collectionID}/dry-run", s.handleDryRun)
		r.Post("/api/collections/{collectionID}/undo", s.handleUndo)

		r.Get("/api/jobs", s.handleListJobs)
		r.Get("/api/jobs/{jobID}", s.handleGetJob)
		r.Post("/api/jobs/{jobID}/cancel", s.handleCancelJob)
		r.Get("/api/jobs/{jobID}/activity", s.handleGetJobActivity)

		// Activity feed and SLO metrics
		r.Get("/api/activity", s.handleListActivity)
		r.Get("/api/activity/stats", s.handleActivityStats)
		r.Get("/api/metrics/throughput", s.handleGetThroughput)
	})

	// Streams stay open for the life of a job, so they sit outside the
	// request timeout.
	r.Get("/api/jobs/{jobID}/stream", s.handleJobStream)
	r.Get("/ws/jobs/{jobID}", s.handleJobWebsocket)
	r.Get("/ws/admin/progress", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}
