// Package emulator provides a local stand-in for the remote job backend.
//
// It implements the same submit/describe REST surface the HTTP client speaks,
// with an in-memory job table. Jobs advance one lifecycle phase per describe
// poll (SUBMITTED, PENDING, RUNNABLE, STARTING, RUNNING) and park at RUNNING
// until a terminal status is forced through the status hook, or auto-succeed
// after a configurable number of running polls. Used by cmd/batchd for local
// development and by the integration tests.
package emulator

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/batch-mast/orchestrator/internal/batch"
)

// Config contains emulator settings.
type Config struct {
	CORSOrigins []string
	// AutoSucceedAfter is the number of describe polls a job spends RUNNING
	// before it succeeds on its own. Zero parks jobs at RUNNING until a
	// terminal status is forced.
	AutoSucceedAfter int
}

type job struct {
	ID           string
	Name         string
	Queue        string
	Definition   string
	Command      []string
	Status       batch.Status
	runningPolls int
}

// Server holds the in-memory job table.
type Server struct {
	cfg  Config
	mu   sync.Mutex
	jobs map[string]*job
}

// New creates an emulator server.
func New(cfg Config) *Server {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, jobs: make(map[string]*job)}
}

// Router returns the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Post("/v1/submitjob", s.submitHandler)
	r.Get("/v1/describejobs", s.describeHandler)
	r.Put("/v1/jobs/{job_id}/status", s.forceStatusHandler)

	return r
}

type submitRequest struct {
	JobName            string `json:"jobName"`
	JobQueue           string `json:"jobQueue"`
	JobDefinition      string `json:"jobDefinition"`
	ContainerOverrides struct {
		Command []string `json:"command"`
	} `json:"containerOverrides"`
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.JobName == "" || req.JobQueue == "" || req.JobDefinition == "" {
		http.Error(w, "jobName, jobQueue and jobDefinition are required", http.StatusBadRequest)
		return
	}

	j := &job{
		ID:         uuid.NewString(),
		Name:       req.JobName,
		Queue:      req.JobQueue,
		Definition: req.JobDefinition,
		Command:    req.ContainerOverrides.Command,
		Status:     batch.StatusSubmitted,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	writeJSON(w, map[string]string{"jobId": j.ID, "jobName": j.Name})
}

type describedJob struct {
	JobID   string       `json:"jobId"`
	JobName string       `json:"jobName"`
	Status  batch.Status `json:"status"`
}

func (s *Server) describeHandler(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["jobs"]
	if len(ids) == 0 {
		http.Error(w, "jobs query parameter is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	out := make([]describedJob, 0, len(ids))
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok {
			continue // unknown ids are omitted, matching the real backend
		}
		s.advance(j)
		out = append(out, describedJob{JobID: j.ID, JobName: j.Name, Status: j.Status})
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"jobs": out})
}

// advance moves a job one lifecycle phase per describe poll.
// Caller holds s.mu.
func (s *Server) advance(j *job) {
	switch j.Status {
	case batch.StatusSubmitted:
		j.Status = batch.StatusPending
	case batch.StatusPending:
		j.Status = batch.StatusRunnable
	case batch.StatusRunnable:
		j.Status = batch.StatusStarting
	case batch.StatusStarting:
		j.Status = batch.StatusRunning
	case batch.StatusRunning:
		if s.cfg.AutoSucceedAfter > 0 {
			j.runningPolls++
			if j.runningPolls >= s.cfg.AutoSucceedAfter {
				j.Status = batch.StatusSucceeded
			}
		}
	}
}

func (s *Server) forceStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	var req struct {
		Status batch.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Status.Known() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		j.Status = req.Status
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"jobId": id, "status": string(req.Status)})
}

// Job returns a snapshot of a job's stored fields, for tests and inspection.
func (s *Server) Job(id string) (name string, command []string, status batch.Status, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", nil, "", false
	}
	return j.Name, append([]string(nil), j.Command...), j.Status, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
