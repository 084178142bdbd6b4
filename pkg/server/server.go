package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traceperf/traceperf/pkg/ingest"
	"github.com/traceperf/traceperf/pkg/stats"
	"github.com/traceperf/traceperf/pkg/writer"
)

// Options configures the analysis server.
type Options struct {
	Addr      string
	OutputDir string
	Workers   int
	Store     JobStore
	Writer    writer.Config
}

// Server exposes trace analysis as an HTTP job API with SSE progress.
type Server struct {
	opts   Options
	store  JobStore
	broker *Broker
	mux    *http.ServeMux
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Server{
		opts:   opts,
		store:  store,
		broker: NewBroker(),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /api/jobs/{id}/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/jobs/{id}/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// ListenAndServe blocks serving the job API until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type analyzeRequest struct {
	TracePath string `json:"trace_path"`
	OutputDir string `json:"output_dir,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.TracePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("trace_path is required"))
		return
	}

	job := &Job{
		ID:        uuid.NewString(),
		TracePath: req.TracePath,
		OutputDir: req.OutputDir,
		Status:    StatusPending,
		Created:   time.Now().UTC(),
		Updated:   time.Now().UTC(),
	}
	if job.OutputDir == "" {
		job.OutputDir = filepath.Join(s.opts.OutputDir, job.ID)
	}
	if err := s.store.Put(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Snapshot before the goroutine starts mutating the job.
	accepted := *job
	go s.runJob(job)

	writeJSON(w, http.StatusAccepted, accepted)
}

// runJob executes one analysis end to end, streaming progress as it goes.
// The job is mutated under a mutex and only value snapshots leave this
// function: progress callbacks arrive concurrently from parse workers,
// and subscribers marshal events at their own pace.
func (s *Server) runJob(job *Job) {
	ctx := context.Background()

	var mu sync.Mutex
	update := func(mutate func(*Job)) Job {
		mu.Lock()
		mutate(job)
		job.Updated = time.Now().UTC()
		cp := *job
		mu.Unlock()
		if err := s.store.Put(ctx, &cp); err != nil {
			log.Printf("server: persist job %s: %v", job.ID, err)
		}
		return cp
	}

	s.broker.Publish(job.ID, Event{Type: "status", Data: update(func(j *Job) { j.Status = StatusRunning })})

	set, err := ingest.Analyze(ctx, job.TracePath, ingest.Options{
		Workers: s.opts.Workers,
		OnProgress: func(stage string, percent float64, records int64) {
			p := Progress{Stage: stage, Percent: percent, Records: records}
			update(func(j *Job) { j.Progress = p })
			s.broker.Publish(job.ID, Event{Type: "progress", Data: p})
		},
	})
	if err != nil {
		failed := update(func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		s.broker.Publish(job.ID, Event{Type: "error", Data: failed})
		return
	}

	if err := writer.WriteSet(ctx, job.OutputDir, set, s.opts.Writer); err != nil {
		failed := update(func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		s.broker.Publish(job.ID, Event{Type: "error", Data: failed})
		return
	}

	done := update(func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = Progress{Stage: ingest.StageReconstruct, Percent: 100, Records: set.EventsParsed}
	})
	s.broker.Publish(job.ID, Event{Type: "complete", Data: done})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Get(r.Context(), id); errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.broker.ServeSSE(w, r, id)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job.Status != StatusCompleted {
		writeError(w, http.StatusConflict, fmt.Errorf("job %s is %s", job.ID, job.Status))
		return
	}
	set, err := writer.ReadSet(r.Context(), job.OutputDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize(set))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
