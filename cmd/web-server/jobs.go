package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/internal/db"
	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// Batch job states.
const (
	jobRunning  = "running"
	jobDone     = "done"
	jobFailed   = "failed"
	jobCanceled = "canceled"
)

// batchJob is the live view of a batch started through the API.
type batchJob struct {
	ID       uuid.UUID         `json:"id"`
	Strategy guidance.Strategy `json:"strategy"`
	Status   string            `json:"status"`
	Done     int               `json:"done"`
	Total    int               `json:"total"`
	Started  time.Time         `json:"started"`
	Error    string            `json:"error,omitempty"`
	Summary  *batch.Summary    `json:"summary,omitempty"`
}

// jobTracker holds in-flight and recently finished batches.
type jobTracker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*batchJob
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[uuid.UUID]*batchJob)}
}

func (t *jobTracker) start(id uuid.UUID, strategy guidance.Strategy, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &batchJob{ID: id, Strategy: strategy, Status: jobRunning, Total: total, Started: time.Now()}
}

func (t *jobTracker) progress(p batch.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[p.BatchID]; ok {
		j.Done = p.Done
	}
}

func (t *jobTracker) finish(id uuid.UUID, report *batch.Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	j.Status = jobDone
	if report != nil {
		j.Done = len(report.Runs)
		summary := report.Summary
		j.Summary = &summary
	}
	switch {
	case errors.Is(err, context.Canceled):
		j.Status = jobCanceled
	case err != nil:
		j.Status = jobFailed
		j.Error = err.Error()
	}
}

// get returns a copy of the job.
func (t *jobTracker) get(id uuid.UUID) (batchJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return batchJob{}, false
	}
	return *j, true
}

func (t *jobTracker) running() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, j := range t.jobs {
		if j.Status == jobRunning {
			n++
		}
	}
	return n
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sc, strategy, err := s.resolve(r.Context(), req)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	runs := req.Runs
	if runs <= 0 {
		runs = s.cfg.Batch.Runs
	}
	if runs > s.cfg.Server.MaxBatchRuns {
		respondError(w, http.StatusBadRequest, "Too many runs requested")
		return
	}

	id := uuid.New()
	runner := batch.NewRunner(s.cfg.Batch)
	runner.ID = id
	runner.Logger = s.logger
	// record stores every run as an engagement linked to the batch
	runner.KeepResults = req.Record
	runner.OnProgress = s.jobs.progress

	s.jobs.start(id, strategy, runs)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report, err := runner.Run(s.ctx, sc, strategy, runs)
		if report != nil {
			if saveErr := s.stores.Batches.Save(s.ctx, report); saveErr != nil {
				s.logger.Printf("Failed to store batch %s: %v", id, saveErr)
			}
		}
		s.jobs.finish(id, report, err)
	}()

	job, _ := s.jobs.get(id)
	respondJSON(w, http.StatusAccepted, job)
}

// handleGetBatch prefers the live job and falls back to the stored report.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid batch ID")
		return
	}
	if job, ok := s.jobs.get(id); ok && job.Status == jobRunning {
		respondJSON(w, http.StatusOK, job)
		return
	}

	rec, err := s.stores.Batches.Get(r.Context(), id)
	if errors.Is(err, db.ErrBatchNotFound) {
		if job, ok := s.jobs.get(id); ok {
			respondJSON(w, http.StatusOK, job)
			return
		}
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Printf("Error loading batch %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load batch")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
