package api

import (
	"net/http"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// BackfillRequest starts a backfill job. A zero limit uses the configured limit.
type BackfillRequest struct {
	Limit int `json:"limit"`
}

// ReviewRequest approves or rejects a memory.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

// ActiveRequest activates or deactivates a memory.
type ActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var in models.SourceInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	src, err := s.app.Sources.Register(r.Context(), s.scope(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := s.app.Sources.List(r.Context(), s.scope(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if srcs == nil {
		srcs = []models.KnowledgeSource{}
	}
	writeJSON(w, http.StatusOK, srcs)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.app.Sources.Get(r.Context(), s.scope(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// handleIngest checks the source exists in scope, then queues the ingestion.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	scope := s.scope(r)
	src, err := s.app.Sources.Get(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job := s.app.SubmitIngest(scope, src.ID)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	scope := s.scope(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	job := s.app.SubmitBackfill(scope, req.Limit)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var in models.MemoryInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	mem, err := s.app.Memories.Create(r.Context(), s.scope(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	mem, err := s.app.Memories.Get(r.Context(), s.scope(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var upd models.MemoryUpdate
	if err := decode(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	mem, err := s.app.Memories.Update(r.Context(), s.scope(r), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleReviewMemory(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Memories.Review(r.Context(), s.scope(r), r.PathValue("id"), req.Approve); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMemoryActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Memories.SetActive(r.Context(), s.scope(r), r.PathValue("id"), req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshots(s.app.Jobs.ListJobs()))
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshots(s.app.Jobs.DeadLetters()))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.app.Jobs.GetJob(r.PathValue("id"))
	if job == nil {
		s.writeError(w, r, service.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Jobs.Requeue(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Metrics.Snapshot())
}

func snapshots(jobs []*service.Job) []service.JobView {
	out := make([]service.JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}
