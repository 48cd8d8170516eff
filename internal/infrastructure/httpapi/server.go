// Package httpapi exposes the collection use case over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/usecase"
)

// Collections is the use case surface the API serves.
type Collections interface {
	StartCollection(ctx context.Context, req domain.CollectionRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	GetDebugInfo(ctx context.Context, jobID string) (usecase.DebugInfo, error)
	Quality(ctx context.Context, jobID string) (domain.QualityScore, error)
}

var _ Collections = (*usecase.Orchestrator)(nil)

const maxBodyBytes = 1 << 20

// Server maps HTTP requests onto Collections.
type Server struct {
	collections Collections
	logger      *slog.Logger
}

// New builds the API server.
func New(collections Collections, logger *slog.Logger) *Server {
	return &Server{collections: collections, logger: logger}
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.startCollection)
		r.Get("/{id}", s.getJob)
		r.Get("/{id}/debug", s.getDebugInfo)
		r.Get("/{id}/quality", s.getQuality)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startCollection(w http.ResponseWriter, r *http.Request) {
	var req domain.CollectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}

	id, err := s.collections.StartCollection(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, startResponse{JobID: id})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.collections.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) getDebugInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.collections.GetDebugInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) getQuality(w http.ResponseWriter, r *http.Request) {
	score, err := s.collections.Quality(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, score)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
	default:
		if s.logger != nil {
			s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}
