package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ssuji15/scriptd/internal/scheduler"
	jobservice "github.com/ssuji15/scriptd/internal/service/job_service"
	"github.com/ssuji15/scriptd/internal/service/logger"
	lm "github.com/ssuji15/scriptd/internal/web/middleware"
	"github.com/ssuji15/scriptd/model"
)

const (
	maxScriptBytes   = 1 << 20
	admissionQueue   = 256
	admissionWorkers = 16
)

// JobService is what the HTTP layer needs from the orchestrator.
type JobService interface {
	SubmitJob(ctx context.Context, script string) (string, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	GetStatus(ctx context.Context, id string) (model.Status, error)
	ArtifactPath(ctx context.Context, id string, a model.Artifact) (string, error)
}

type Server struct {
	router     chi.Router
	jobService JobService
	limiter    *lm.Limiter
}

type submitResponse struct {
	ID string `json:"id"`
}

func NewServer(js JobService) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		jobService: js,
		limiter:    lm.NewLimiter(admissionQueue, admissionWorkers),
	}
	s.routes()
	return s
}

// Router is the instrumented handler to serve.
func (s *Server) Router() http.Handler {
	return otelhttp.NewHandler(s.router, "scriptd")
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.With(s.limiter.Limit).Post("/script", s.handleSubmit)
	r.Get("/job", s.handleListJobs)
	r.Route("/job/{id}", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/data", s.artifactHandler(model.ArtifactData, "application/json"))
		r.Get("/output", s.artifactHandler(model.ArtifactStdOutput, "text/plain; charset=utf-8"))
		r.Get("/error", s.artifactHandler(model.ArtifactError, "text/plain; charset=utf-8"))
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		http.Error(w, "unable to read script: "+err.Error(), http.StatusBadRequest)
		return
	}
	script := string(body)
	if strings.TrimSpace(script) == "" {
		http.Error(w, "script cannot be empty", http.StatusBadRequest)
		return
	}

	ctx := logger.WithContext(r.Context(), logger.Log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger())
	id, err := s.jobService.SubmitJob(ctx, script)
	if err != nil {
		writeError(w, r, "failed to submit job", err)
		return
	}
	writeJSON(w, submitResponse{ID: id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobService.ListJobs(r.Context())
	if err != nil {
		writeError(w, r, "failed to list jobs", err)
		return
	}
	writeJSON(w, jobs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobService.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "failed to get status", err)
		return
	}
	writeJSON(w, st)
}

// artifactHandler streams an artifact from disk without loading it.
func (s *Server) artifactHandler(a model.Artifact, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.jobService.ArtifactPath(r.Context(), chi.URLParam(r, "id"), a)
		if err != nil {
			writeError(w, r, "failed to get "+string(a), err)
			return
		}
		f, err := os.Open(p)
		if err != nil {
			// replaced or removed between lookup and open
			writeError(w, r, "failed to open "+string(a), err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			writeError(w, r, "failed to stat "+string(a), err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeContent(w, r, filepath.Base(p), info.ModTime(), f)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("unable to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobservice.ErrJobNotFound), errors.Is(err, jobservice.ErrArtifactNotFound), errors.Is(err, os.ErrNotExist):
		code = http.StatusNotFound
	case errors.Is(err, scheduler.ErrPoolClosed):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	}
	http.Error(w, msg+": "+err.Error(), code)
}
