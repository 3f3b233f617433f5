// Package api exposes the HTTP surface: task submission, status polling,
// result retrieval, export download, and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/export"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// TaskRunner drives a created task to a terminal state.
type TaskRunner interface {
	Run(ctx context.Context, task scrape.Task) error
}

// Config controls request handling.
type Config struct {
	// RequestTimeout bounds synchronous handlers (not the task goroutines).
	RequestTimeout time.Duration
	// MaxPagesDefault applies when a submission omits max_pages.
	MaxPagesDefault int
	// BaseContext is the parent context for task goroutines, so tasks outlive
	// the submitting request.
	BaseContext context.Context
}

// Server wires the HTTP routes to the task store and runner.
type Server struct {
	cfg      Config
	store    scrape.TaskStore
	runner   TaskRunner
	idGen    scrape.IDGenerator
	clock    scrape.Clock
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New constructs a Server.
func New(
	cfg Config,
	store scrape.TaskStore,
	runner TaskRunner,
	idGen scrape.IDGenerator,
	clock scrape.Clock,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxPagesDefault < 1 {
		cfg.MaxPagesDefault = 3
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		idGen:    idGen,
		clock:    clock,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/status", s.handleTaskStatus)
			r.Get("/results", s.handleTaskResults)
			r.Get("/export", s.handleTaskExport)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	Category     string   `json:"category"`
	ListingTypes []string `json:"listing_types"`
	MaxPages     int      `json:"max_pages"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Category == "" {
		s.writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if len(req.ListingTypes) == 0 {
		s.writeError(w, http.StatusBadRequest, "listing_types must not be empty")
		return
	}
	listingTypes := make([]scrape.ListingType, 0, len(req.ListingTypes))
	for _, raw := range req.ListingTypes {
		lt, err := scrape.ParseListingType(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		listingTypes = append(listingTypes, lt)
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = s.cfg.MaxPagesDefault
	}
	if maxPages < 1 {
		s.writeError(w, http.StatusBadRequest, "max_pages must be >= 1")
		return
	}

	taskID, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("task id generation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not allocate task id")
		return
	}

	task := scrape.Task{
		ID:           taskID,
		Category:     req.Category,
		ListingTypes: listingTypes,
		MaxPages:     maxPages,
		Status:       scrape.TaskStatusPending,
		Results:      []scrape.ResultRecord{},
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.Create(r.Context(), task); err != nil {
		s.logger.Error("task create failed", zap.String("task_id", taskID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not create task")
		return
	}

	go func() {
		if err := s.runner.Run(s.cfg.BaseContext, task); err != nil {
			s.logger.Warn("task run ended with error", zap.String("task_id", taskID), zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, createTaskResponse{TaskID: taskID})
}

type taskStatusResponse struct {
	TaskID       string     `json:"task_id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	TotalPages   int        `json:"total_pages"`
	ResultsCount int        `json:"results_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID:       task.ID,
		Status:       string(task.Status),
		Progress:     task.Progress,
		TotalPages:   task.TotalPages,
		ResultsCount: len(task.Results),
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	})
}

type taskResultsResponse struct {
	TaskID       string                `json:"task_id"`
	Category     string                `json:"category"`
	ListingTypes []scrape.ListingType  `json:"listing_types"`
	Results      []scrape.ResultRecord `json:"results"`
	TotalResults int                   `json:"total_results"`
}

func (s *Server) handleTaskResults(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	if task.Status != scrape.TaskStatusCompleted {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("task is %s, results are available once it completes", task.Status))
		return
	}
	s.writeJSON(w, http.StatusOK, taskResultsResponse{
		TaskID:       task.ID,
		Category:     task.Category,
		ListingTypes: task.ListingTypes,
		Results:      task.Results,
		TotalResults: len(task.Results),
	})
}

func (s *Server) handleTaskExport(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	if task.Status != scrape.TaskStatusCompleted {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("task is %s, export is available once it completes", task.Status))
		return
	}
	body := export.Render(task.Results)
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(task.Category, task.ID)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Warn("export write failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// lookupTask fetches the task from the path parameter, writing a 404 for
// unknown IDs. The bool reports whether the handler should continue.
func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (scrape.Task, bool) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, scrape.ErrTaskNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
		} else {
			s.logger.Error("task lookup failed", zap.String("task_id", taskID), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "task lookup failed")
		}
		return scrape.Task{}, false
	}
	return task, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
