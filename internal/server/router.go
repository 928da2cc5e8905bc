package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/notify"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// Rebalancer computes and optionally applies a rebalance.
type Rebalancer interface {
	Run(ctx context.Context, dryRun bool) (*engine.Plan, error)
}

// ArchiveRunner starts archive classification runs.
type ArchiveRunner interface {
	Start(ctx context.Context, req engine.ClassifyRequest) (*engine.Job, error)
	StartRescan(ctx context.Context, req engine.RescanRequest) (*engine.Job, error)
}

// VisionRunner starts vision analysis runs.
type VisionRunner interface {
	Start(ctx context.Context, req engine.VisionRequest) (*engine.Job, error)
}

// Store is the storage the handlers read directly.
type Store interface {
	service.ProductStore
	service.AssignmentStore
}

// Deps are the collaborators behind the routes. Vision and Publishers are
// optional; without Vision the analyze route is not mounted.
type Deps struct {
	Store      Store
	Rebalancer Rebalancer
	Archive    ArchiveRunner
	Vision     VisionRunner
	Logger     *slog.Logger
	Publishers []notify.Publisher
}

type handler struct {
	store      Store
	rebalancer Rebalancer
	archive    ArchiveRunner
	vision     VisionRunner
	logger     *slog.Logger
	publishers []notify.Publisher
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		store:      deps.Store,
		rebalancer: deps.Rebalancer,
		archive:    deps.Archive,
		vision:     deps.Vision,
		logger:     logger,
		publishers: deps.Publishers,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.healthz)
	r.Post("/rebalance", h.rebalance)
	r.Route("/archive", func(ar chi.Router) {
		ar.Post("/classify", h.classifyArchive)
		ar.Post("/rescan", h.rescanArchive)
		ar.Get("/counts", h.archiveCounts)
	})
	if h.vision != nil {
		r.Post("/vision/analyze", h.analyzeVision)
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"elapsed", time.Since(start))
		})
	}
}

// detach keeps request values but drops its cancellation, so a run outlives
// a dropped connection.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
