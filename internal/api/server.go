// Package api exposes the discovery pipeline over HTTP: scout and
// backfill control, opportunity search and matching, profile and
// cluster management, pursuit tracking, exports, and spending trends.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/backfill"
	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/scout"
	"github.com/sells-group/govscout/internal/semantic"
	"github.com/sells-group/govscout/internal/spending"
	"github.com/sells-group/govscout/internal/store"
)

// Deps carries everything the server needs. Store and Engine are
// required; the rest may be nil, in which case the corresponding
// endpoints report 503.
type Deps struct {
	Store          store.Store
	Engine         *matcher.Engine
	Scout          *scout.Coordinator
	Backfill       *backfill.Coordinator
	Scorer         *semantic.Scorer
	Generator      *semantic.Generator
	Spending       *spending.Client
	AllowedOrigins []string
}

// Server routes HTTP requests to the pipeline coordinators and the store.
type Server struct {
	store     store.Store
	engine    *matcher.Engine
	scout     *scout.Coordinator
	backfill  *backfill.Coordinator
	scorer    *semantic.Scorer
	generator *semantic.Generator
	spending  *spending.Client
	router    *chi.Mux
	log       *zap.Logger
}

func New(deps Deps) *Server {
	s := &Server{
		store:     deps.Store,
		engine:    deps.Engine,
		scout:     deps.Scout,
		backfill:  deps.Backfill,
		scorer:    deps.Scorer,
		generator: deps.Generator,
		spending:  deps.Spending,
		log:       zap.L().With(zap.String("component", "api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scout/run", s.handleScoutRun)
		r.Get("/scout/status", s.handleScoutStatus)

		r.Post("/backfill", s.handleBackfillStart)
		r.Get("/backfill/status", s.handleBackfillStatus)

		r.Get("/opportunities", s.handleListOpportunities)
		r.Get("/opportunities/matches", s.handleMatches)
		r.Get("/opportunities/{id}", s.handleGetOpportunity)
		r.Delete("/opportunities/{id}", s.handleDeleteOpportunity)
		r.Post("/opportunities/{id}/proposal", s.handleProposal)
		r.Get("/opportunities/{id}/analysis", s.handleAnalysis)

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handlePutProfile)

		r.Get("/clusters", s.handleListClusters)
		r.Post("/clusters", s.handleCreateCluster)
		r.Get("/clusters/{id}", s.handleGetCluster)
		r.Put("/clusters/{id}", s.handleUpdateCluster)
		r.Delete("/clusters/{id}", s.handleDeleteCluster)

		r.Get("/pursuits", s.handleListPursuits)
		r.Post("/pursuits", s.handleCreatePursuit)
		r.Get("/pursuits/{id}", s.handleGetPursuit)
		r.Patch("/pursuits/{id}", s.handlePatchPursuit)
		r.Delete("/pursuits/{id}", s.handleDeletePursuit)

		r.Get("/export/opportunities", s.handleExportOpportunities)
		r.Get("/export/pursuits", s.handleExportPursuits)

		r.Get("/spending/{naics}", s.handleSpending)
	})

	s.router = r
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// storeStatus maps a store error to an HTTP status.
func storeStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
