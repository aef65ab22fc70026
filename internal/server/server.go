// Package server exposes the progress engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/verte-zerg/lovefit/internal/progress"
)

type Server struct {
	engine     *progress.Engine
	registry   *prometheus.Registry
	metrics    *Metrics
	httpServer *http.Server
	now        func() time.Time
}

func NewServer(engine *progress.Engine, registry *prometheus.Registry) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{
		engine:   engine,
		registry: registry,
		metrics:  NewMetrics(registry),
		now:      time.Now,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	s.handle(api, "/test", "test", s.handleTest, http.MethodGet)
	s.handle(api, "/user-progress", "user-progress", s.handleUserProgress, http.MethodPost)
	s.handle(api, "/available-content/{user_id}", "available-content", s.handleAvailableContent, http.MethodGet)
	s.handle(api, "/debug/reset", "debug-reset", s.handleDebugReset, http.MethodPost)
	s.handle(api, "/debug/status", "debug-status", s.handleDebugStatus, http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")
	return r
}

func (s *Server) handle(r *mux.Router, path, name string, fn http.HandlerFunc, methods ...string) {
	r.Handle(path, s.metrics.middleware(name, fn)).Methods(methods...).Name(name)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof(" > progress server listening on: [%s]", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to gracefully shutdown progress server: %s", err)
		return err
	}
	log.Infoln("progress server shut down")
	return nil
}

type testResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, testResponse{
		Status:    "success",
		Message:   "Progress server is running",
		Timestamp: s.now().Format("2006-01-02 15:04:05"),
		Endpoints: map[string]string{
			"test":           "/api/test",
			"submit_workout": "/api/user-progress",
			"get_content":    "/api/available-content/<user_id>",
		},
	})
}

type workoutRequest struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	var req workoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debugf("user-progress: bad body: %s", err)
		http.Error(w, "invalid workout payload", http.StatusBadRequest)
		return
	}
	log.Debugf("received workout: %+v", req)

	res := s.engine.ProcessWorkout(progress.DefaultUserID, req.Type, req.Distance, req.Duration)
	s.metrics.CounterWorkouts.Inc()
	for _, id := range res.NewlyUnlocked {
		s.metrics.CounterUnlocks.WithLabelValues(id).Inc()
	}
	s.metrics.GaugeTrackedDistance.Set(res.TotalProgress.TotalDistance)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAvailableContent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	writeJSON(w, http.StatusOK, s.engine.AvailableContent(userID))
}

func (s *Server) handleDebugReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset(progress.DefaultUserID)
	s.metrics.GaugeTrackedDistance.Set(0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "User progress reset."})
}

type statusResponse struct {
	UserProgress any                             `json:"user_progress"`
	Requirements map[string]progress.Requirement `json:"requirements"`
}

func (s *Server) handleDebugStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		UserProgress: "User not available.",
		Requirements: s.engine.Requirements(),
	}
	if p, ok := s.engine.Status(progress.DefaultUserID); ok {
		resp.UserProgress = p
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("marshal response error: %s", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Errorf("failed to write response: %s", err)
	}
}
