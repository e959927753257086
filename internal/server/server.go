package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bbdc_booking_monitor/internal/config"
	"bbdc_booking_monitor/internal/monitor"
	"bbdc_booking_monitor/internal/session"
	"bbdc_booking_monitor/internal/storage"
	"bbdc_booking_monitor/pkg/logger"
)

// Server — служебный HTTP сервер монитора: health check и метрики
type Server struct {
	httpServer *http.Server
	sess       *session.Manager
	poller     *monitor.Poller
	audit      storage.AuditLog
	log        *logger.Logger
	startTime  time.Time
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    string            `json:"timestamp"`
	Uptime       string            `json:"uptime"`
	SessionState string            `json:"session_state"`
	LastPoll     string            `json:"last_poll,omitempty"`
	Checks       map[string]string `json:"checks"`
}

// New создает новый служебный сервер
func New(cfg config.ServerConfig, sess *session.Manager, poller *monitor.Poller, audit storage.AuditLog, log *logger.Logger) *Server {
	s := &Server{
		sess:      sess,
		poller:    poller,
		audit:     audit,
		log:       log,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return s
}

// Start запускает HTTP сервер, блокируется до остановки
func (s *Server) Start() error {
	s.log.Info("service server listening", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает сервер с дожиданием активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth обрабатывает запросы health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if s.audit != nil {
		if err := s.audit.Ping(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	state := s.sess.State()
	if state != session.LoggedIn && status == "healthy" {
		status = "warning"
	}
	checks["session"] = state.String()

	resp := HealthResponse{
		Status:       status,
		Timestamp:    time.Now().Format(time.RFC3339),
		Uptime:       time.Since(s.startTime).String(),
		SessionState: state.String(),
		Checks:       checks,
	}
	if last := s.poller.LastPoll(); !last.IsZero() {
		resp.LastPoll = last.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
