// Package web is the HTTP control surface: start/stop the engine, report
// status, expose the persisted state and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"rsibot/internal/config"
	"rsibot/internal/control"
	"rsibot/internal/state"

	"go.uber.org/zap"
)

type Server struct {
	log         *zap.Logger
	service     *control.Service
	store       state.Store
	metrics     http.Handler
	metricsPath string
	stopTimeout time.Duration
}

func New(service *control.Service, store state.Store, metricsHandler http.Handler, metricsPath string, stopTimeout time.Duration, log *zap.Logger) *Server {
	return &Server{
		log:         log,
		service:     service,
		store:       store,
		metrics:     metricsHandler,
		metricsPath: metricsPath,
		stopTimeout: stopTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /state", s.handleState)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics)
	}
	return mux
}

type startRequest struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	UseTestnet bool   `json:"use_testnet"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.service.Start(config.Credentials{
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		Testnet:   req.UseTestnet,
	})
	switch {
	case errors.Is(err, config.ErrMissingCredentials):
		writeMessage(w, http.StatusBadRequest, "api_key and api_secret are required")
	case errors.Is(err, control.ErrAlreadyRunning):
		writeMessage(w, http.StatusConflict, "engine already running")
	case err != nil:
		s.log.Error("start failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "start failed")
	default:
		writeMessage(w, http.StatusOK, "engine started")
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.service.Stop(s.stopTimeout)
	switch {
	case errors.Is(err, control.ErrNotRunning):
		writeMessage(w, http.StatusConflict, "engine not running")
	case err != nil:
		s.log.Error("stop failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "stop failed")
	default:
		writeMessage(w, http.StatusOK, "engine stopped")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	symbols, ok := s.service.Status()
	if !ok {
		writeMessage(w, http.StatusConflict, "engine never started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   s.service.State(),
		"symbols": symbols,
	})
}

// handleState serves the persisted position records, the same view a restart
// would recover from.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	positions, err := s.store.Load(ctx)
	if err != nil {
		s.log.Error("state read failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "state read failed")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
