// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

// Package admin serves the bridge's management surface over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/faultstore"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/listener"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	DefaultGrace      = 30 * time.Second
	defaultFaultLimit = 100
)

// Controller is the part of *listener.Listener the admin surface drives.
type Controller interface {
	Pause()
	Resume()
	PauseService(service string) error
	ResumeService(service string) error
	MaintenanceShutdown(ctx context.Context, grace time.Duration) error
	ClearActiveConnections() error
	Status() []listener.ServiceStatus
	EndpointURLs() []listener.ServiceEndpoint
}

type Server struct {
	addr     string
	control  Controller
	metrics  *metrics.Collector
	faults   faultstore.Store
	hub      *Hub
	upgrader websocket.Upgrader
	server   *http.Server
	logger   *slog.Logger
}

func New(addr string, control Controller, m *metrics.Collector, faults faultstore.Store, hub *Hub, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		control: control,
		metrics: m,
		faults:  faults,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "admin"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /metrics.json", s.handleMetricsJSON)
	mux.HandleFunc("GET /faults", s.handleFaults)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("POST /maintenance-shutdown", s.handleMaintenanceShutdown)
	mux.HandleFunc("POST /clear-active-connections", s.handleClearActiveConnections)
	mux.HandleFunc("POST /services/{name}/pause", s.handlePauseService)
	mux.HandleFunc("POST /services/{name}/resume", s.handleResumeService)
	mux.HandleFunc("GET /events", s.handleWebSocket)
	mux.HandleFunc("GET /events/sse", s.handleSSE)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("admin server starting", "addr", s.addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrServiceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.control.Status()})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": s.control.EndpointURLs()})
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	if s.faults == nil {
		writeJSON(w, http.StatusOK, map[string]any{"faults": []faultstore.Fault{}})
		return
	}
	limit := defaultFaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	faults, err := s.faults.List(r.Context(), r.URL.Query().Get("service"), limit)
	if err != nil {
		s.logger.Error("list faults failed", "error", err)
		writeError(w, err)
		return
	}
	if faults == nil {
		faults = []faultstore.Fault{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"faults": faults})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control.Pause()
	s.logger.Info("listener paused")
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control.Resume()
	s.logger.Info("listener resumed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleMaintenanceShutdown(w http.ResponseWriter, r *http.Request) {
	grace := DefaultGrace
	if v := r.URL.Query().Get("grace"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			http.Error(w, "grace must be a duration", http.StatusBadRequest)
			return
		}
		grace = d
	}
	if err := s.control.MaintenanceShutdown(r.Context(), grace); err != nil {
		s.logger.Warn("maintenance shutdown incomplete", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleClearActiveConnections(w http.ResponseWriter, r *http.Request) {
	if err := s.control.ClearActiveConnections(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePauseService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.control.PauseService(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": name, "status": "paused"})
}

func (s *Server) handleResumeService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.control.ResumeService(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": name, "status": "resumed"})
}
