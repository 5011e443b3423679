package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ognbridge/ogn2fanet/internal/aprs"
	"github.com/ognbridge/ogn2fanet/internal/filter"
	"github.com/ognbridge/ogn2fanet/internal/types"
)

// SnapshotProvider supplies the current statistics snapshot
type SnapshotProvider interface {
	Snapshot() *types.StatsSnapshot
}

// DeviceLister supplies the recently-seen device listing
type DeviceLister interface {
	ActiveDevices() []filter.ActiveDevice
}

// TransportStatusProvider supplies the session status
type TransportStatusProvider interface {
	Status() aprs.Status
}

// Server exposes the bridge's health, statistics, and device listing over HTTP
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// New creates the HTTP server
func New(addr string, logger *logrus.Logger, snapshots SnapshotProvider, devices DeviceLister, transport TransportStatusProvider) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	}).Methods("GET")

	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, map[string]interface{}{
			"stats":     snapshots.Snapshot(),
			"transport": transport.Status(),
		})
	}).Methods("GET")

	router.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		active := devices.ActiveDevices()
		writeJSON(w, logger, map[string]interface{}{
			"count":   len(active),
			"devices": active,
		})
	}).Methods("GET")

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		logger: logger,
	}
}

func writeJSON(w http.ResponseWriter, logger *logrus.Logger, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
