package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhasspy/wyoming-porcupine1/internal/detector"
	"github.com/rhasspy/wyoming-porcupine1/internal/keywords"
)

// HTTPServer exposes monitoring endpoints: /health, /keywords, /sessions,
// /stats and Prometheus /metrics.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	wakeword  *Server
	pool      *detector.Pool
	catalog   *keywords.Catalog
	startTime time.Time
}

// NewHTTPServer creates the monitoring HTTP server
func NewHTTPServer(address string, logger *slog.Logger, wakeword *Server, pool *detector.Pool, catalog *keywords.Catalog) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		wakeword:  wakeword,
		pool:      pool,
		catalog:   catalog,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/keywords", h.handleKeywords)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/stats", h.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Start begins serving in a background goroutine
func (h *HTTPServer) Start() {
	go func() {
		h.logger.Info("HTTP monitoring server started", slog.String("address", h.server.Addr))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts the HTTP server down
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// handleHealth reports service liveness
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"keywords":       h.catalog.Len(),
	})
}

// handleKeywords lists the discovered keywords
func (h *HTTPServer) handleKeywords(w http.ResponseWriter, r *http.Request) {
	type keywordInfo struct {
		Name     string `json:"name"`
		Language string `json:"language"`
		Idle     int    `json:"idle_adapters"`
	}

	kws := h.catalog.Keywords()
	out := make([]keywordInfo, 0, len(kws))
	for _, kw := range kws {
		out = append(out, keywordInfo{
			Name:     kw.Name,
			Language: kw.Language,
			Idle:     h.pool.IdleCount(kw.Name),
		})
	}

	h.writeJSON(w, out)
}

// handleSessions lists the active client sessions
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.wakeword.Sessions())
}

// handleStats reports aggregate counters
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"active_sessions":      h.wakeword.ActiveSessionCount(),
		"engine_constructions": h.pool.Constructions(),
		"pool_hits":            h.pool.Hits(),
	})
}

// writeJSON encodes a JSON response body
func (h *HTTPServer) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("encoding failed: %v", err), http.StatusInternalServerError)
	}
}
