// Package api exposes the HTTP surface of the service under /api/v1.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/analysis"
	"github.com/viaobs/via/internal/control"
	"github.com/viaobs/via/internal/ingest"
)

// Router wires the HTTP handlers to the service components.
type Router struct {
	mux         *http.ServeMux
	pipeline    *ingest.Pipeline
	analyzer    *analysis.Analyzer
	forensic    *analysis.Forensic
	registry    *control.Registry
	liveLogPath string
}

// NewRouter creates the router with all routes registered.
func NewRouter(pipeline *ingest.Pipeline, analyzer *analysis.Analyzer, forensic *analysis.Forensic, registry *control.Registry, liveLogPath string) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		pipeline:    pipeline,
		analyzer:    analyzer,
		forensic:    forensic,
		registry:    registry,
		liveLogPath: liveLogPath,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/v1/ingest/stream", r.handleIngestStream)

	r.mux.HandleFunc("/api/v1/analysis/tier1/rhythm_anomalies", r.handleRhythmAnomalies)
	r.mux.HandleFunc("/api/v1/analysis/tier2/clusters", r.handleTier2Clusters)
	r.mux.HandleFunc("/api/v1/analysis/tier2/anomalies", r.handleTier2Anomalies)
	r.mux.HandleFunc("/api/v1/analysis/tier2/triage", r.handleTier2Triage)

	r.mux.HandleFunc("/api/v1/control/suppress", r.handleSuppress)
	r.mux.HandleFunc("/api/v1/control/suppress/", r.handleDeleteSuppression)
	r.mux.HandleFunc("/api/v1/control/patch", r.handlePatch)
	r.mux.HandleFunc("/api/v1/control/patch/", r.handleDeletePatch)
	r.mux.HandleFunc("/api/v1/control/rules", r.handleRules)

	r.mux.HandleFunc("/api/v1/schemas", r.handleSchemas)
	r.mux.HandleFunc("/api/v1/schemas/", r.handleSchemaBySource)

	r.mux.HandleFunc("/api/v1/stream/tail", r.handleStreamTail)

	r.mux.HandleFunc("/api/v1/health", r.handleHealth)
	r.mux.HandleFunc("/health", r.handleHealth)
	r.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("Request")
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
