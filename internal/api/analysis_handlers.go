package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

type rhythmQuery struct {
	WindowSec int64 `json:"window_sec"`
}

type clusterQuery struct {
	StartTS    *int64 `json:"start_ts"`
	EndTS      *int64 `json:"end_ts"`
	TextFilter string `json:"text_filter"`
}

type anomalyQuery struct {
	StartTS    *int64 `json:"start_ts"`
	EndTS      *int64 `json:"end_ts"`
	TextFilter string `json:"text_filter"`
}

type triageQuery struct {
	PositiveIDs []string `json:"positive_ids"`
	NegativeIDs []string `json:"negative_ids"`
	StartTS     int64    `json:"start_ts"`
	EndTS       int64    `json:"end_ts"`
}

// handleRhythmAnomalies triggers an ad-hoc rhythm analysis over the recent
// window. Runs serialized with the periodic worker.
func (r *Router) handleRhythmAnomalies(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q rhythmQuery
	if !decodeBody(w, req, &q) {
		return
	}
	if q.WindowSec <= 0 {
		q.WindowSec = 300
	}

	result, err := r.analyzer.FindRhythmAnomalies(req.Context(), q.WindowSec)
	if err != nil {
		log.Error().Err(err).Msg("Rhythm analysis failed")
		writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTier2Clusters lists de-duplicated incident clusters across the daily
// partitions in range.
func (r *Router) handleTier2Clusters(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q clusterQuery
	if !decodeBody(w, req, &q) {
		return
	}
	if (q.StartTS == nil) != (q.EndTS == nil) {
		writeError(w, http.StatusBadRequest, "start_ts and end_ts must be given together")
		return
	}

	clusters, err := r.forensic.FindClusters(req.Context(), q.StartTS, q.EndTS, q.TextFilter)
	if err != nil {
		log.Error().Err(err).Msg("Cluster listing failed")
		writeError(w, http.StatusBadGateway, "cluster listing failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

// handleTier2Anomalies is the hybrid dense+sparse retrieval over event
// clusters, fused with reciprocal rank.
func (r *Router) handleTier2Anomalies(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q anomalyQuery
	if !decodeBody(w, req, &q) {
		return
	}
	if q.StartTS == nil || q.EndTS == nil {
		writeError(w, http.StatusBadRequest, "start_ts and end_ts are required")
		return
	}

	hits, err := r.forensic.HybridSearch(req.Context(), *q.StartTS, *q.EndTS, q.TextFilter)
	if err != nil {
		log.Error().Err(err).Msg("Hybrid retrieval failed")
		writeError(w, http.StatusBadGateway, "hybrid retrieval failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_clusters": hits})
}

// handleTier2Triage recommends similar events from positive/negative anchors.
func (r *Router) handleTier2Triage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q triageQuery
	if !decodeBody(w, req, &q) {
		return
	}

	hits, err := r.forensic.Triage(req.Context(), q.PositiveIDs, q.NegativeIDs, q.StartTS, q.EndTS)
	if err != nil {
		log.Error().Err(err).Msg("Triage search failed")
		writeError(w, http.StatusBadGateway, "triage failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triage_results": hits})
}
