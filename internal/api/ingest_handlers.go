package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// handleIngestStream accepts a batch of log records, flat or nested OTLP,
// and ingests them into Tier-1.
func (r *Router) handleIngestStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch []json.RawMessage
	if !decodeBody(w, req, &batch) {
		return
	}

	count, err := r.pipeline.IngestBatch(req.Context(), batch)
	if err != nil {
		log.Error().Err(err).Msg("Tier-1 ingest failed")
		writeError(w, http.StatusBadGateway, "ingest failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"tier1_ingested": count,
	})
}
