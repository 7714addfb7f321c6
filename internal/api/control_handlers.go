package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/control"
)

type suppressRequest struct {
	RhythmHash  string `json:"rhythm_hash"`
	DurationSec int64  `json:"duration_sec"`
}

type patchRequest struct {
	RhythmHash  string   `json:"rhythm_hash"`
	PatchType   string   `json:"patch_type"`
	ContextLogs []string `json:"context_logs"`
}

// handleSuppress silences a fingerprint for a bounded duration.
func (r *Router) handleSuppress(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body suppressRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.RhythmHash == "" {
		writeError(w, http.StatusBadRequest, "rhythm_hash is required")
		return
	}
	if body.DurationSec <= 0 {
		body.DurationSec = 3600
	}

	r.registry.Suppress(body.RhythmHash, body.DurationSec)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": fmt.Sprintf("Hash %s suppressed for %d seconds", body.RhythmHash, body.DurationSec),
	})
}

// handlePatch durably allow-lists a fingerprint and captures an eval case.
func (r *Router) handlePatch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body patchRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.RhythmHash == "" {
		writeError(w, http.StatusBadRequest, "rhythm_hash is required")
		return
	}
	if body.PatchType != control.RuleAllowList {
		writeError(w, http.StatusBadRequest, "patch_type must be "+control.RuleAllowList)
		return
	}

	if err := r.registry.Patch(body.RhythmHash, "Patched by operator via API", body.ContextLogs); err != nil {
		log.Error().Err(err).Str("rhythmHash", body.RhythmHash).Msg("Patch write failed")
		writeError(w, http.StatusInternalServerError, "patch failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": fmt.Sprintf("Hash %s patched as permanently allowed", body.RhythmHash),
	})
}

// handleDeletePatch deactivates a patch: DELETE /api/v1/control/patch/{hash}.
func (r *Router) handleDeletePatch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hash := strings.TrimPrefix(req.URL.Path, "/api/v1/control/patch/")
	if hash == "" || strings.Contains(hash, "/") {
		writeError(w, http.StatusBadRequest, "invalid rhythm_hash in path")
		return
	}

	if err := r.registry.DeletePatch(hash); err != nil {
		log.Error().Err(err).Str("rhythmHash", hash).Msg("Patch delete failed")
		writeError(w, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": fmt.Sprintf("Patch for %s deactivated", hash),
	})
}

// handleDeleteSuppression removes a suppression:
// DELETE /api/v1/control/suppress/{hash}.
func (r *Router) handleDeleteSuppression(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hash := strings.TrimPrefix(req.URL.Path, "/api/v1/control/suppress/")
	if hash == "" || strings.Contains(hash, "/") {
		writeError(w, http.StatusBadRequest, "invalid rhythm_hash in path")
		return
	}

	r.registry.DeleteSuppression(hash)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": fmt.Sprintf("Suppression for %s removed", hash),
	})
}

// handleRules lists active patches and live suppressions.
func (r *Router) handleRules(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rules, err := r.registry.Rules()
	if err != nil {
		log.Error().Err(err).Msg("Rule listing failed")
		writeError(w, http.StatusInternalServerError, "rule listing failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rules)
}
