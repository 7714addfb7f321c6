package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/control"
)

type schemaRequest struct {
	SourceName string `json:"source_name"`
	SchemaJSON string `json:"schema_json"`
}

// handleSchemas lists stored parsing schemas (GET) or saves one (POST).
func (r *Router) handleSchemas(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		schemas, err := r.registry.ListSchemas()
		if err != nil {
			log.Error().Err(err).Msg("Schema listing failed")
			writeError(w, http.StatusInternalServerError, "schema listing failed: "+err.Error())
			return
		}
		if schemas == nil {
			schemas = []control.LogSchema{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
	case http.MethodPost:
		var body schemaRequest
		if !decodeBody(w, req, &body) {
			return
		}
		if body.SourceName == "" || body.SchemaJSON == "" {
			writeError(w, http.StatusBadRequest, "source_name and schema_json are required")
			return
		}
		saved, err := r.registry.SaveSchema(body.SourceName, body.SchemaJSON)
		if err != nil {
			log.Error().Err(err).Str("source", body.SourceName).Msg("Schema save failed")
			writeError(w, http.StatusInternalServerError, "schema save failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSchemaBySource returns one schema: GET /api/v1/schemas/{source}.
func (r *Router) handleSchemaBySource(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := strings.TrimPrefix(req.URL.Path, "/api/v1/schemas/")
	if source == "" || strings.Contains(source, "/") {
		writeError(w, http.StatusBadRequest, "invalid source name in path")
		return
	}

	schema, err := r.registry.GetSchema(source)
	if err != nil {
		if errors.Is(err, control.ErrSchemaNotFound) {
			writeError(w, http.StatusNotFound, "schema not found for source "+source)
			return
		}
		log.Error().Err(err).Str("source", source).Msg("Schema read failed")
		writeError(w, http.StatusInternalServerError, "schema read failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schema)
}
