package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaobs/via/internal/analysis"
	"github.com/viaobs/via/internal/control"
	"github.com/viaobs/via/internal/embed"
	"github.com/viaobs/via/internal/ingest"
	"github.com/viaobs/via/internal/vectorstore"
)

func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()

	mem := vectorstore.NewMemory()
	gateway := vectorstore.NewGateway(mem, vectorstore.GatewayConfig{
		Tier1Name:   "via_rhythm_monitor",
		Tier2Prefix: "via_forensic_index",
		DenseDim:    16,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, gateway.SetupTier1(context.Background()))

	dir := t.TempDir()
	registry, err := control.Open(filepath.Join(dir, "registry.db"), filepath.Join(dir, "evals"))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	dense := embed.NewHashingDense(16)
	sparse := embed.NewBM25Sparse()
	promoter := analysis.NewPromoter(gateway, dense, sparse)
	analyzer := analysis.NewAnalyzer(gateway, registry, promoter)
	forensic := analysis.NewForensic(gateway, registry, dense, sparse)
	pipeline := ingest.NewPipeline(gateway)

	liveLogPath := filepath.Join(dir, "live_stream.jsonl")
	return NewRouter(pipeline, analyzer, forensic, registry, liveLogPath), liveLogPath
}

func doJSON(t *testing.T, r *Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeResponse(t, rec, &body)
	assert.Equal(t, "ok", body["status"])

	assert.Equal(t, http.StatusMethodNotAllowed, doJSON(t, r, http.MethodPost, "/health", "{}").Code)
}

func TestIngestStream(t *testing.T) {
	r, _ := newTestRouter(t)

	batch := `[{"TimeUnixNano": 1757000000000000000, "SeverityText": "ERROR", "Body": "disk failure on node 10", "Attributes": [{"key":"service.name","value":"storage"}]}]`
	rec := doJSON(t, r, http.MethodPost, "/api/v1/ingest/stream", batch)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeResponse(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["tier1_ingested"])
}

func TestIngestStreamRejectsInvalidJSON(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/ingest/stream", `{"not": "an array"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRhythmAnomaliesEmptyStore(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier1/rhythm_anomalies", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Novel     []json.RawMessage `json:"novel_anomalies"`
		Frequency []json.RawMessage `json:"frequency_anomalies"`
	}
	decodeResponse(t, rec, &body)
	assert.NotNil(t, body.Novel)
	assert.Empty(t, body.Novel)
	assert.Empty(t, body.Frequency)
}

func TestRhythmAnomaliesEndToEnd(t *testing.T) {
	r, _ := newTestRouter(t)

	// Two occurrences of a never-seen pattern inside the default window.
	now := time.Now().Unix()
	batch := `[
		{"TimeUnixNano": ` + jsonNanos(now-20) + `, "SeverityText": "ERROR", "Body": "token store unreachable", "Attributes": [{"key":"service.name","value":"auth"}]},
		{"TimeUnixNano": ` + jsonNanos(now-10) + `, "SeverityText": "ERROR", "Body": "token store unreachable", "Attributes": [{"key":"service.name","value":"auth"}]}
	]`
	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/api/v1/ingest/stream", batch).Code)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier1/rhythm_anomalies", `{"window_sec": 300}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Novel []struct {
			RhythmHash string `json:"rhythm_hash"`
			Count      int    `json:"count"`
		} `json:"novel_anomalies"`
	}
	decodeResponse(t, rec, &body)
	require.Len(t, body.Novel, 1)
	assert.Equal(t, 2, body.Novel[0].Count)

	// The promoted cluster shows up in the forensic listing.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier2/clusters", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var clusters struct {
		Clusters []struct {
			ClusterID     string `json:"cluster_id"`
			IncidentCount int64  `json:"incident_count"`
		} `json:"clusters"`
	}
	decodeResponse(t, rec, &clusters)
	require.Len(t, clusters.Clusters, 1)
	assert.Equal(t, body.Novel[0].RhythmHash, clusters.Clusters[0].ClusterID)
	assert.EqualValues(t, 2, clusters.Clusters[0].IncidentCount)
}

func jsonNanos(unixSec int64) string {
	return strconv.FormatInt(unixSec*1_000_000_000, 10)
}

func TestTier2ClustersValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier2/clusters", `{"start_ts": 100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTier2AnomaliesRequiresRange(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier2/anomalies", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier2/anomalies", `{"start_ts": 0, "end_ts": 100}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTier2TriageEmptyAnchors(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/analysis/tier2/triage", `{"start_ts": 0, "end_ts": 100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []json.RawMessage `json:"triage_results"`
	}
	decodeResponse(t, rec, &body)
	assert.Empty(t, body.Results)
}

func TestSuppressionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, r, http.MethodPost, "/api/v1/control/suppress", `{}`).Code)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/control/suppress", `{"rhythm_hash": "hashA", "duration_sec": 120}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var rules control.RuleSet
	rec = doJSON(t, r, http.MethodGet, "/api/v1/control/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &rules)
	require.Len(t, rules.Suppressions, 1)
	assert.Equal(t, "hashA", rules.Suppressions[0].RhythmHash)

	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodDelete, "/api/v1/control/suppress/hashA", "").Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/control/rules", "")
	decodeResponse(t, rec, &rules)
	assert.Empty(t, rules.Suppressions)
}

func TestPatchLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/control/patch", `{"rhythm_hash": "hashA", "patch_type": "DENY_LIST"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "only ALLOW_LIST patches exist")

	rec = doJSON(t, r, http.MethodPost, "/api/v1/control/patch",
		`{"rhythm_hash": "hashA", "patch_type": "ALLOW_LIST", "context_logs": ["noisy line 1", "noisy line 2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var rules control.RuleSet
	rec = doJSON(t, r, http.MethodGet, "/api/v1/control/rules", "")
	decodeResponse(t, rec, &rules)
	require.Len(t, rules.Patches, 1)
	assert.Equal(t, "hashA", rules.Patches[0].RhythmHash)

	require.Equal(t, http.StatusOK, doJSON(t, r, http.MethodDelete, "/api/v1/control/patch/hashA", "").Code)
	rec = doJSON(t, r, http.MethodGet, "/api/v1/control/rules", "")
	decodeResponse(t, rec, &rules)
	assert.Empty(t, rules.Patches)
}

func TestSchemasEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodGet, "/api/v1/schemas/nginx", "").Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, r, http.MethodPost, "/api/v1/schemas", `{"source_name": "nginx"}`).Code)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/schemas", `{"source_name": "nginx", "schema_json": "{\"format\":\"combined\"}"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/schemas/nginx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var schema control.LogSchema
	decodeResponse(t, rec, &schema)
	assert.Equal(t, "nginx", schema.SourceName)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/schemas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Schemas []control.LogSchema `json:"schemas"`
	}
	decodeResponse(t, rec, &list)
	assert.Len(t, list.Schemas, 1)
}

func TestStreamTail(t *testing.T) {
	r, liveLogPath := newTestRouter(t)

	lines := []string{
		`{"body": "first", "n": 1}`,
		`{"body": "second error", "n": 2}`,
		`not json at all`,
		`{"body": "third", "n": 3}`,
		`{"body": "fourth error", "n": 4}`,
	}
	require.NoError(t, os.WriteFile(liveLogPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	rec := doJSON(t, r, http.MethodGet, "/api/v1/stream/tail?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	decodeResponse(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0]["body"])
	assert.Equal(t, "fourth error", got[1]["body"])

	// Filter is a case-insensitive substring match over raw lines.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/stream/tail?filter=ERROR", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "second error", got[0]["body"])
	assert.Equal(t, "fourth error", got[1]["body"])
}

func TestStreamTailMissingFile(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/v1/stream/tail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []json.RawMessage
	decodeResponse(t, rec, &got)
	assert.Empty(t, got)
}
