// Package models defines the shared data types flowing between the
// ingestion pipeline, the rhythm analyzer, and the forensic query layer.
package models

import "encoding/json"

// AnomalyType tags how a fingerprint was flagged by the analyzer.
type AnomalyType string

const (
	// AnomalyNovelty marks a fingerprint absent from the historical baseline.
	AnomalyNovelty AnomalyType = "novelty"
	// AnomalyFrequency marks a fingerprint whose recent count exceeds the
	// duration-normalized baseline threshold.
	AnomalyFrequency AnomalyType = "frequency"
)

// EntityTypeEventCluster is the entity_type payload value for Tier-2 points.
const EntityTypeEventCluster = "event_cluster"

// LogRecord is the canonical parsed form of one ingested log record.
// Raw keeps the original JSON so promoted clusters can carry sample logs.
type LogRecord struct {
	TS       int64  // unix seconds
	Service  string
	Severity string
	Body     string
	Raw      json.RawMessage
}

// Tier1Payload mirrors the payload stored on every Tier-1 point.
type Tier1Payload struct {
	RhythmHash string          `json:"rhythm_hash"`
	Service    string          `json:"service"`
	Severity   string          `json:"severity"`
	TS         int64           `json:"ts"`
	Body       string          `json:"body"`
	FullLog    json.RawMessage `json:"full_log_json"`
}

// Anomaly describes one anomalous fingerprint detected in a recent window.
// Members carries every recent occurrence of the fingerprint so the
// promotion service can build the event cluster without re-reading Tier-1.
type Anomaly struct {
	RhythmHash string         `json:"rhythm_hash"`
	Type       AnomalyType    `json:"anomaly_type"`
	Context    string         `json:"anomaly_context"`
	Count      int            `json:"count"`
	Service    string         `json:"service"`
	Severity   string         `json:"severity"`
	Body       string         `json:"body"`
	Members    []Tier1Payload `json:"-"`
}

// EventCluster is the Tier-2 point payload for one promoted anomaly group.
type EventCluster struct {
	EntityType     string            `json:"entity_type"`
	RhythmHash     string            `json:"rhythm_hash"`
	StartTS        int64             `json:"start_ts"`
	EndTS          int64             `json:"end_ts"`
	Count          int               `json:"count"`
	Service        string            `json:"service"`
	Severity       string            `json:"severity"`
	AnomalyType    AnomalyType       `json:"anomaly_type"`
	AnomalyContext string            `json:"anomaly_context"`
	Body           string            `json:"body"`
	SampleLogs     []json.RawMessage `json:"sample_logs"`
}
