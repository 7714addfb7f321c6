// Package ingest turns raw log batches into fingerprinted Tier-1 points.
// Both the flat record shape and the nested OTLP resourceLogs shape are
// accepted; malformed records are dropped with a warning and never fail the
// batch.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/fingerprint"
	"github.com/viaobs/via/internal/metrics"
	"github.com/viaobs/via/internal/models"
	"github.com/viaobs/via/internal/vectorstore"
)

// Pipeline ingests batches into Tier-1 via the gateway. It is stateless
// across calls: no buffering, no retry; upsert errors propagate.
type Pipeline struct {
	gateway *vectorstore.Gateway
}

// NewPipeline wires the pipeline to a gateway.
func NewPipeline(gateway *vectorstore.Gateway) *Pipeline {
	return &Pipeline{gateway: gateway}
}

// IngestBatch parses, fingerprints and upserts a batch of raw log records.
// Returns the number of accepted Tier-1 points. The upsert does not wait
// for commit acknowledgement.
func (p *Pipeline) IngestBatch(ctx context.Context, batch []json.RawMessage) (int, error) {
	var points []vectorstore.Point
	for _, raw := range batch {
		records, err := ParseRecord(raw)
		if err != nil {
			metrics.DroppedRecords.Inc()
			log.Warn().Err(err).Msg("Dropping malformed log record")
			continue
		}
		for _, rec := range records {
			points = append(points, p.buildPoint(rec))
		}
	}

	if err := p.gateway.UpsertTier1(ctx, points); err != nil {
		return 0, err
	}
	metrics.IngestedPoints.Add(float64(len(points)))
	return len(points), nil
}

func (p *Pipeline) buildPoint(rec models.LogRecord) vectorstore.Point {
	template := fingerprint.Template(rec.Body)
	return vectorstore.Point{
		ID: uuid.NewString(),
		Vectors: map[string][]float32{
			"": fingerprint.Vector(template),
		},
		Payload: map[string]any{
			"rhythm_hash":   fingerprint.RhythmHash(rec.Service, rec.Severity, template),
			"service":       rec.Service,
			"severity":      rec.Severity,
			"ts":            rec.TS,
			"body":          rec.Body,
			"full_log_json": json.RawMessage(rec.Raw),
		},
	}
}

// flatRecord is the flattened ingestion shape.
type flatRecord struct {
	TimeUnixNano int64           `json:"TimeUnixNano"`
	SeverityText string          `json:"SeverityText"`
	Body         *string         `json:"Body"`
	Attributes   []flatAttribute `json:"Attributes"`
}

type flatAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Nested OTLP shapes. Only the fields the pipeline consumes are modeled.
type otlpEnvelope struct {
	ResourceLogs []otlpResourceLogs `json:"resourceLogs"`
}

type otlpResourceLogs struct {
	Resource  otlpResource    `json:"resource"`
	ScopeLogs []otlpScopeLogs `json:"scopeLogs"`
}

type otlpResource struct {
	Attributes []otlpAttribute `json:"attributes"`
}

type otlpScopeLogs struct {
	LogRecords []otlpLogRecord `json:"logRecords"`
}

type otlpLogRecord struct {
	TimeUnixNano json.Number     `json:"timeUnixNano"`
	SeverityText string          `json:"severityText"`
	Body         otlpAnyValue    `json:"body"`
	Attributes   []otlpAttribute `json:"attributes"`
}

type otlpAttribute struct {
	Key   string       `json:"key"`
	Value otlpAnyValue `json:"value"`
}

type otlpAnyValue struct {
	StringValue *string  `json:"stringValue"`
	IntValue    *string  `json:"intValue"`
	DoubleValue *float64 `json:"doubleValue"`
	BoolValue   *bool    `json:"boolValue"`
}

func (v otlpAnyValue) asString() string {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntValue != nil:
		return *v.IntValue
	case v.DoubleValue != nil:
		return fmt.Sprintf("%g", *v.DoubleValue)
	case v.BoolValue != nil:
		return fmt.Sprintf("%t", *v.BoolValue)
	default:
		return ""
	}
}

const defaultSeverity = "INFO"

// ParseRecord converts one raw entry into canonical log records. A flat
// entry yields exactly one record; a nested OTLP envelope yields one record
// per contained logRecord, each carrying the whole envelope as its raw form.
func ParseRecord(raw json.RawMessage) ([]models.LogRecord, error) {
	var flat flatRecord
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Body != nil {
		service := "unknown"
		for _, attr := range flat.Attributes {
			if attr.Key == "service.name" {
				service = attr.Value
			}
		}
		severity := flat.SeverityText
		if severity == "" {
			severity = defaultSeverity
		}
		return []models.LogRecord{{
			TS:       flat.TimeUnixNano / 1_000_000_000,
			Service:  service,
			Severity: severity,
			Body:     *flat.Body,
			Raw:      raw,
		}}, nil
	}

	var envelope otlpEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("record is neither flat nor OTLP shaped: %w", err)
	}
	if len(envelope.ResourceLogs) == 0 {
		return nil, fmt.Errorf("record has no resourceLogs")
	}

	var out []models.LogRecord
	for _, rl := range envelope.ResourceLogs {
		service := "unknown"
		for _, attr := range rl.Resource.Attributes {
			if attr.Key == "service.name" {
				service = attr.Value.asString()
			}
		}
		for _, scope := range rl.ScopeLogs {
			for _, rec := range scope.LogRecords {
				nanos, err := rec.TimeUnixNano.Int64()
				if err != nil {
					return nil, fmt.Errorf("bad timeUnixNano %q: %w", rec.TimeUnixNano, err)
				}
				severity := rec.SeverityText
				if severity == "" {
					severity = defaultSeverity
				}
				out = append(out, models.LogRecord{
					TS:       nanos / 1_000_000_000,
					Service:  service,
					Severity: severity,
					Body:     rec.Body.asString(),
					Raw:      raw,
				})
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("OTLP envelope contains no log records")
	}
	return out, nil
}
