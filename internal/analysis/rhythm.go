// Package analysis holds the rhythm analyzer that flags novel and
// frequency-spiking fingerprints, the promotion service that turns emissions
// into Tier-2 event clusters, and the federated forensic query layer.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/control"
	"github.com/viaobs/via/internal/metrics"
	"github.com/viaobs/via/internal/models"
	"github.com/viaobs/via/internal/vectorstore"
)

// Analyzer tunables. The 1.5 std-dev floor keeps sparse baselines from
// producing near-zero thresholds that would flag every repeat.
const (
	HistoricalSampleSize  = 10_000
	NoveltyMinCount       = 2
	FrequencyMinCount     = 3
	FrequencyStdDevFactor = 2.5
	stdDevFloor           = 1.5

	recentScanLimit = 100_000
)

// Result is one analyzer invocation's output.
type Result struct {
	Novel     []models.Anomaly `json:"novel_anomalies"`
	Frequency []models.Anomaly `json:"frequency_anomalies"`
}

// Analyzer computes anomalies over a recent Tier-1 window against a
// duration-normalized historical baseline. At most one invocation runs at a
// time per process; concurrent callers queue on the mutex so the worker and
// ad-hoc HTTP requests cannot double-promote the same window.
type Analyzer struct {
	gateway  *vectorstore.Gateway
	registry *control.Registry
	promoter *Promoter

	mu  sync.Mutex
	now func() time.Time
}

// NewAnalyzer wires the analyzer to its collaborators.
func NewAnalyzer(gateway *vectorstore.Gateway, registry *control.Registry, promoter *Promoter) *Analyzer {
	return &Analyzer{gateway: gateway, registry: registry, promoter: promoter, now: time.Now}
}

// FindRhythmAnomalies reads the recent window and the historical sample,
// classifies each recent fingerprint, gates silenced fingerprints before
// classification, promotes survivors to Tier-2 and returns both lists.
func (a *Analyzer) FindRhythmAnomalies(ctx context.Context, windowSec int64) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	defer func() { metrics.AnalysisDuration.Observe(time.Since(start).Seconds()) }()

	result := Result{Novel: []models.Anomaly{}, Frequency: []models.Anomaly{}}

	now := a.now().Unix()
	windowStart := now - windowSec

	recent, err := a.gateway.ScrollTier1(ctx, vectorstore.ScrollRequest{
		Filter: vectorstore.Filter{Ranges: []vectorstore.RangeCondition{
			{Field: "ts", GTE: &windowStart, LTE: &now},
		}},
		Limit: recentScanLimit,
	})
	if err != nil {
		return result, fmt.Errorf("read recent window: %w", err)
	}
	if len(recent) == 0 {
		return result, nil
	}

	hist, err := a.gateway.ScrollTier1(ctx, vectorstore.ScrollRequest{
		Filter: vectorstore.Filter{Ranges: []vectorstore.RangeCondition{
			{Field: "ts", LT: &windowStart},
		}},
		Limit:      HistoricalSampleSize,
		OrderBy:    "ts",
		Descending: true,
	})
	if err != nil {
		return result, fmt.Errorf("read historical sample: %w", err)
	}

	histCounts, histDuration := baseline(hist)

	// Group recent occurrences by fingerprint, keeping first-seen order so
	// output is deterministic for a given snapshot.
	members := make(map[string][]models.Tier1Payload)
	var order []string
	for _, p := range recent {
		payload := tier1Payload(p.Payload)
		if payload.RhythmHash == "" {
			continue
		}
		if _, seen := members[payload.RhythmHash]; !seen {
			order = append(order, payload.RhythmHash)
		}
		members[payload.RhythmHash] = append(members[payload.RhythmHash], payload)
	}

	var emissions []models.Anomaly
	for _, hash := range order {
		// Suppression priority: the gate runs before classification.
		if a.registry.IsSilenced(hash) {
			continue
		}
		group := members[hash]
		count := len(group)
		histCount, known := histCounts[hash]

		var anomaly models.Anomaly
		switch {
		case !known:
			if count < NoveltyMinCount {
				continue
			}
			anomaly = newAnomaly(hash, models.AnomalyNovelty,
				fmt.Sprintf("New pattern seen %d times", count), group)
			result.Novel = append(result.Novel, anomaly)
		default:
			mean := float64(histCount) * float64(windowSec) / float64(histDuration)
			std := math.Max(stdDevFloor, math.Sqrt(mean))
			threshold := mean + FrequencyStdDevFactor*std
			if float64(count) <= threshold || count < FrequencyMinCount {
				continue
			}
			anomaly = newAnomaly(hash, models.AnomalyFrequency,
				fmt.Sprintf("Count %d exceeded threshold %.2f (mean %.2f, std dev %.2f)",
					count, threshold, mean, std), group)
			result.Frequency = append(result.Frequency, anomaly)
		}
		metrics.AnomaliesDetected.WithLabelValues(string(anomaly.Type)).Inc()
		emissions = append(emissions, anomaly)
	}

	if len(emissions) > 0 {
		promoted, err := a.promoter.Promote(ctx, emissions)
		if err != nil {
			return result, fmt.Errorf("promote anomalies: %w", err)
		}
		log.Info().
			Int("novel", len(result.Novel)).
			Int("frequency", len(result.Frequency)).
			Int("promoted", promoted).
			Msg("Rhythm anomalies promoted to Tier-2")
	}
	return result, nil
}

// baseline counts each fingerprint in the historical sample and measures the
// span the sample covers. The span has a floor of one second so a
// single-point or single-instant sample cannot zero the normalization.
func baseline(hist []vectorstore.Point) (map[string]int, int64) {
	counts := make(map[string]int, len(hist))
	var newest, oldest int64
	first := true
	for _, p := range hist {
		payload := tier1Payload(p.Payload)
		if payload.RhythmHash == "" {
			continue
		}
		counts[payload.RhythmHash]++
		if first || payload.TS > newest {
			newest = payload.TS
		}
		if first || payload.TS < oldest {
			oldest = payload.TS
		}
		first = false
	}
	duration := newest - oldest
	if duration < 1 {
		duration = 1
	}
	return counts, duration
}

func newAnomaly(hash string, kind models.AnomalyType, context string, group []models.Tier1Payload) models.Anomaly {
	first := group[0]
	for _, m := range group[1:] {
		if m.TS < first.TS {
			first = m
		}
	}
	return models.Anomaly{
		RhythmHash: hash,
		Type:       kind,
		Context:    context,
		Count:      len(group),
		Service:    first.Service,
		Severity:   first.Severity,
		Body:       first.Body,
		Members:    group,
	}
}

func tier1Payload(payload map[string]any) models.Tier1Payload {
	out := models.Tier1Payload{}
	out.RhythmHash, _ = vectorstore.StringFromPayload(payload, "rhythm_hash")
	out.Service, _ = vectorstore.StringFromPayload(payload, "service")
	out.Severity, _ = vectorstore.StringFromPayload(payload, "severity")
	out.Body, _ = vectorstore.StringFromPayload(payload, "body")
	out.TS, _ = vectorstore.IntFromPayload(payload, "ts")
	out.FullLog = rawFromPayload(payload, "full_log_json")
	return out
}

// rawFromPayload recovers the original log JSON whether the store kept it as
// raw bytes, a string, or a decoded object.
func rawFromPayload(payload map[string]any, field string) json.RawMessage {
	switch v := payload[field].(type) {
	case json.RawMessage:
		return v
	case string:
		return json.RawMessage(v)
	case nil:
		return nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return data
	}
}
