package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EvalWriter persists regression cases for patched false positives. Each
// patch produces one YAML file recording the context logs and the expected
// outcome "not an anomaly", so a later analyzer change that re-flags the
// pattern is caught by replaying the evals.
type EvalWriter struct {
	dir string
	now func() time.Time
}

// NewEvalWriter returns a writer rooted at dir; the directory is created on
// first write.
func NewEvalWriter(dir string) *EvalWriter {
	return &EvalWriter{dir: dir, now: time.Now}
}

type evalCase struct {
	Description     string       `yaml:"description"`
	RhythmHash      string       `yaml:"rhythm_hash"`
	ContextLogs     []string     `yaml:"context_logs"`
	ExpectedOutcome evalExpected `yaml:"expected_outcome"`
}

type evalExpected struct {
	IsAnomaly bool   `yaml:"is_anomaly"`
	Reason    string `yaml:"reason"`
}

// Write persists one eval case and returns the file path.
func (w *EvalWriter) Write(rhythmHash string, contextLogs []string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create evals directory: %w", err)
	}

	data, err := yaml.Marshal(evalCase{
		Description: "Auto-generated eval case for a patched rhythm hash.",
		RhythmHash:  rhythmHash,
		ContextLogs: contextLogs,
		ExpectedOutcome: evalExpected{
			IsAnomaly: false,
			Reason:    "patched as false positive",
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal eval case: %w", err)
	}

	prefix := rhythmHash
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	path := filepath.Join(w.dir, fmt.Sprintf("eval_%s_%d.yml", prefix, w.now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write eval case: %w", err)
	}
	return path, nil
}
