// Package control implements the adaptive control loop: durable ALLOW_LIST
// patches, time-bounded in-memory suppressions, and the eval capture that
// turns every patch into a regression case. The registry is the single
// source of truth for "is this fingerprint silenced?" and sits on the
// analyzer's hot path, so the silencing check is O(1) against in-memory
// state rebuilt from SQLite at startup.
package control

import (
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// RuleAllowList is the only patch rule kind currently defined.
const RuleAllowList = "ALLOW_LIST"

// PatchRule is one durable patch row.
type PatchRule struct {
	RhythmHash string `json:"rhythm_hash"`
	Rule       string `json:"rule"`
	Reason     string `json:"reason"`
	CreatedTS  int64  `json:"created_ts"`
}

// SuppressionEntry is one live suppression.
type SuppressionEntry struct {
	RhythmHash string `json:"rhythm_hash"`
	ExpiresAt  int64  `json:"expires_at"`
}

// RuleSet is the snapshot returned to operators.
type RuleSet struct {
	Patches      []PatchRule        `json:"patches"`
	Suppressions []SuppressionEntry `json:"suppressions"`
}

// Registry combines the durable patch table with the process-local
// suppression cache. Safe for concurrent use by HTTP handlers and the
// analyzer; writes that touch SQLite commit before the in-memory mirror
// is mutated, so a failed write leaves memory untouched.
type Registry struct {
	db    *sql.DB
	evals *EvalWriter

	mu            sync.RWMutex
	suppressions  map[string]int64 // rhythm_hash -> expiry unix seconds
	activePatches map[string]struct{}

	now func() time.Time
}

// Open opens (creating if needed) the registry database and loads the
// active patches into memory. evalsDir receives regression case files;
// empty disables eval capture.
func Open(dbPath, evalsDir string) (*Registry, error) {
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &Registry{
		db:            db,
		suppressions:  make(map[string]int64),
		activePatches: make(map[string]struct{}),
		now:           time.Now,
	}
	if evalsDir != "" {
		r.evals = NewEvalWriter(evalsDir)
	}

	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.loadPatches(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS schemas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_name TEXT NOT NULL UNIQUE,
	schema_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patch_registry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rhythm_hash TEXT NOT NULL UNIQUE,
	rule TEXT NOT NULL,
	reason TEXT,
	created_ts INTEGER,
	is_active BOOLEAN DEFAULT 1
);
`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize registry schema: %w", err)
	}
	return nil
}

func (r *Registry) loadPatches() error {
	rows, err := r.db.Query(
		`SELECT rhythm_hash FROM patch_registry WHERE rule = ? AND is_active = 1`, RuleAllowList)
	if err != nil {
		return fmt.Errorf("load patch registry: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return fmt.Errorf("scan patch row: %w", err)
		}
		r.activePatches[hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate patch rows: %w", err)
	}
	log.Info().Int("patches", len(r.activePatches)).Msg("Loaded active patches into memory")
	return nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// IsSilenced reports whether a fingerprint is gated by an active patch or a
// live suppression. Expired suppressions are evicted lazily when seen.
func (r *Registry) IsSilenced(rhythmHash string) bool {
	r.mu.RLock()
	if _, ok := r.activePatches[rhythmHash]; ok {
		r.mu.RUnlock()
		return true
	}
	expiry, ok := r.suppressions[rhythmHash]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if r.now().Unix() < expiry {
		return true
	}

	r.mu.Lock()
	// Re-check: a concurrent Suppress may have refreshed the entry.
	if cur, ok := r.suppressions[rhythmHash]; ok && r.now().Unix() >= cur {
		delete(r.suppressions, rhythmHash)
	}
	r.mu.Unlock()
	return false
}

// Suppress silences a fingerprint for durationSec seconds from now.
// Re-suppressing overwrites the expiry.
func (r *Registry) Suppress(rhythmHash string, durationSec int64) {
	expiry := r.now().Unix() + durationSec
	r.mu.Lock()
	r.suppressions[rhythmHash] = expiry
	r.mu.Unlock()
	log.Info().Str("rhythmHash", rhythmHash).Int64("durationSec", durationSec).Msg("Suppressed fingerprint")
}

// DeleteSuppression removes a suppression regardless of expiry.
func (r *Registry) DeleteSuppression(rhythmHash string) {
	r.mu.Lock()
	delete(r.suppressions, rhythmHash)
	r.mu.Unlock()
	log.Info().Str("rhythmHash", rhythmHash).Msg("Removed suppression")
}

// Patch durably allow-lists a fingerprint. A previously deactivated row is
// reactivated. On success the in-memory mirror is updated and a regression
// eval case is captured; eval failures are logged, never propagated.
func (r *Registry) Patch(rhythmHash, reason string, contextLogs []string) error {
	_, err := r.db.Exec(
		`INSERT INTO patch_registry (rhythm_hash, rule, reason, created_ts, is_active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(rhythm_hash) DO UPDATE SET is_active = 1`,
		rhythmHash, RuleAllowList, reason, r.now().Unix())
	if err != nil {
		return fmt.Errorf("persist patch for %s: %w", rhythmHash, err)
	}

	r.mu.Lock()
	r.activePatches[rhythmHash] = struct{}{}
	r.mu.Unlock()
	log.Info().Str("rhythmHash", rhythmHash).Msg("Patched fingerprint as permanently allowed")

	if r.evals != nil && len(contextLogs) > 0 {
		if path, err := r.evals.Write(rhythmHash, contextLogs); err != nil {
			log.Error().Err(err).Str("rhythmHash", rhythmHash).Msg("Failed to capture eval case")
		} else {
			log.Info().Str("path", path).Msg("Captured eval regression case")
		}
	}
	return nil
}

// DeletePatch deactivates a durable patch and drops it from the mirror.
func (r *Registry) DeletePatch(rhythmHash string) error {
	_, err := r.db.Exec(`UPDATE patch_registry SET is_active = 0 WHERE rhythm_hash = ?`, rhythmHash)
	if err != nil {
		return fmt.Errorf("deactivate patch for %s: %w", rhythmHash, err)
	}

	r.mu.Lock()
	delete(r.activePatches, rhythmHash)
	r.mu.Unlock()
	log.Info().Str("rhythmHash", rhythmHash).Msg("Deactivated patch")
	return nil
}

// Rules snapshots active patches (from the durable store) and non-expired
// suppressions.
func (r *Registry) Rules() (RuleSet, error) {
	set := RuleSet{Patches: []PatchRule{}, Suppressions: []SuppressionEntry{}}

	rows, err := r.db.Query(
		`SELECT rhythm_hash, rule, reason, created_ts FROM patch_registry WHERE is_active = 1`)
	if err != nil {
		return set, fmt.Errorf("list patches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p PatchRule
		var reason sql.NullString
		if err := rows.Scan(&p.RhythmHash, &p.Rule, &reason, &p.CreatedTS); err != nil {
			return set, fmt.Errorf("scan patch row: %w", err)
		}
		p.Reason = reason.String
		set.Patches = append(set.Patches, p)
	}
	if err := rows.Err(); err != nil {
		return set, fmt.Errorf("iterate patch rows: %w", err)
	}

	now := r.now().Unix()
	r.mu.RLock()
	for hash, expiry := range r.suppressions {
		if expiry > now {
			set.Suppressions = append(set.Suppressions, SuppressionEntry{RhythmHash: hash, ExpiresAt: expiry})
		}
	}
	r.mu.RUnlock()
	return set, nil
}
