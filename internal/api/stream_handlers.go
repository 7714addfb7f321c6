package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const defaultTailLimit = 100

// handleStreamTail returns the last N lines of the local JSONL live log
// file, with an optional case-insensitive substring filter. When a filter
// is present at most limit*5 lines are retained while reading, keeping the
// memory bound explicit.
func (r *Router) handleStreamTail(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultTailLimit
	if s := req.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	filter := req.URL.Query().Get("filter")

	file, err := os.Open(r.liveLogPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		log.Error().Err(err).Str("path", r.liveLogPath).Msg("Live log open failed")
		writeError(w, http.StatusInternalServerError, "cannot read live log: "+err.Error())
		return
	}
	defer file.Close()

	keep := limit
	if filter != "" {
		keep = limit * 5
	}

	// Sliding window over the file: only the last `keep` lines survive.
	window := make([]string, 0, keep)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(window) == keep {
			window = append(window[1:], scanner.Text())
		} else {
			window = append(window, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Str("path", r.liveLogPath).Msg("Live log read failed")
		writeError(w, http.StatusInternalServerError, "cannot read live log: "+err.Error())
		return
	}

	needle := strings.ToLower(filter)
	results := make([]json.RawMessage, 0, limit)
	for _, line := range window {
		if needle != "" && !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			log.Debug().Str("path", r.liveLogPath).Msg("Skipping malformed live log line")
			continue
		}
		results = append(results, parsed)
	}
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	writeJSON(w, http.StatusOK, results)
}
