package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
)

// PagedResponse is the envelope of a paginated listing
type PagedResponse struct {
	Data       []*audit.Log `json:"data"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalCount int          `json:"total_count"`
	TotalPages int          `json:"total_pages"`
}

// CleanupResponse reports the outcome of a retention cleanup
type CleanupResponse struct {
	DeletedCount int       `json:"deleted_count"`
	Cutoff       time.Time `json:"cutoff"`
	Archived     bool      `json:"archived"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates. A missing
// parameter returns ok=false.
func parseTimeParam(r *http.Request, name string) (time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return ts, true, nil
}

// parseIntParam parses a bounded integer query parameter, returning
// fallback when absent
func parseIntParam(r *http.Request, name string, fallback, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", name, min, max)
	}
	return value, nil
}

// parseBoolParam parses a boolean query parameter, returning fallback
// when absent
func parseBoolParam(r *http.Request, name string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return value, nil
}

// parseStatesParam parses the repeated state query parameter
func parseStatesParam(r *http.Request) ([]audit.State, error) {
	var states []audit.State
	for _, raw := range r.URL.Query()["state"] {
		state, err := audit.ParseState(raw)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
