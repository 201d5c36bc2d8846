package core

import (
	"fmt"
	"time"
)

// TrailEntry records one attempt made during a resolution.
type TrailEntry struct {
	VariantID  string        `json:"variantId"`
	Kind       string        `json:"kind,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Matches    int           `json:"matches"`
	Confidence float64       `json:"confidence,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// String renders the entry as "id:OUTCOME:reason".
func (t TrailEntry) String() string {
	if t.Reason == "" {
		return fmt.Sprintf("%s:%s", t.VariantID, t.Outcome)
	}
	return fmt.Sprintf("%s:%s:%s", t.VariantID, t.Outcome, t.Reason)
}

// ExecutionResult captures the complete outcome of one resolution.
type ExecutionResult struct {
	// Status
	Success     bool   `json:"success"`
	UsedVariant string `json:"usedVariant"`
	ErrorReason string `json:"errorReason,omitempty"`

	// Match
	MatchCount      int     `json:"matchCount"`
	FinalConfidence float64 `json:"finalConfidence"`
	Coordinate      *Point  `json:"coordinate,omitempty"`
	Bounds          *Bounds `json:"bounds,omitempty"`

	// Timing
	Elapsed time.Duration `json:"elapsed"`

	// Diagnostics
	Trail       []TrailEntry `json:"trail"`
	Attempted   []string     `json:"attempted,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

// Failures returns the trail entries that did not succeed.
func (r *ExecutionResult) Failures() []TrailEntry {
	var out []TrailEntry
	for _, t := range r.Trail {
		if !t.Outcome.IsSuccess() {
			out = append(out, t)
		}
	}
	return out
}

// TrailStrings renders the trail in compact "id:OUTCOME:reason" form.
func (r *ExecutionResult) TrailStrings() []string {
	out := make([]string, len(r.Trail))
	for i, t := range r.Trail {
		out[i] = t.String()
	}
	return out
}
