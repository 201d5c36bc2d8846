// Package disambiguate proposes which extra constraints would separate tied
// candidates.
package disambiguate

import (
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
)

// Suggestions, in the order they are proposed.
const (
	SpecificText  = "specific text content"
	SpecificClass = "more specific class"
	PositionIndex = "positional index"
	PathPrefix    = "path prefix or ancestor"
	NearbyAnchor  = "nearby text anchor"
	Coordinate    = "coordinate"
)

// closeConfidence is the spread under which candidates count as tied.
const closeConfidence = 0.1

// Suggest is a pure function of the candidate set.
func Suggest(cands []scoring.Candidate) []string {
	if len(cands) == 0 {
		return nil
	}

	var out []string
	if !allEqual(cands, func(c scoring.Candidate) string { return c.Text }) {
		out = append(out, SpecificText)
	}
	if !allEqual(cands, func(c scoring.Candidate) string { return c.Class }) {
		out = append(out, SpecificClass)
	}
	if len(cands) > 1 {
		out = append(out, PositionIndex, PathPrefix, NearbyAnchor)
	}

	lo, hi := cands[0].Confidence, cands[0].Confidence
	for _, c := range cands[1:] {
		lo = min(lo, c.Confidence)
		hi = max(hi, c.Confidence)
	}
	if len(cands) > 1 && hi-lo <= closeConfidence+1e-9 {
		out = append(out, Coordinate)
	}
	return out
}

func allEqual(cands []scoring.Candidate, key func(scoring.Candidate) string) bool {
	first := key(cands[0])
	for _, c := range cands[1:] {
		if key(c) != first {
			return false
		}
	}
	return true
}
