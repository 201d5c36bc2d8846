package rank

import (
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/disambiguate"
	"github.com/devicelab-dev/uiresolve/pkg/safety"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
)

// Defaults for Policy.
const (
	DefaultMinConfidence = 0.5
)

// Policy is the gate a ranked list must pass.
type Policy struct {
	MinConfidence     float64
	RequireUniqueness bool
	ForbidContainers  bool
}

// DefaultPolicy returns the standard gate.
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:     DefaultMinConfidence,
		RequireUniqueness: true,
		ForbidContainers:  true,
	}
}

// Decision is a candidate that passed every gate.
type Decision struct {
	Winner     scoring.Candidate   `json:"winner"`
	Coordinate core.Point          `json:"coordinate"`
	Passed     []scoring.Candidate `json:"passed"`
}

// Decide applies the confidence threshold, the uniqueness check and the
// safety check, in that order, to cands sorted best first. Passed holds
// the candidates above threshold even when an error is returned.
func Decide(cands []scoring.Candidate, screen core.Size, p Policy) (*Decision, error) {
	passed := scoring.RetainPassed(cands, p.MinConfidence)
	d := &Decision{Passed: passed}

	if len(passed) == 0 {
		best := 0.0
		if len(cands) > 0 {
			best = cands[0].Confidence
		}
		return d, core.ErrNoCandidateAboveThreshold.
			WithMessagef("best of %d candidates scored %.2f, need %.2f", len(cands), best, p.MinConfidence).
			WithDetails(map[string]interface{}{"candidates": len(cands), "best": best, "min": p.MinConfidence})
	}

	if p.RequireUniqueness && !safety.Unique(passed, p.MinConfidence) {
		tied := contenders(passed)
		return d, core.ErrAmbiguousMatch.
			WithMessagef("%d candidates within %.2f of the best (%.2f)", len(tied), safety.UniqueGap, passed[0].Confidence).
			WithDetails(map[string]interface{}{"candidates": len(tied)}).
			WithSuggestions(disambiguate.Suggest(tied))
	}

	top := passed[0]
	if err := safety.ValidateBounds(top.Bounds, screen); err != nil {
		return d, err
	}
	if err := safety.Validate(top.Bounds, top.Class, screen, p.ForbidContainers); err != nil {
		return d, err
	}

	d.Winner = top
	d.Coordinate = top.Bounds.Center()
	return d, nil
}

// contenders are the candidates close enough to the best to be confused with it.
func contenders(passed []scoring.Candidate) []scoring.Candidate {
	n := 1
	for n < len(passed) && passed[0].Confidence-passed[n].Confidence < safety.UniqueGap {
		n++
	}
	return passed[:n]
}
