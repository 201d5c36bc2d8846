// Package scoring combines per-signal scores into one confidence and ranks
// candidates.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Mode selects a weight profile.
type Mode string

const (
	ModeSpeed   Mode = "speed"
	ModeDefault Mode = "default"
	ModeRobust  Mode = "robust"
)

// ParseMode validates a mode name. Empty means ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDefault, nil
	case ModeSpeed, ModeDefault, ModeRobust:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want speed, default or robust)", s)
}

// Signal names one scoring input.
type Signal int

const (
	SignalTemplate Signal = iota
	SignalSkeleton
	SignalField
	SignalGeometry
	numSignals
)

// String returns the string representation of Signal
func (s Signal) String() string {
	switch s {
	case SignalTemplate:
		return "template"
	case SignalSkeleton:
		return "skeleton"
	case SignalField:
		return "field"
	case SignalGeometry:
		return "geometry"
	}
	return "unknown"
}

// Weights are the per-signal weights of a profile.
type Weights struct {
	Template float64 `json:"template"`
	Skeleton float64 `json:"skeleton"`
	Field    float64 `json:"field"`
	Geometry float64 `json:"geometry"`
}

func (w Weights) of(s Signal) float64 {
	switch s {
	case SignalTemplate:
		return w.Template
	case SignalSkeleton:
		return w.Skeleton
	case SignalField:
		return w.Field
	case SignalGeometry:
		return w.Geometry
	}
	return 0
}

// WeightsFor returns the profile for a mode; unknown modes get the default.
func WeightsFor(m Mode) Weights {
	switch m {
	case ModeSpeed:
		return Weights{Template: 0.10, Skeleton: 0.35, Field: 0.40, Geometry: 0.15}
	case ModeRobust:
		return Weights{Template: 0.35, Skeleton: 0.25, Field: 0.25, Geometry: 0.15}
	default:
		return Weights{Template: 0.30, Skeleton: 0.20, Field: 0.35, Geometry: 0.15}
	}
}

// Scores holds the signals evaluated for one candidate. A signal that was
// not evaluated is absent, which differs from a score of zero.
type Scores struct {
	values [numSignals]float64
	set    [numSignals]bool
}

// Set records a signal score, clamped to [0,1].
func (s *Scores) Set(sig Signal, v float64) {
	s.values[sig] = max(0, min(1, v))
	s.set[sig] = true
}

// Get returns a signal score and whether it was evaluated.
func (s Scores) Get(sig Signal) (float64, bool) {
	return s.values[sig], s.set[sig]
}

// Map returns the evaluated signals by name.
func (s Scores) Map() map[string]float64 {
	out := make(map[string]float64)
	for sig := Signal(0); sig < numSignals; sig++ {
		if s.set[sig] {
			out[sig.String()] = s.values[sig]
		}
	}
	return out
}

// Combine is the weighted sum of the evaluated signals divided by their
// weights, so a missing signal neither helps nor hurts. Signals are summed
// in a fixed order.
func Combine(s Scores, w Weights) float64 {
	var sum, total float64
	for sig := Signal(0); sig < numSignals; sig++ {
		if !s.set[sig] {
			continue
		}
		sum += s.values[sig] * w.of(sig)
		total += w.of(sig)
	}
	if total <= 0 {
		return 0
	}
	return max(0, min(1, sum/total))
}

// Candidate is a node under consideration with its scores.
type Candidate struct {
	Node       hierarchy.NodeID   `json:"node"`
	Bounds     core.Bounds        `json:"bounds"`
	Scores     Scores             `json:"-"`
	Signals    map[string]float64 `json:"signals"`
	Confidence float64            `json:"confidence"`
	Passed     bool               `json:"passed"`
	Text       string             `json:"text,omitempty"`
	Class      string             `json:"class,omitempty"`
	Package    string             `json:"package,omitempty"`
	Path       string             `json:"path,omitempty"`
	Explain    []string           `json:"explain,omitempty"`
}

// NewCandidate snapshots the node's attributes.
func NewCandidate(tree *hierarchy.Tree, id hierarchy.NodeID) Candidate {
	n := tree.Node(id)
	return Candidate{
		Node:    id,
		Bounds:  n.Bounds,
		Text:    n.Label(),
		Class:   n.Class,
		Package: n.Package,
		Path:    n.Path,
	}
}

// Finish combines the candidate's scores with w and fills Signals.
func (c *Candidate) Finish(w Weights) {
	c.Confidence = Combine(c.Scores, w)
	c.Signals = c.Scores.Map()
}

// Explainf appends a reason.
func (c *Candidate) Explainf(format string, args ...interface{}) {
	c.Explain = append(c.Explain, fmt.Sprintf(format, args...))
}

// RetainPassed marks candidates at or above threshold and returns them.
func RetainPassed(cands []Candidate, threshold float64) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Confidence >= threshold {
			c.Passed = true
			out = append(out, c)
		}
	}
	return out
}

// SortDesc orders by confidence, highest first; equal confidences keep
// document order.
func SortDesc(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		return cands[i].Node < cands[j].Node
	})
}
