// Package skeleton scores candidates against declarative field rules and
// structural predicates.
package skeleton

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// FieldType names the attribute a rule compares.
type FieldType string

const (
	FieldResourceID  FieldType = "resource-id"
	FieldContentDesc FieldType = "content-desc"
	FieldText        FieldType = "text"
	FieldClass       FieldType = "class"
	FieldChildren    FieldType = "children"
	FieldBounds      FieldType = "bounds"
)

// Strategy selects how template and candidate values are compared.
type Strategy string

const (
	StrategyExact               Strategy = "exact"
	StrategyBothNonEmpty        Strategy = "both_non_empty"
	StrategyConsistentEmptiness Strategy = "consistent_emptiness"
	StrategyStructural          Strategy = "structural"
	StrategySimilarity          Strategy = "similarity"
	StrategyDisabled            Strategy = "disabled"
)

// similarityPass is the overlap needed for a similarity match to count as matched.
const similarityPass = 0.5

// ScoringRules are the constants a rule awards.
type ScoringRules struct {
	ExactMatch      float64 `yaml:"exact_match" json:"exactMatch"`
	BothNonEmpty    float64 `yaml:"both_non_empty" json:"bothNonEmpty"`
	BothEmpty       float64 `yaml:"both_empty" json:"bothEmpty"`
	MismatchPenalty float64 `yaml:"mismatch_penalty" json:"mismatchPenalty"`
}

// DefaultScoringRules returns the standard constants.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{ExactMatch: 1.0, BothNonEmpty: 0.8, BothEmpty: 0.5, MismatchPenalty: 0}
}

// FieldRule is one declarative constraint.
type FieldRule struct {
	Field       FieldType    `yaml:"field" json:"field"`
	Enabled     bool         `yaml:"enabled" json:"enabled"`
	Strategy    Strategy     `yaml:"strategy" json:"strategy"`
	Weight      float64      `yaml:"weight" json:"weight"`
	Rules       ScoringRules `yaml:"rules" json:"rules"`
	DisplayName string       `yaml:"display_name" json:"displayName,omitempty"`
}

// FieldConfig is a list of rules plus the pass threshold for the total.
type FieldConfig struct {
	Fields          []FieldRule `yaml:"fields" json:"fields"`
	GlobalThreshold float64     `yaml:"global_threshold" json:"globalThreshold"`
}

// DefaultFieldConfig suits repeated cards: same id and class, same shape,
// text presence consistent.
func DefaultFieldConfig() FieldConfig {
	r := DefaultScoringRules()
	return FieldConfig{
		Fields: []FieldRule{
			{Field: FieldResourceID, Enabled: true, Strategy: StrategyConsistentEmptiness, Weight: 1.0, Rules: r, DisplayName: "Resource ID"},
			{Field: FieldContentDesc, Enabled: true, Strategy: StrategyConsistentEmptiness, Weight: 0.5, Rules: r, DisplayName: "Content description"},
			{Field: FieldText, Enabled: true, Strategy: StrategyConsistentEmptiness, Weight: 0.5, Rules: r, DisplayName: "Text"},
			{Field: FieldClass, Enabled: true, Strategy: StrategyExact, Weight: 1.0, Rules: r, DisplayName: "Class"},
			{Field: FieldChildren, Enabled: true, Strategy: StrategyStructural, Weight: 1.0, Rules: r, DisplayName: "Children"},
			{Field: FieldBounds, Enabled: false, Strategy: StrategySimilarity, Weight: 0.5, Rules: r, DisplayName: "Size"},
		},
		GlobalThreshold: 0.5,
	}
}

// Profile is the comparable snapshot of one node.
type Profile struct {
	ResourceID  string
	ContentDesc string
	Text        string
	Class       string
	Children    []string // short classes of direct children
	Bounds      core.Bounds
}

// ProfileOf captures the fields of a node.
func ProfileOf(tree *hierarchy.Tree, id hierarchy.NodeID) Profile {
	n := tree.Node(id)
	p := Profile{
		ResourceID:  n.ResourceID,
		ContentDesc: n.ContentDesc,
		Text:        n.Text,
		Class:       n.Class,
		Bounds:      n.Bounds,
	}
	for _, c := range tree.Children(id) {
		p.Children = append(p.Children, tree.Node(c).ShortClass())
	}
	return p
}

func (p Profile) value(f FieldType) string {
	switch f {
	case FieldResourceID:
		return p.ResourceID
	case FieldContentDesc:
		return p.ContentDesc
	case FieldText:
		return p.Text
	case FieldClass:
		return p.Class
	case FieldChildren:
		return strings.Join(p.Children, ",")
	case FieldBounds:
		if p.Bounds.IsEmpty() {
			return ""
		}
		return p.Bounds.String()
	}
	return ""
}

// FieldMatch is the outcome of one rule.
type FieldMatch struct {
	Field    FieldType `json:"field"`
	Score    float64   `json:"score"`
	MaxScore float64   `json:"maxScore"`
	Matched  bool      `json:"matched"`
	Reason   string    `json:"reason"`
}

// Result is the outcome of every enabled rule.
type Result struct {
	Fields   []FieldMatch `json:"fields"`
	Total    float64      `json:"total"`
	MaxTotal float64      `json:"maxTotal"`
	Passed   bool         `json:"passed"`
}

// Normalized returns Total/MaxTotal clamped to [0,1].
func (r Result) Normalized() float64 {
	if r.MaxTotal <= 0 {
		return 0
	}
	return max(0, min(1, r.Total/r.MaxTotal))
}

// Score compares a candidate with a template profile under cfg.
func Score(template, candidate Profile, cfg FieldConfig) Result {
	var res Result
	for _, rule := range cfg.Fields {
		if !rule.Enabled || rule.Strategy == StrategyDisabled {
			continue
		}
		fm := scoreField(rule, template, candidate)
		res.Fields = append(res.Fields, fm)
		res.Total += fm.Score
		res.MaxTotal += fm.MaxScore
	}
	res.Total = min(res.Total, res.MaxTotal)
	res.Passed = res.Total >= cfg.GlobalThreshold
	return res
}

func scoreField(rule FieldRule, template, candidate Profile) FieldMatch {
	a, b := template.value(rule.Field), candidate.value(rule.Field)
	r := rule.Rules
	w := rule.Weight
	fm := FieldMatch{Field: rule.Field}

	switch rule.Strategy {
	case StrategyExact:
		fm.MaxScore = r.ExactMatch * w
		switch {
		case a != "" && a == b:
			fm.Score, fm.Matched, fm.Reason = r.ExactMatch*w, true, "exact match"
		case a == "" && b == "":
			// Partial credit, but an exact match needs a value.
			fm.Score, fm.Reason = r.BothEmpty*w, "both empty"
		case a != "" && b != "":
			fm.Score, fm.Reason = -r.MismatchPenalty*w, "values differ"
		default:
			fm.Score, fm.Reason = -r.MismatchPenalty*w, "one side empty"
		}

	case StrategyBothNonEmpty:
		fm.MaxScore = r.BothNonEmpty * w
		if a != "" && b != "" {
			fm.Score, fm.Matched, fm.Reason = r.BothNonEmpty*w, true, "both present"
		} else {
			fm.Score, fm.Reason = -r.MismatchPenalty*w, "value missing"
		}

	case StrategyConsistentEmptiness:
		fm.MaxScore = max(r.BothNonEmpty, r.BothEmpty) * w
		switch {
		case a != "" && b != "":
			fm.Score, fm.Matched, fm.Reason = r.BothNonEmpty*w, true, "both present"
		case a == "" && b == "":
			fm.Score, fm.Matched, fm.Reason = r.BothEmpty*w, true, "both empty"
		default:
			fm.Score, fm.Reason = -r.MismatchPenalty*w, "emptiness differs"
		}

	case StrategyStructural:
		fm.MaxScore = r.ExactMatch * w
		if sameShape(template.Children, candidate.Children) {
			fm.Score, fm.Matched, fm.Reason = r.ExactMatch*w, true, "same children shape"
		} else {
			fm.Score, fm.Reason = -r.MismatchPenalty*w, fmt.Sprintf("children %q vs %q", a, b)
		}

	case StrategySimilarity:
		fm.MaxScore = r.ExactMatch * w
		var sim float64
		if rule.Field == FieldBounds {
			sim = sizeSimilarity(template.Bounds, candidate.Bounds)
		} else {
			sim = Similarity(a, b)
		}
		fm.Score = r.ExactMatch * w * sim
		fm.Matched = sim >= similarityPass
		fm.Reason = fmt.Sprintf("similarity %.2f", sim)

	default:
		fm.Reason = "unknown strategy " + string(rule.Strategy)
	}

	return fm
}

func sameShape(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Similarity is the Dice coefficient over rune bigrams; single-rune strings
// compare by equality.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ga, gb := bigrams(a), bigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	counts := make(map[string]int, len(ga))
	for _, g := range ga {
		counts[g]++
	}
	shared := 0
	for _, g := range gb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ga)+len(gb))
}

func bigrams(s string) []string {
	r := []rune(strings.ToLower(s))
	if len(r) < 2 {
		return nil
	}
	out := make([]string, 0, len(r)-1)
	for i := 0; i+1 < len(r); i++ {
		out = append(out, string(r[i:i+2]))
	}
	return out
}

// sizeSimilarity compares widths and heights as ratios.
func sizeSimilarity(a, b core.Bounds) float64 {
	if a.IsEmpty() || b.IsEmpty() {
		return 0
	}
	rw := float64(min(a.Width(), b.Width())) / float64(max(a.Width(), b.Width()))
	rh := float64(min(a.Height(), b.Height())) / float64(max(a.Height(), b.Height()))
	return rw * rh
}
