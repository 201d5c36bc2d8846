package skeleton

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Severity decides what a failed predicate does to the score.
type Severity int

const (
	Soft Severity = iota // failure only withholds the predicate's weight
	Hard                 // failure zeroes the whole score
)

// String returns the string representation of Severity
func (s Severity) String() string {
	if s == Hard {
		return "hard"
	}
	return "soft"
}

// PredicateResult is the outcome of one predicate.
type PredicateResult struct {
	Name         string  `json:"name"`
	Passed       bool    `json:"passed"`
	Contribution float64 `json:"contribution"`
	Severity     string  `json:"severity"`
	Explain      string  `json:"explain"`
}

// Predicate is a structural constraint on a candidate node.
type Predicate interface {
	Name() string
	Weight() float64
	Severity() Severity
	// Holds reports whether the node satisfies the predicate, with a reason.
	Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string)
}

// SkeletonResult aggregates predicate outcomes.
type SkeletonResult struct {
	Score      float64           `json:"score"` // in [0,1]
	HardFailed bool              `json:"hardFailed"`
	Results    []PredicateResult `json:"results"`
}

// Evaluate runs every predicate against a node. Any hard failure yields 0;
// otherwise the score is the passed weight over the total weight.
func Evaluate(tree *hierarchy.Tree, id hierarchy.NodeID, preds []Predicate) SkeletonResult {
	var (
		res         SkeletonResult
		gained, all float64
	)
	for _, p := range preds {
		ok, why := p.Holds(tree, id)
		pr := PredicateResult{Name: p.Name(), Passed: ok, Severity: p.Severity().String(), Explain: why}
		if ok {
			pr.Contribution = p.Weight()
			gained += p.Weight()
		} else if p.Severity() == Hard {
			res.HardFailed = true
		}
		all += p.Weight()
		res.Results = append(res.Results, pr)
	}

	switch {
	case res.HardFailed:
		res.Score = 0
	case all > 0:
		res.Score = max(0, min(1, gained/all))
	}
	return res
}

type base struct {
	weight   float64
	severity Severity
}

func (b base) Weight() float64    { return b.weight }
func (b base) Severity() Severity { return b.severity }

// ClickableOrClickableParent holds when the node or an ancestor within
// SearchDepth levels is clickable.
type ClickableOrClickableParent struct {
	base
	SearchDepth int
}

// NewClickableOrClickableParent creates the predicate.
func NewClickableOrClickableParent(depth int, weight float64, sev Severity) *ClickableOrClickableParent {
	return &ClickableOrClickableParent{base: base{weight, sev}, SearchDepth: depth}
}

func (p *ClickableOrClickableParent) Name() string { return "clickable_or_clickable_parent" }

func (p *ClickableOrClickableParent) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	if tree.Node(id).Clickable {
		return true, "node is clickable"
	}
	if a, ok := tree.ClickableAncestor(id, p.SearchDepth); ok {
		return true, fmt.Sprintf("ancestor %s is clickable", tree.Node(a).ShortClass())
	}
	return false, fmt.Sprintf("no clickable ancestor within %d levels", p.SearchDepth)
}

// AncestorScrollableOrClass holds when an ancestor is scrollable or has one
// of the listed short class names.
type AncestorScrollableOrClass struct {
	base
	Classes []string
}

// ListClasses are the container classes AncestorScrollableOrClass accepts by default.
var ListClasses = []string{"RecyclerView", "ListView", "GridView", "ViewPager", "ScrollView", "HorizontalScrollView"}

// NewAncestorScrollableOrClass creates the predicate.
func NewAncestorScrollableOrClass(classes []string, weight float64, sev Severity) *AncestorScrollableOrClass {
	return &AncestorScrollableOrClass{base: base{weight, sev}, Classes: classes}
}

func (p *AncestorScrollableOrClass) Name() string { return "ancestor_scrollable_or_class" }

func (p *AncestorScrollableOrClass) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	for _, a := range tree.Ancestors(id) {
		n := tree.Node(a)
		if n.Scrollable {
			return true, "scrollable ancestor " + n.ShortClass()
		}
		for _, c := range p.Classes {
			if n.ShortClass() == c {
				return true, "ancestor class " + c
			}
		}
	}
	return false, "no scrollable or list ancestor"
}

// ResourceIDPredicate checks the node's resource-id.
type ResourceIDPredicate struct {
	base
	Value        string
	PresenceOnly bool
}

// NewResourceID creates the predicate. With presenceOnly any non-empty id passes.
func NewResourceID(value string, presenceOnly bool, weight float64, sev Severity) *ResourceIDPredicate {
	return &ResourceIDPredicate{base: base{weight, sev}, Value: value, PresenceOnly: presenceOnly}
}

func (p *ResourceIDPredicate) Name() string { return "resource_id" }

func (p *ResourceIDPredicate) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	rid := tree.Node(id).ResourceID
	if p.PresenceOnly {
		return rid != "", "resource-id present: " + fmt.Sprint(rid != "")
	}
	return rid == p.Value, fmt.Sprintf("resource-id %q", rid)
}

// ClassContains holds when the class contains a fragment.
type ClassContains struct {
	base
	Fragment string
}

// NewClassContains creates the predicate.
func NewClassContains(fragment string, weight float64, sev Severity) *ClassContains {
	return &ClassContains{base: base{weight, sev}, Fragment: fragment}
}

func (p *ClassContains) Name() string { return "class_contains" }

func (p *ClassContains) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	c := tree.Node(id).Class
	return strings.Contains(c, p.Fragment), fmt.Sprintf("class %q", c)
}

// MustBeEmpty holds when an attribute is empty.
type MustBeEmpty struct {
	base
	Attr string
}

// NewMustBeEmpty creates the predicate.
func NewMustBeEmpty(attr string, weight float64, sev Severity) *MustBeEmpty {
	return &MustBeEmpty{base: base{weight, sev}, Attr: attr}
}

func (p *MustBeEmpty) Name() string { return "must_be_empty(" + p.Attr + ")" }

func (p *MustBeEmpty) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	v := tree.Node(id).Attr(p.Attr)
	return v == "", fmt.Sprintf("%s=%q", p.Attr, v)
}

// DescendantCount holds when at least MinCount descendants match.
type DescendantCount struct {
	base
	ClassPattern string // substring of the class; empty matches any
	TextNonEmpty bool
	MinCount     int
}

// NewDescendantCount creates the predicate.
func NewDescendantCount(classPattern string, textNonEmpty bool, minCount int, weight float64, sev Severity) *DescendantCount {
	return &DescendantCount{base: base{weight, sev}, ClassPattern: classPattern, TextNonEmpty: textNonEmpty, MinCount: minCount}
}

func (p *DescendantCount) Name() string { return "descendant_count" }

func (p *DescendantCount) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	count := 0
	for _, d := range tree.Descendants(id) {
		n := tree.Node(d)
		if p.ClassPattern != "" && !strings.Contains(n.Class, p.ClassPattern) {
			continue
		}
		if p.TextNonEmpty && n.Text == "" {
			continue
		}
		count++
	}
	return count >= p.MinCount, fmt.Sprintf("%d matching descendants, need %d", count, p.MinCount)
}

// Enabled holds when the node is enabled.
type Enabled struct {
	base
}

// NewEnabled creates the predicate.
func NewEnabled(weight float64, sev Severity) *Enabled {
	return &Enabled{base: base{weight, sev}}
}

func (p *Enabled) Name() string { return "enabled" }

func (p *Enabled) Holds(tree *hierarchy.Tree, id hierarchy.NodeID) (bool, string) {
	if tree.Node(id).Enabled {
		return true, "enabled"
	}
	return false, "disabled"
}

// CardPredicates are the hard constraints for items of a repeated list.
func CardPredicates() []Predicate {
	return []Predicate{
		NewClickableOrClickableParent(2, 0.35, Hard),
		NewAncestorScrollableOrClass(ListClasses, 0.25, Hard),
	}
}

// TargetPredicates are the soft preferences for a single tap target.
func TargetPredicates() []Predicate {
	return []Predicate{
		NewClickableOrClickableParent(2, 0.35, Soft),
		NewEnabled(0.25, Soft),
	}
}
