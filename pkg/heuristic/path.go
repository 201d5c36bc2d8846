package heuristic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// PathStrategy names how a path expression was derived.
type PathStrategy string

const (
	PathResourceID  PathStrategy = "resource_id"
	PathContentDesc PathStrategy = "content_desc"
	PathText        PathStrategy = "text"
	PathClass       PathStrategy = "class"
	PathComposite   PathStrategy = "composite"
	PathFallback    PathStrategy = "fallback"
)

const pathGate = 0.6

// PathCandidate is one generated path expression.
type PathCandidate struct {
	Expr        string       `json:"expr"`
	Strategy    PathStrategy `json:"strategy"`
	Confidence  float64      `json:"confidence"`
	Description string       `json:"description"`
}

// PathGenerator ranks path expressions that would locate a node.
type PathGenerator struct {
	rates map[PathStrategy]float64
}

// NewPathGenerator creates a generator with the standard per-strategy rates.
func NewPathGenerator() *PathGenerator {
	return &PathGenerator{rates: map[PathStrategy]float64{
		PathResourceID:  0.90,
		PathContentDesc: 0.85,
		PathText:        0.75,
		PathClass:       0.65,
		PathComposite:   0.80,
		PathFallback:    0.60,
	}}
}

// Generate returns candidates for n, best first. Invalid expressions are dropped.
func (g *PathGenerator) Generate(n *hierarchy.Node) []PathCandidate {
	var out []PathCandidate
	add := func(s PathStrategy, factor float64, expr, desc string) {
		out = append(out, PathCandidate{Expr: expr, Strategy: s, Confidence: g.rates[s] * factor, Description: desc})
	}

	if id := n.ResourceID; id != "" {
		add(PathResourceID, 1, fmt.Sprintf("//*[@resource-id=%s]", quote(id)), "resource-id equals")
		add(PathResourceID, 0.95, fmt.Sprintf("(//*[@resource-id=%s])[1]", quote(id)), "first with resource-id")
	}
	if d := n.ContentDesc; d != "" {
		add(PathContentDesc, 1, fmt.Sprintf("//*[@content-desc=%s]", quote(d)), "content-desc equals")
		if len(d) > 3 {
			add(PathContentDesc, 0.8, fmt.Sprintf("//*[contains(@content-desc, %s)]", quote(d)), "content-desc contains")
		}
	}
	if t := n.Text; t != "" {
		add(PathText, 1, fmt.Sprintf("//*[@text=%s]", quote(t)), "text equals")
		add(PathText, 0.95, fmt.Sprintf("//*[normalize-space(@text)=%s]", quote(strings.TrimSpace(t))), "normalized text equals")
		if len(t) > 5 {
			add(PathText, 0.7, fmt.Sprintf("//*[contains(@text, %s)]", quote(t)), "text contains")
		}
	}
	if c := n.Class; c != "" {
		add(PathClass, 0.6, fmt.Sprintf("//*[@class=%s]", quote(c)), "class equals")
		if idx, err := strconv.Atoi(n.Attrs["index"]); err == nil {
			add(PathClass, 0.8, fmt.Sprintf("(//*[@class=%s])[%d]", quote(c), idx+1), "class with index")
		}

		if n.ResourceID != "" {
			add(PathComposite, 1, fmt.Sprintf("//*[@resource-id=%s and @class=%s]", quote(n.ResourceID), quote(c)), "resource-id and class")
		}
		if n.Text != "" {
			add(PathComposite, 0.9, fmt.Sprintf("//*[@text=%s and @class=%s]", quote(n.Text), quote(c)), "text and class")
		}
		if n.ContentDesc != "" {
			add(PathComposite, 0.95, fmt.Sprintf("//*[@content-desc=%s and @class=%s]", quote(n.ContentDesc), quote(c)), "content-desc and class")
		}
	}
	if !n.Bounds.IsEmpty() {
		b := n.Bounds.String()
		add(PathFallback, 0.5, fmt.Sprintf("//*[@bounds=%s]", quote(b)), "bounds equals")
		if n.Class != "" {
			add(PathFallback, 0.7, fmt.Sprintf("//*[@class=%s and @bounds=%s]", quote(n.Class), quote(b)), "class and bounds")
		}
	}

	valid := out[:0]
	for _, c := range out {
		if ValidPath(c.Expr) {
			valid = append(valid, c)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Confidence > valid[j].Confidence })
	return valid
}

// Match reports the best candidate for n.
func (g *PathGenerator) Match(n *hierarchy.Node) Result {
	r := Result{Matcher: MatcherPath}
	cands := g.Generate(n)
	if len(cands) == 0 {
		r.Explain = "no path expression"
		return r
	}
	best := cands[0]
	r.Confidence = best.Confidence
	r.PassedGate = best.Confidence > pathGate
	r.Explain = fmt.Sprintf("%s (%s)", best.Expr, best.Strategy)
	return r
}

// ValidPath checks that an expression starts like a path and that its
// brackets and quotes balance.
func ValidPath(expr string) bool {
	if expr == "" || strings.ContainsAny(expr, "\r\n") {
		return false
	}
	if !strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, "(") {
		return false
	}

	square, paren := 0, 0
	single, double := false, false
	for _, r := range expr {
		switch {
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case single || double:
		case r == '[':
			square++
		case r == ']':
			square--
		case r == '(':
			paren++
		case r == ')':
			paren--
		}
		if square < 0 || paren < 0 {
			return false
		}
	}
	return square == 0 && paren == 0 && !single && !double
}

// quote renders a string literal, switching to double quotes when the value
// holds a single quote.
func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}
