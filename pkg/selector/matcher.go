package selector

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Exactness credited per match mode when the value is not literally equal.
const (
	ContainsExactness = 0.85
	RegexExactness    = 0.9
)

// regexTimeout bounds a single pattern evaluation.
const regexTimeout = 100 * time.Millisecond

type fieldRule struct {
	field string
	value string
	mode  MatchMode
	re    *regexp2.Regexp
}

type patternRule struct {
	field string
	res   []*regexp2.Regexp
}

type wordRule struct {
	field string
	words []string
}

// Matcher is a compiled Spec. Patterns are compiled once in Compile.
type Matcher struct {
	spec          Spec
	fields        []fieldRule
	includes      []wordRule
	excludes      []wordRule
	regexIncludes []patternRule
	regexExcludes []patternRule
}

// Match describes how a node satisfied a Matcher.
type Match struct {
	Exactness float64  // mean per-field exactness in [0,1]
	Keys      []string // fields that carried a value
}

// Compile validates a Spec and compiles its patterns.
func Compile(spec Spec) (*Matcher, error) {
	if spec.IsEmpty() {
		return nil, core.ErrInvalidSpec.WithMessage("empty target specification")
	}

	m := &Matcher{spec: spec}

	for _, f := range spec.SetFields() {
		rule := fieldRule{field: f, value: spec.Value(f), mode: spec.Mode(f)}
		switch rule.mode {
		case ModeEquals, ModeContains:
		case ModeRegex:
			re, err := compilePattern(rule.value)
			if err != nil {
				return nil, invalidPattern(f, rule.value, err)
			}
			rule.re = re
		default:
			return nil, core.ErrInvalidSpec.WithMessagef("unknown match mode %q for %s", rule.mode, f)
		}
		m.fields = append(m.fields, rule)
	}

	for _, f := range sortedKeys(spec.Includes) {
		m.includes = append(m.includes, wordRule{field: f, words: spec.Includes[f]})
	}
	for _, f := range sortedKeys(spec.Excludes) {
		m.excludes = append(m.excludes, wordRule{field: f, words: spec.Excludes[f]})
	}

	var err error
	if m.regexIncludes, err = compilePatternRules(spec.RegexIncludes); err != nil {
		return nil, err
	}
	if m.regexExcludes, err = compilePatternRules(spec.RegexExcludes); err != nil {
		return nil, err
	}

	return m, nil
}

func compilePattern(p string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(p, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexTimeout
	return re, nil
}

func compilePatternRules(rules map[string][]string) ([]patternRule, error) {
	var out []patternRule
	for _, f := range sortedKeys(rules) {
		rule := patternRule{field: f}
		for _, p := range rules[f] {
			re, err := compilePattern(p)
			if err != nil {
				return nil, invalidPattern(f, p, err)
			}
			rule.res = append(rule.res, re)
		}
		out = append(out, rule)
	}
	return out, nil
}

func invalidPattern(field, pattern string, err error) error {
	return core.ErrInvalidSpec.
		WithMessagef("invalid pattern for %s", field).
		WithDetails(map[string]interface{}{"field": field, "pattern": pattern}).
		WithCause(err)
}

// Spec returns the specification the matcher was compiled from.
func (m *Matcher) Spec() Spec {
	return m.spec
}

// Keys returns the fields that carry a value.
func (m *Matcher) Keys() []string {
	keys := make([]string, len(m.fields))
	for i, f := range m.fields {
		keys[i] = f.field
	}
	return keys
}

// Match tests a node. The boolean is false when any field, state filter,
// include or exclude rule rejects it.
func (m *Matcher) Match(n *hierarchy.Node) (Match, bool) {
	if m.spec.Clickable != nil && n.Clickable != *m.spec.Clickable {
		return Match{}, false
	}
	if m.spec.Enabled != nil && n.Enabled != *m.spec.Enabled {
		return Match{}, false
	}

	total := 0.0
	for _, f := range m.fields {
		score, ok := f.match(n.Attr(f.field))
		if !ok {
			return Match{}, false
		}
		total += score
	}

	// Every include word must appear; any exclude word rejects.
	for _, r := range m.includes {
		v := n.Attr(r.field)
		for _, w := range r.words {
			if !strings.Contains(v, w) {
				return Match{}, false
			}
		}
	}
	for _, r := range m.excludes {
		v := n.Attr(r.field)
		for _, w := range r.words {
			if w != "" && strings.Contains(v, w) {
				return Match{}, false
			}
		}
	}
	for _, r := range m.regexIncludes {
		v := n.Attr(r.field)
		for _, re := range r.res {
			if ok, err := re.MatchString(v); err != nil || !ok {
				return Match{}, false
			}
		}
	}
	// A pattern that errors or times out excludes.
	for _, r := range m.regexExcludes {
		v := n.Attr(r.field)
		for _, re := range r.res {
			if ok, err := re.MatchString(v); err != nil || ok {
				return Match{}, false
			}
		}
	}

	exactness := 1.0
	if len(m.fields) > 0 {
		exactness = total / float64(len(m.fields))
	}
	return Match{Exactness: exactness, Keys: m.Keys()}, true
}

func (f fieldRule) match(actual string) (float64, bool) {
	if actual == f.value {
		return 1, true
	}
	switch f.mode {
	case ModeContains:
		if actual != "" && strings.Contains(actual, f.value) {
			return ContainsExactness, true
		}
	case ModeRegex:
		// A pattern that errors or times out counts as no match
		if ok, err := f.re.MatchString(actual); err == nil && ok {
			return RegexExactness, true
		}
	}
	return 0, false
}

// Candidates narrows a search with the tree's exact-value indexes when an
// equals-mode field allows it, taking the smallest bucket. Otherwise it
// returns every node.
func (m *Matcher) Candidates(tree *hierarchy.Tree) []hierarchy.NodeID {
	var best []hierarchy.NodeID
	indexed := false
	for _, f := range m.fields {
		if f.mode != ModeEquals {
			continue
		}
		var ids []hierarchy.NodeID
		switch f.field {
		case hierarchy.AttrResourceID:
			ids = tree.ByResourceID(f.value)
		case hierarchy.AttrText:
			ids = tree.ByText(f.value)
		case hierarchy.AttrContentDesc:
			ids = tree.ByContentDesc(f.value)
		case hierarchy.AttrClass:
			ids = tree.ByClass(f.value)
		default:
			continue
		}
		if !indexed || len(ids) < len(best) {
			best, indexed = ids, true
		}
	}
	if !indexed {
		return tree.All()
	}
	return best
}

// Filter returns the ids in ids that match, with their match details.
func (m *Matcher) Filter(tree *hierarchy.Tree, ids []hierarchy.NodeID) ([]hierarchy.NodeID, []Match) {
	var (
		out     []hierarchy.NodeID
		matches []Match
	)
	for _, id := range ids {
		if mt, ok := m.Match(tree.Node(id)); ok {
			out = append(out, id)
			matches = append(matches, mt)
		}
	}
	return out, matches
}

// String describes the matcher for logs.
func (m *Matcher) String() string {
	return fmt.Sprintf("selector(%s)", m.spec.DescribeQuoted())
}
