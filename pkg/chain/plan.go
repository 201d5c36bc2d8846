// Package chain runs decision-chain plans: ordered strategy variants tried
// until one resolves to a unique, safe target.
package chain

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/uiresolve/pkg/heuristic"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/selector"
)

// Kind names how a variant locates its target. The set is closed.
type Kind string

const (
	KindSelfID                      Kind = "self_id"
	KindSelfDesc                    Kind = "self_desc"
	KindChildToParent               Kind = "child_to_parent"
	KindRegionTextToParent          Kind = "region_text_to_parent"
	KindRegionLocalIndexWithCheck   Kind = "region_local_index_with_check"
	KindNeighborRelative            Kind = "neighbor_relative"
	KindGlobalIndexWithStrongChecks Kind = "global_index_with_strong_checks"
	KindBoundsTap                   Kind = "bounds_tap"
)

// Kinds lists every variant kind, strongest first.
var Kinds = []Kind{
	KindSelfID,
	KindSelfDesc,
	KindChildToParent,
	KindRegionTextToParent,
	KindRegionLocalIndexWithCheck,
	KindNeighborRelative,
	KindGlobalIndexWithStrongChecks,
	KindBoundsTap,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Regional reports whether the kind only searches inside a container.
func (k Kind) Regional() bool {
	return k == KindRegionTextToParent || k == KindRegionLocalIndexWithCheck
}

// UnmarshalYAML accepts "self-id", "SELF_ID" and "self_id" alike.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*k = Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return nil
}

// Scope values.
const (
	ScopeGlobal   = "global"
	ScopeRegional = "regional"
)

// TextMatcher matches visible text. A plain string decodes to Equals.
type TextMatcher struct {
	Equals   string   `yaml:"equals" json:"equals,omitempty"`
	Contains string   `yaml:"contains" json:"contains,omitempty"`
	InList   []string `yaml:"in_list" json:"inList,omitempty"` // translations of the same label
}

// UnmarshalYAML allows TextMatcher to be unmarshaled from a string or a map.
func (m *TextMatcher) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = TextMatcher{Equals: node.Value}
		return nil
	}
	type raw TextMatcher
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	*m = TextMatcher(r)
	return nil
}

// IsEmpty returns true if no text constraint is set.
func (m TextMatcher) IsEmpty() bool {
	return m.Equals == "" && m.Contains == "" && len(m.InList) == 0
}

// Match returns the exactness of s against the matcher.
func (m TextMatcher) Match(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if m.Equals != "" && s == m.Equals {
		return 1, true
	}
	for _, alt := range m.InList {
		if s == alt {
			return 1, true
		}
	}
	if m.Contains != "" && strings.Contains(s, m.Contains) {
		return selector.ContainsExactness, true
	}
	return 0, false
}

// NodeSelector constrains one node of a variant.
type NodeSelector struct {
	Class       string      `yaml:"class" json:"class,omitempty"`
	ResourceID  string      `yaml:"resource_id" json:"resourceId,omitempty"`
	Text        TextMatcher `yaml:"text" json:"text,omitempty"`
	ContentDesc string      `yaml:"content_desc" json:"contentDesc,omitempty"`
	Clickable   *bool       `yaml:"clickable" json:"clickable,omitempty"`
	Enabled     *bool       `yaml:"enabled" json:"enabled,omitempty"`
}

// IsEmpty returns true if the selector constrains nothing.
func (s *NodeSelector) IsEmpty() bool {
	return s == nil || (s.Class == "" && s.ResourceID == "" && s.Text.IsEmpty() &&
		s.ContentDesc == "" && s.Clickable == nil && s.Enabled == nil)
}

// Match tests n. Exactness is the mean over the attribute constraints; keys
// names the attributes that were constrained.
func (s *NodeSelector) Match(n *hierarchy.Node) (float64, []string, bool) {
	if s == nil {
		return 1, nil, true
	}
	if s.Clickable != nil && n.Clickable != *s.Clickable {
		return 0, nil, false
	}
	if s.Enabled != nil && n.Enabled != *s.Enabled {
		return 0, nil, false
	}

	var (
		total float64
		keys  []string
	)
	constraints := []struct {
		key   string
		set   bool
		match func() (float64, bool)
	}{
		{hierarchy.AttrResourceID, s.ResourceID != "", func() (float64, bool) { return matchResourceID(s.ResourceID, n.ResourceID) }},
		{hierarchy.AttrContentDesc, s.ContentDesc != "", func() (float64, bool) { return matchDesc(s.ContentDesc, n.ContentDesc) }},
		{hierarchy.AttrText, !s.Text.IsEmpty(), func() (float64, bool) { return s.Text.Match(n.Text) }},
		{hierarchy.AttrClass, s.Class != "", func() (float64, bool) { return matchClass(s.Class, n.Class) }},
	}
	for _, c := range constraints {
		if !c.set {
			continue
		}
		score, ok := c.match()
		if !ok {
			return 0, nil, false
		}
		total += score
		keys = append(keys, c.key)
	}

	if len(keys) == 0 {
		return 1, nil, true
	}
	return total / float64(len(keys)), keys, true
}

// matchResourceID accepts the full id or its name without the package prefix.
func matchResourceID(want, got string) (float64, bool) {
	switch {
	case got == "":
		return 0, false
	case got == want:
		return 1, true
	case heuristic.Name(got) == heuristic.Name(want):
		return 1, true
	}
	return 0, false
}

func matchClass(want, got string) (float64, bool) {
	if got == want || hierarchy.ShortClass(got) == want {
		return 1, true
	}
	return 0, false
}

// matchDesc matches the whole description, or its leading label when the
// description carries a role suffix such as "Me, button".
func matchDesc(want, got string) (float64, bool) {
	if got == "" {
		return 0, false
	}
	if got == want {
		return 1, true
	}
	if label := descLabel(want); label != "" && (descLabel(got) == label || strings.Contains(got, label)) {
		return selector.ContainsExactness, true
	}
	return 0, false
}

var descSeparators = []string{"，", ",", "、"}

var descSuffixes = []string{"按钮", "，双击激活", "，双击打开", "编辑框", "输入框"}

func descLabel(desc string) string {
	for _, sep := range descSeparators {
		if i := strings.Index(desc, sep); i >= 0 {
			return strings.TrimSpace(desc[:i])
		}
	}
	for _, suffix := range descSuffixes {
		desc = strings.ReplaceAll(desc, suffix, "")
	}
	return strings.TrimSpace(desc)
}

// Selectors are the parent, child and self constraints of a variant.
type Selectors struct {
	Parent *NodeSelector `yaml:"parent" json:"parent,omitempty"`
	Child  *NodeSelector `yaml:"child" json:"child,omitempty"`
	Self   *NodeSelector `yaml:"self" json:"self,omitempty"`
}

// Relation values for StructureHint.
const (
	RelationParentChild        = "parent_child"
	RelationAncestorDescendant = "ancestor_descendant"
	RelationSibling            = "sibling"
)

// Direction values for StructureHint.
const (
	DirectionUp    = "up"
	DirectionDown  = "down"
	DirectionLeft  = "left"
	DirectionRight = "right"
	DirectionNext  = "next"
	DirectionPrev  = "prev"
)

// StructureHint relates the anchor a variant finds to the node it acts on.
type StructureHint struct {
	Relation  string `yaml:"relation" json:"relation"`
	Direction string `yaml:"direction" json:"direction,omitempty"`
	Levels    int    `yaml:"levels" json:"levels,omitempty"`
}

// IndexHint picks the n-th match, counting from 1.
type IndexHint struct {
	Local  int `yaml:"local_index" json:"localIndex,omitempty"`
	Global int `yaml:"global_index" json:"globalIndex,omitempty"`
}

// Light check types.
const (
	CheckChildTextContains    = "child_text_contains"
	CheckChildTextContainsAny = "child_text_contains_any"
	CheckClickable            = "clickable"
	CheckEnabled              = "enabled"
)

// LightCheck is a cheap confirmation run on a variant's winner.
type LightCheck struct {
	Type   string   `yaml:"check_type" json:"checkType"`
	Value  string   `yaml:"value" json:"value,omitempty"`
	Values []string `yaml:"values" json:"values,omitempty"`
}

// Variant is one strategy in a plan.
type Variant struct {
	ID            string         `yaml:"id" json:"id"`
	Kind          Kind           `yaml:"kind" json:"kind"`
	Scope         string         `yaml:"scope" json:"scope,omitempty"`
	ContainerPath string         `yaml:"container_path" json:"containerPath,omitempty"`
	Selectors     Selectors      `yaml:"selectors" json:"selectors"`
	Structure     *StructureHint `yaml:"structure" json:"structure,omitempty"`
	Index         *IndexHint     `yaml:"index" json:"index,omitempty"`
	Checks        []LightCheck   `yaml:"checks" json:"checks,omitempty"`
	StaticScore   float64        `yaml:"static_score" json:"staticScore"`
	Explain       string         `yaml:"explain" json:"explain,omitempty"`
	Bounds        string         `yaml:"bounds" json:"bounds,omitempty"` // "[l,t][r,b]", bounds_tap only
}

// Screen describes the device the plan was recorded on.
type Screen struct {
	Width       int    `yaml:"width" json:"width"`
	Height      int    `yaml:"height" json:"height"`
	DPI         int    `yaml:"dpi" json:"dpi,omitempty"`
	Orientation string `yaml:"orientation" json:"orientation,omitempty"`
}

// Container anchor kinds.
const (
	AnchorByID             = "id"
	AnchorByPath           = "path"
	AnchorByClassStructure = "class_structure"
)

// ContainerAnchor names the container shared by regional variants.
type ContainerAnchor struct {
	By           string `yaml:"by" json:"by"`
	Value        string `yaml:"value" json:"value"`
	FallbackPath string `yaml:"fallback_path" json:"fallbackPath,omitempty"`
}

// Context is what the recorder knew about the screen.
type Context struct {
	Package         string           `yaml:"package" json:"package,omitempty"`
	Activity        string           `yaml:"activity" json:"activity,omitempty"`
	Screen          *Screen          `yaml:"screen" json:"screen,omitempty"`
	ContainerAnchor *ContainerAnchor `yaml:"container_anchor" json:"containerAnchor,omitempty"`
}

// StrategyConfig controls execution. Unset fields take the executor defaults.
type StrategyConfig struct {
	Selected             string   `yaml:"selected" json:"selected,omitempty"`
	AllowFallback        *bool    `yaml:"allow_fallback" json:"allowFallback,omitempty"`
	TimeBudgetMS         int      `yaml:"time_budget_ms" json:"timeBudgetMs,omitempty"`
	PerCandidateBudgetMS int      `yaml:"per_candidate_budget_ms" json:"perCandidateBudgetMs,omitempty"`
	RequireUniqueness    *bool    `yaml:"require_uniqueness" json:"requireUniqueness,omitempty"`
	MinConfidence        *float64 `yaml:"min_confidence" json:"minConfidence,omitempty"`
	ForbidContainers     *bool    `yaml:"forbid_containers" json:"forbidContainers,omitempty"`
}

// Fallback reports whether variants other than the selected one may run.
func (c StrategyConfig) Fallback() bool {
	return c.AllowFallback == nil || *c.AllowFallback
}

// Plan is an ordered list of variants with shared context.
type Plan struct {
	SourcePath string         `yaml:"-" json:"-"`
	Strategy   StrategyConfig `yaml:"strategy" json:"strategy"`
	Context    Context        `yaml:"context" json:"context"`
	Variants   []Variant      `yaml:"plan" json:"plan"`
}

// Variant returns the variant with the given id.
func (p *Plan) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Order returns the variants in execution order: the selected variant
// first, then the rest in plan order. Without fallback only the selected
// variant (or the first, when none is selected) runs.
func (p *Plan) Order() []*Variant {
	var out []*Variant
	sel, hasSel := p.Variant(p.Strategy.Selected)
	if hasSel {
		out = append(out, sel)
	}
	if !p.Strategy.Fallback() {
		if !hasSel && len(p.Variants) > 0 {
			out = append(out, &p.Variants[0])
		}
		return out
	}
	for i := range p.Variants {
		if hasSel && &p.Variants[i] == sel {
			continue
		}
		out = append(out, &p.Variants[i])
	}
	return out
}
