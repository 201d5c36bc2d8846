package chain

import (
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/rank"
)

// liftLevels is how far a non-clickable anchor is lifted to find its tap
// target when the variant gives no structure hint.
const liftLevels = 3

// evalContext is what a variant sees while it is evaluated.
type evalContext struct {
	tree    *hierarchy.Tree
	plan    *Plan
	variant *Variant
	root    hierarchy.NodeID // search root, NoNode for the whole tree
}

// match is a variant's proposal: nodes to rank, or a raw rectangle.
type match struct {
	inputs []rank.Input
	hints  container.Hints
	direct *core.Bounds
	class  string // class of the node at direct, if any
	note   string // why inputs is empty
}

// evaluate dispatches on the variant kind. Every kind must have a case.
func evaluate(tree *hierarchy.Tree, plan *Plan, v *Variant) (match, error) {
	ctx := &evalContext{tree: tree, plan: plan, variant: v, root: hierarchy.NoNode}
	root, err := ctx.container()
	if err != nil {
		return match{}, err
	}
	ctx.root = root

	switch v.Kind {
	case KindSelfID, KindSelfDesc:
		return ctx.self()
	case KindChildToParent, KindRegionTextToParent:
		return ctx.childToParent()
	case KindRegionLocalIndexWithCheck:
		return ctx.localIndex()
	case KindNeighborRelative:
		return ctx.neighbor()
	case KindGlobalIndexWithStrongChecks:
		return ctx.globalIndex()
	case KindBoundsTap:
		return ctx.boundsTap()
	}
	return match{}, core.ErrInvalidSpec.WithMessagef("unknown variant kind %q", v.Kind)
}

// container resolves the variant's search root. Regional kinds require one.
func (c *evalContext) container() (hierarchy.NodeID, error) {
	v := c.variant
	if v.ContainerPath != "" {
		id, ok := c.tree.ByPath(v.ContainerPath)
		if !ok {
			return hierarchy.NoNode, core.ErrNoContainerFound.
				WithMessagef("container %s is not in the snapshot", v.ContainerPath)
		}
		return id, nil
	}

	wantRegion := v.Kind.Regional() || v.Scope == ScopeRegional
	if a := c.plan.Context.ContainerAnchor; a != nil && wantRegion {
		if id, ok := resolveAnchor(c.tree, a); ok {
			return id, nil
		}
		return hierarchy.NoNode, core.ErrNoContainerFound.
			WithMessagef("container anchor %s=%q not found", a.By, a.Value)
	}
	if v.Kind.Regional() {
		return hierarchy.NoNode, core.ErrNoContainerFound.WithMessage("no container given for a regional variant")
	}
	return hierarchy.NoNode, nil
}

func resolveAnchor(tree *hierarchy.Tree, a *ContainerAnchor) (hierarchy.NodeID, bool) {
	switch a.By {
	case AnchorByID:
		for _, id := range tree.All() {
			if _, ok := matchResourceID(a.Value, tree.Node(id).ResourceID); ok {
				return id, true
			}
		}
	case AnchorByPath:
		if id, ok := tree.ByPath(a.Value); ok {
			return id, true
		}
	case AnchorByClassStructure:
		for _, id := range tree.All() {
			if _, ok := matchClass(a.Value, tree.Node(id).Class); ok {
				return id, true
			}
		}
	}
	if a.FallbackPath != "" {
		return tree.ByPath(a.FallbackPath)
	}
	return hierarchy.NoNode, false
}

// scope returns the nodes a variant may consider.
func (c *evalContext) scope() []hierarchy.NodeID {
	if c.root == hierarchy.NoNode {
		return c.tree.All()
	}
	return c.tree.Descendants(c.root)
}

func (c *evalContext) hints() container.Hints {
	if c.root == hierarchy.NoNode {
		return container.Hints{}
	}
	return container.Hints{Path: c.tree.Node(c.root).Path}
}

func (c *evalContext) matching(sel *NodeSelector, ids []hierarchy.NodeID) []rank.Input {
	var out []rank.Input
	for _, id := range ids {
		if ex, keys, ok := sel.Match(c.tree.Node(id)); ok {
			out = append(out, rank.Input{Node: id, Exactness: ex, Keys: keys})
		}
	}
	return out
}

func (c *evalContext) result(inputs []rank.Input, empty string) (match, error) {
	m := match{inputs: inputs, hints: c.hints()}
	if len(inputs) == 0 {
		m.note = empty
	}
	return m, nil
}

// self matches the target directly. Descriptions often sit on a
// non-clickable child, so self_desc lifts to the nearest clickable ancestor.
func (c *evalContext) self() (match, error) {
	if c.variant.Selectors.Self.IsEmpty() {
		return match{}, missing("selectors.self")
	}
	inputs := c.matching(c.variant.Selectors.Self, c.scope())
	if c.variant.Kind == KindSelfDesc {
		inputs = c.lift(inputs)
	}
	return c.result(inputs, "no node matched the self selector")
}

func (c *evalContext) lift(inputs []rank.Input) []rank.Input {
	out := make([]rank.Input, 0, len(inputs))
	for _, in := range inputs {
		if c.tree.Node(in.Node).Clickable {
			out = append(out, in)
			continue
		}
		if a, ok := c.tree.ClickableAncestor(in.Node, liftLevels); ok {
			out = append(out, rank.Input{Node: a, Exactness: in.Exactness})
			continue
		}
		out = append(out, in)
	}
	return dedupe(out)
}

// childToParent finds anchors with the child selector and acts on an
// ancestor: the first matching the parent selector, else the first clickable
// one, within the hinted number of levels.
func (c *evalContext) childToParent() (match, error) {
	v := c.variant
	if v.Selectors.Child.IsEmpty() {
		return match{}, missing("selectors.child")
	}
	levels := liftLevels
	relation := RelationAncestorDescendant
	if s := v.Structure; s != nil {
		if s.Levels > 0 {
			levels = s.Levels
		}
		if s.Relation != "" {
			relation = s.Relation
		}
	}
	if relation == RelationParentChild && (v.Structure == nil || v.Structure.Levels == 0) {
		levels = 1
	}

	parentSel := v.Selectors.Parent
	var out []rank.Input
	for _, anchor := range c.matching(v.Selectors.Child, c.scope()) {
		for i, a := range c.tree.Ancestors(anchor.Node) {
			if i >= levels || (c.root != hierarchy.NoNode && !c.tree.IsAncestor(c.root, a)) {
				break
			}
			n := c.tree.Node(a)
			if parentSel.IsEmpty() {
				if n.Clickable || (relation == RelationParentChild && i == levels-1) {
					out = append(out, rank.Input{Node: a, Exactness: anchor.Exactness})
					break
				}
				continue
			}
			if ex, keys, ok := parentSel.Match(n); ok {
				out = append(out, rank.Input{Node: a, Exactness: anchor.Exactness * ex, Keys: keys})
				break
			}
		}
	}
	return c.result(dedupe(out), "no anchor with a matching parent")
}

// localIndex picks the n-th candidate inside the container: the self
// selector's matches, or the container's direct children.
func (c *evalContext) localIndex() (match, error) {
	v := c.variant
	if v.Index == nil {
		return match{}, missing("index")
	}
	var items []rank.Input
	if v.Selectors.Self.IsEmpty() {
		for _, id := range c.tree.Children(c.root) {
			items = append(items, rank.Input{Node: id, Exactness: 1})
		}
	} else {
		items = c.matching(v.Selectors.Self, c.scope())
	}
	return c.nth(items, v.Index.Local)
}

func (c *evalContext) globalIndex() (match, error) {
	v := c.variant
	if v.Index == nil || v.Selectors.Self.IsEmpty() {
		return match{}, missing("index and selectors.self")
	}
	return c.nth(c.matching(v.Selectors.Self, c.tree.All()), v.Index.Global)
}

func (c *evalContext) nth(items []rank.Input, n int) (match, error) {
	if n < 1 {
		return match{}, core.ErrInvalidSpec.WithMessagef("index %d out of range", n)
	}
	if n > len(items) {
		return c.result(nil, "index beyond the matching nodes")
	}
	return c.result(items[n-1:n], "")
}

// neighbor finds one anchor with the child selector and returns the nearest
// node in the hinted direction that matches the self selector (any clickable
// node without one).
func (c *evalContext) neighbor() (match, error) {
	v := c.variant
	if v.Selectors.Child.IsEmpty() || v.Structure == nil {
		return match{}, missing("selectors.child and structure")
	}
	anchors := c.matching(v.Selectors.Child, c.scope())
	switch len(anchors) {
	case 0:
		return c.result(nil, "neighbor anchor not found")
	case 1:
	default:
		return match{}, core.ErrAmbiguousMatch.WithMessagef("neighbor anchor matched %d nodes", len(anchors))
	}
	anchor := anchors[0].Node

	sel := v.Selectors.Self
	keep := func(n *hierarchy.Node) bool {
		if sel.IsEmpty() {
			return n.Clickable
		}
		_, _, ok := sel.Match(n)
		return ok
	}

	var near []hierarchy.NodeID
	switch v.Structure.Direction {
	case DirectionNext, DirectionPrev:
		sibs := c.tree.Siblings(anchor)
		for _, s := range sibs {
			if (v.Structure.Direction == DirectionNext) == (s > anchor) {
				near = append(near, s)
			}
		}
		if v.Structure.Direction == DirectionPrev {
			for i, j := 0, len(near)-1; i < j; i, j = i+1, j-1 {
				near[i], near[j] = near[j], near[i]
			}
		}
		near = c.tree.Filter(near, keep)
	case DirectionUp:
		near = c.tree.Above(c.tree.Filter(c.scope(), keep), anchor)
	case DirectionDown:
		near = c.tree.Below(c.tree.Filter(c.scope(), keep), anchor)
	case DirectionLeft:
		near = c.tree.LeftOf(c.tree.Filter(c.scope(), keep), anchor)
	case DirectionRight:
		near = c.tree.RightOf(c.tree.Filter(c.scope(), keep), anchor)
	default:
		return match{}, core.ErrInvalidSpec.WithMessagef("unknown direction %q", v.Structure.Direction)
	}

	if len(near) == 0 {
		return c.result(nil, "nothing "+v.Structure.Direction+" of the anchor")
	}
	ex, keys, _ := sel.Match(c.tree.Node(near[0]))
	return c.result([]rank.Input{{Node: near[0], Exactness: ex, Keys: keys}}, "")
}

// boundsTap taps a recorded rectangle. The node occupying exactly that
// rectangle, if any, supplies the class for the safety check.
func (c *evalContext) boundsTap() (match, error) {
	b, err := hierarchy.ParseBounds(c.variant.Bounds)
	if err != nil {
		return match{}, core.ErrInvalidSpec.
			WithMessagef("bad bounds hint %q", c.variant.Bounds).
			WithCause(err)
	}
	m := match{direct: &b}
	for _, id := range c.scope() {
		if n := c.tree.Node(id); n.Bounds == b {
			m.class = n.Class
		}
	}
	return m, nil
}

func missing(what string) error {
	return core.ErrInvalidSpec.WithMessagef("variant needs %s", what)
}

// dedupe keeps the first occurrence of each node, raised to the best
// exactness seen for it.
func dedupe(in []rank.Input) []rank.Input {
	pos := make(map[hierarchy.NodeID]int, len(in))
	out := in[:0:0]
	for _, x := range in {
		if i, ok := pos[x.Node]; ok {
			if x.Exactness > out[i].Exactness {
				out[i] = x
			}
			continue
		}
		pos[x.Node] = len(out)
		out = append(out, x)
	}
	return out
}
