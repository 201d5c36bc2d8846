package hierarchy

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/devicelab-dev/uiresolve/pkg/core"
)

// Tree is an immutable index over one snapshot.
type Tree struct {
	id     string
	nodes  []Node
	ends   []NodeID // exclusive end of each node's subtree
	screen core.Size

	byResourceID map[string][]NodeID
	byText       map[string][]NodeID
	byDesc       map[string][]NodeID
	byClass      map[string][]NodeID
	byPath       map[string]NodeID
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	screen core.Size
}

// WithScreen overrides the screen size derived from the root nodes.
func WithScreen(s core.Size) Option {
	return func(o *buildOptions) {
		o.screen = s
	}
}

// SnapshotID derives a content-based identifier for a snapshot.
func SnapshotID(snapshot string) string {
	sum := sha256.Sum256([]byte(snapshot))
	return hex.EncodeToString(sum[:8])
}

// Build parses a snapshot and indexes it. Malformed markup or bounds yield a
// *core.ResolveError of kind KindParse naming the offending fragment.
func Build(snapshot string, opts ...Option) (*Tree, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	nodes, ends, err := parse(snapshot)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		id:           SnapshotID(snapshot),
		nodes:        nodes,
		ends:         ends,
		screen:       o.screen,
		byResourceID: make(map[string][]NodeID),
		byText:       make(map[string][]NodeID),
		byDesc:       make(map[string][]NodeID),
		byClass:      make(map[string][]NodeID),
		byPath:       make(map[string]NodeID, len(nodes)),
	}

	var extent core.Bounds
	for i := range nodes {
		n := &nodes[i]
		if n.ResourceID != "" {
			t.byResourceID[n.ResourceID] = append(t.byResourceID[n.ResourceID], n.ID)
		}
		if n.Text != "" {
			t.byText[n.Text] = append(t.byText[n.Text], n.ID)
		}
		if n.ContentDesc != "" {
			t.byDesc[n.ContentDesc] = append(t.byDesc[n.ContentDesc], n.ID)
		}
		if n.Class != "" {
			t.byClass[n.Class] = append(t.byClass[n.Class], n.ID)
		}
		t.byPath[n.Path] = n.ID

		if n.IsRoot() {
			extent.Right = max(extent.Right, n.Bounds.Right)
			extent.Bottom = max(extent.Bottom, n.Bounds.Bottom)
		}
	}

	if t.screen.IsZero() {
		t.screen = core.Size{Width: extent.Right, Height: extent.Bottom}
	}

	return t, nil
}

// ID returns the content-derived snapshot id.
func (t *Tree) ID() string {
	return t.id
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Screen returns the screen size used for area ratios.
func (t *Tree) Screen() core.Size {
	return t.screen
}

// Valid reports whether id refers to a node of this tree.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id NodeID) *Node {
	if !t.Valid(id) {
		return nil
	}
	return &t.nodes[id]
}

// All returns every node id in document order.
func (t *Tree) All() []NodeID {
	ids := make([]NodeID, len(t.nodes))
	for i := range ids {
		ids[i] = NodeID(i)
	}
	return ids
}

// Roots returns the top-level nodes.
func (t *Tree) Roots() []NodeID {
	var out []NodeID
	for i := 0; i < len(t.nodes); i = int(t.ends[i]) {
		out = append(out, NodeID(i))
	}
	return out
}

// ByResourceID returns nodes with the exact resource-id.
func (t *Tree) ByResourceID(id string) []NodeID {
	return t.byResourceID[id]
}

// ByText returns nodes with the exact text.
func (t *Tree) ByText(text string) []NodeID {
	return t.byText[text]
}

// ByContentDesc returns nodes with the exact content-desc.
func (t *Tree) ByContentDesc(desc string) []NodeID {
	return t.byDesc[desc]
}

// ByClass returns nodes with the exact class.
func (t *Tree) ByClass(class string) []NodeID {
	return t.byClass[class]
}

// ByPath returns the node at an absolute path.
func (t *Tree) ByPath(path string) (NodeID, bool) {
	id, ok := t.byPath[path]
	return id, ok
}

// Children returns the direct children of id in document order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.Valid(id) {
		return nil
	}
	var out []NodeID
	for i := id + 1; i < t.ends[id]; i = t.ends[i] {
		out = append(out, i)
	}
	return out
}

// Descendants returns every node below id in document order.
func (t *Tree) Descendants(id NodeID) []NodeID {
	if !t.Valid(id) {
		return nil
	}
	out := make([]NodeID, 0, int(t.ends[id]-id-1))
	for i := id + 1; i < t.ends[id]; i++ {
		out = append(out, i)
	}
	return out
}

// SubtreeSize returns the number of nodes below id.
func (t *Tree) SubtreeSize(id NodeID) int {
	if !t.Valid(id) {
		return 0
	}
	return int(t.ends[id] - id - 1)
}

// IsAncestor reports whether a is a proper ancestor of d.
func (t *Tree) IsAncestor(a, d NodeID) bool {
	return t.Valid(a) && t.Valid(d) && a < d && d < t.ends[a]
}

// Ancestors returns the parents of id, nearest first.
func (t *Tree) Ancestors(id NodeID) []NodeID {
	if !t.Valid(id) {
		return nil
	}
	var out []NodeID
	for p := t.nodes[id].Parent; p != NoNode; p = t.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Parent returns the parent id of id.
func (t *Tree) Parent(id NodeID) NodeID {
	if !t.Valid(id) {
		return NoNode
	}
	return t.nodes[id].Parent
}

// Siblings returns the other children of id's parent.
func (t *Tree) Siblings(id NodeID) []NodeID {
	p := t.Parent(id)
	var all []NodeID
	if p == NoNode {
		all = t.Roots()
	} else {
		all = t.Children(p)
	}
	out := all[:0:0]
	for _, s := range all {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

// AreaRatio returns the node's area relative to the screen.
func (t *Tree) AreaRatio(id NodeID) float64 {
	if !t.Valid(id) {
		return 0
	}
	return t.nodes[id].Bounds.AreaRatio(t.screen)
}
