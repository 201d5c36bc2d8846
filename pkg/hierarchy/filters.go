package hierarchy

import (
	"sort"

	"github.com/devicelab-dev/uiresolve/pkg/core"
)

// Filter returns the ids for which keep returns true, preserving order.
func (t *Tree) Filter(ids []NodeID, keep func(*Node) bool) []NodeID {
	var out []NodeID
	for _, id := range ids {
		if n := t.Node(id); n != nil && keep(n) {
			out = append(out, id)
		}
	}
	return out
}

// Within returns the ids that lie in container's subtree.
func (t *Tree) Within(ids []NodeID, container NodeID) []NodeID {
	var out []NodeID
	for _, id := range ids {
		if t.IsAncestor(container, id) {
			out = append(out, id)
		}
	}
	return out
}

// Position filter functions

// Below returns ids whose top is at or below the anchor's bottom, closest first.
func (t *Tree) Below(ids []NodeID, anchor NodeID) []NodeID {
	ref := t.nodes[anchor].Bounds.Bottom
	out := t.Filter(ids, func(n *Node) bool { return n.Bounds.Top >= ref })
	t.sortBy(out, func(b core.Bounds) int { return b.Top - ref })
	return out
}

// Above returns ids whose bottom is at or above the anchor's top, closest first.
func (t *Tree) Above(ids []NodeID, anchor NodeID) []NodeID {
	ref := t.nodes[anchor].Bounds.Top
	out := t.Filter(ids, func(n *Node) bool { return n.Bounds.Bottom <= ref })
	t.sortBy(out, func(b core.Bounds) int { return ref - b.Bottom })
	return out
}

// LeftOf returns ids whose right edge is at or left of the anchor, closest first.
func (t *Tree) LeftOf(ids []NodeID, anchor NodeID) []NodeID {
	ref := t.nodes[anchor].Bounds.Left
	out := t.Filter(ids, func(n *Node) bool { return n.Bounds.Right <= ref })
	t.sortBy(out, func(b core.Bounds) int { return ref - b.Right })
	return out
}

// RightOf returns ids whose left edge is at or right of the anchor, closest first.
func (t *Tree) RightOf(ids []NodeID, anchor NodeID) []NodeID {
	ref := t.nodes[anchor].Bounds.Right
	out := t.Filter(ids, func(n *Node) bool { return n.Bounds.Left >= ref })
	t.sortBy(out, func(b core.Bounds) int { return b.Left - ref })
	return out
}

func (t *Tree) sortBy(ids []NodeID, dist func(core.Bounds) int) {
	sort.SliceStable(ids, func(i, j int) bool {
		return dist(t.nodes[ids[i]].Bounds) < dist(t.nodes[ids[j]].Bounds)
	})
}

// DeepestContaining returns the deepest node whose bounds contain p and for
// which keep returns true (keep may be nil).
func (t *Tree) DeepestContaining(p core.Point, keep func(*Node) bool) (NodeID, bool) {
	best := NoNode
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.Bounds.Contains(p) || (keep != nil && !keep(n)) {
			continue
		}
		if best == NoNode || n.Depth > t.nodes[best].Depth {
			best = n.ID
		}
	}
	return best, best != NoNode
}

// SortClickableFirst reorders ids so clickable nodes come first, keeping
// relative order within each group.
func (t *Tree) SortClickableFirst(ids []NodeID) []NodeID {
	var clickable, rest []NodeID
	for _, id := range ids {
		if t.nodes[id].Clickable {
			clickable = append(clickable, id)
		} else {
			rest = append(rest, id)
		}
	}
	return append(clickable, rest...)
}

// LargestScrollable returns the scrollable node with the largest area.
func (t *Tree) LargestScrollable() (NodeID, bool) {
	best := NoNode
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.Scrollable {
			continue
		}
		if best == NoNode || n.Bounds.Area() > t.nodes[best].Bounds.Area() {
			best = n.ID
		}
	}
	return best, best != NoNode
}

// ClickableAncestor returns the nearest clickable ancestor within depth levels.
func (t *Tree) ClickableAncestor(id NodeID, depth int) (NodeID, bool) {
	for i, a := range t.Ancestors(id) {
		if i >= depth {
			break
		}
		if t.nodes[a].Clickable {
			return a, true
		}
	}
	return NoNode, false
}

// Summary counts nodes by capability and class.
type Summary struct {
	SnapshotID string         `json:"snapshotId"`
	Screen     core.Size      `json:"screen"`
	Nodes      int            `json:"nodes"`
	Clickable  int            `json:"clickable"`
	Scrollable int            `json:"scrollable"`
	WithText   int            `json:"withText"`
	WithID     int            `json:"withId"`
	MaxDepth   int            `json:"maxDepth"`
	Classes    map[string]int `json:"classes"`
}

// Summarize computes a Summary of the tree.
func (t *Tree) Summarize() Summary {
	s := Summary{
		SnapshotID: t.id,
		Screen:     t.screen,
		Nodes:      len(t.nodes),
		Classes:    make(map[string]int),
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Clickable {
			s.Clickable++
		}
		if n.Scrollable {
			s.Scrollable++
		}
		if n.Text != "" {
			s.WithText++
		}
		if n.ResourceID != "" {
			s.WithID++
		}
		s.MaxDepth = max(s.MaxDepth, n.Depth)
		s.Classes[n.ShortClass()]++
	}
	return s
}
