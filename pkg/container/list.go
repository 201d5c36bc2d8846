package container

import (
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// listPriority ranks list-like classes: adapter lists first, plain scroll
// views next, pagers last.
func listPriority(class string) int {
	c := strings.ToLower(hierarchy.ShortClass(class))
	switch {
	case strings.Contains(c, "recyclerview"),
		strings.Contains(c, "gridview"),
		strings.Contains(c, "listview"),
		strings.Contains(c, "staggeredgrid"):
		return 3
	case strings.Contains(c, "scrollview"):
		return 2
	case strings.Contains(c, "viewpager"):
		return 1
	}
	return 0
}

// PickList chooses the best list container in the whole tree, without an
// anchor. Candidates are scrollable nodes and list-class nodes within the
// configured area range; higher class priority wins, then larger area.
func (d *Detector) PickList(tree *hierarchy.Tree) (*Scope, bool) {
	best := hierarchy.NoNode
	bestPriority := -1
	for _, id := range tree.All() {
		n := tree.Node(id)
		prio := listPriority(n.Class)
		if !n.Scrollable && prio == 0 {
			continue
		}
		r := tree.AreaRatio(id)
		if r > d.cfg.MaxFullscreenRatio || r < d.cfg.MinAreaRatio {
			continue
		}
		if prio > bestPriority ||
			(prio == bestPriority && n.Bounds.Area() > tree.Node(best).Bounds.Area()) {
			best, bestPriority = id, prio
		}
	}
	if best == hierarchy.NoNode {
		return nil, false
	}

	n := tree.Node(best)
	return &Scope{
		Root:       best,
		Path:       n.Path,
		Reason:     "list(" + n.ShortClass() + ")",
		Confidence: 0.5 + 0.1*float64(bestPriority),
		Profile:    d.cfg.Profile,
		Trail:      []string{n.Path},
	}, true
}
