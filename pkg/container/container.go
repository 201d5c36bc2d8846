// Package container narrows a search to the sub-region (dialog, list, panel)
// that holds an anchor node.
package container

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Profile names a detection preset.
type Profile string

const (
	ProfileSpeed   Profile = "speed"
	ProfileDefault Profile = "default"
	ProfileRobust  Profile = "robust"
)

// Config tunes the detector.
type Config struct {
	Profile             Profile `yaml:"profile" json:"profile"`
	MaxFullscreenRatio  float64 `yaml:"max_fullscreen_ratio" json:"maxFullscreenRatio"`
	MinAreaRatio        float64 `yaml:"min_area_ratio" json:"minAreaRatio"`
	PreferScrollable    bool    `yaml:"prefer_scrollable" json:"preferScrollable"`
	EnablePopupPriority bool    `yaml:"enable_popup_priority" json:"enablePopupPriority"`
}

// DefaultConfig returns the default detector settings.
func DefaultConfig() Config {
	return Config{
		Profile:             ProfileDefault,
		MaxFullscreenRatio:  0.95,
		MinAreaRatio:        0.05,
		PreferScrollable:    true,
		EnablePopupPriority: true,
	}
}

// Hints are caller-supplied clues about the container.
type Hints struct {
	Path              string       `yaml:"path" json:"path,omitempty"`                           // absolute node path
	ElementID         string       `yaml:"element_id" json:"elementId,omitempty"`                // "element_N" or "node_N"
	Bounds            *core.Bounds `yaml:"bounds" json:"bounds,omitempty"`                       // approximate container bounds
	AncestorSignChain []string     `yaml:"ancestor_sign_chain" json:"ancestorSignChain,omitempty"` // class or id fragments
}

// IsEmpty returns true if no hint is set.
func (h Hints) IsEmpty() bool {
	return h.Path == "" && h.ElementID == "" && h.Bounds == nil && len(h.AncestorSignChain) == 0
}

// Scope is the chosen container.
type Scope struct {
	Root       hierarchy.NodeID `json:"root"`
	Path       string           `json:"path"`
	Reason     string           `json:"reason"`
	Confidence float64          `json:"confidence"`
	Profile    Profile          `json:"profile"`
	Trail      []string         `json:"trail"`
}

// proposal is one heuristic's vote for a node.
type proposal struct {
	node   hierarchy.NodeID
	score  float64
	tag    string
	note   string
	strong bool
}

const (
	strongHintScore  = 1.2
	bigBoundsIoU     = 0.9
	maxHintLevels    = 20
	maxTrailEntries  = 5
	semanticScore    = 0.5
	geometryScore    = 0.3
	popupScore       = 0.9
	scrollableScore  = 0.8
	scrollableDecay  = 0.1
	scrollableFloor  = 0.3
	signChainScore   = 0.2
	nearestScrollHit = 0.95
	parentHit        = 0.85
)

// Detector picks containers. Its keyword tables are built once in New.
type Detector struct {
	cfg       Config
	elementRe *regexp.Regexp
	popup     []string
	semantic  []string
}

// New creates a detector.
func New(cfg Config) *Detector {
	if cfg.MaxFullscreenRatio <= 0 {
		cfg.MaxFullscreenRatio = DefaultConfig().MaxFullscreenRatio
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileDefault
	}
	return &Detector{
		cfg:       cfg,
		elementRe: regexp.MustCompile(`^(?:element|node)_(\d+)$`),
		popup:     []string{"dialog", "popup", "bottomsheet", "bottom_sheet", "sheet", "alert"},
		semantic:  []string{"container", "panel", "sheet", "dialog", "list", "recycler", "grid", "feed", "content"},
	}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Pick chooses the container of anchor. It returns false when no ancestor of
// the anchor survives every heuristic, for example when the anchor is a root.
func (d *Detector) Pick(tree *hierarchy.Tree, anchor hierarchy.NodeID, hints Hints) (*Scope, bool) {
	if !tree.Valid(anchor) {
		return nil, false
	}

	ancestors := tree.Ancestors(anchor)
	var props []proposal
	props = append(props, d.fromHints(tree, anchor, ancestors, hints)...)
	if d.cfg.EnablePopupPriority {
		props = append(props, d.popupHeuristic(tree, ancestors)...)
	}
	if d.cfg.PreferScrollable {
		props = append(props, scrollableHeuristic(tree, ancestors)...)
	}
	props = append(props, d.semanticHeuristic(tree, ancestors)...)
	props = append(props, d.geometryHeuristic(tree, ancestors)...)

	props = d.exclude(tree, props)
	if len(props) == 0 {
		return nil, false
	}

	return d.vote(tree, anchor, props), true
}

func (d *Detector) fromHints(tree *hierarchy.Tree, anchor hierarchy.NodeID, ancestors []hierarchy.NodeID, h Hints) []proposal {
	var props []proposal

	if h.Path != "" {
		if id, ok := tree.ByPath(h.Path); ok && id != anchor {
			props = append(props, proposal{node: id, score: strongHintScore, tag: "hint_path", note: h.Path, strong: true})
		}
	}

	if h.ElementID != "" {
		if m := d.elementRe.FindStringSubmatch(h.ElementID); m != nil {
			n, _ := strconv.Atoi(m[1])
			for _, p := range elementHint(tree, hierarchy.NodeID(n)) {
				if tree.IsAncestor(p.node, anchor) {
					props = append(props, p)
				}
			}
		}
	}

	if h.Bounds != nil {
		props = append(props, boundsHint(tree, ancestors, *h.Bounds)...)
	}

	if len(h.AncestorSignChain) > 0 {
		for _, a := range ancestors {
			n := tree.Node(a)
			for _, frag := range h.AncestorSignChain {
				if frag != "" && (containsFold(n.Class, frag) || containsFold(n.ResourceID, frag)) {
					props = append(props, proposal{node: a, score: signChainScore, tag: "hint_chain", note: frag})
					break
				}
			}
		}
	}

	return props
}

// elementHint proposes the nearest scrollable ancestor of node n, else its parent.
func elementHint(tree *hierarchy.Tree, n hierarchy.NodeID) []proposal {
	if !tree.Valid(n) {
		return nil
	}
	for i, a := range tree.Ancestors(n) {
		if i >= maxHintLevels {
			break
		}
		if tree.Node(a).Scrollable {
			return []proposal{{node: a, score: nearestScrollHit, tag: "hint_element", note: "nearest scrollable ancestor"}}
		}
	}
	if p := tree.Parent(n); p != hierarchy.NoNode {
		return []proposal{{node: p, score: parentHit, tag: "hint_element", note: "parent"}}
	}
	return nil
}

func boundsHint(tree *hierarchy.Tree, ancestors []hierarchy.NodeID, hint core.Bounds) []proposal {
	var props []proposal
	diag := hint.Diagonal()
	for _, a := range ancestors {
		b := tree.Node(a).Bounds
		iou := b.IoU(hint)
		if iou >= bigBoundsIoU {
			props = append(props, proposal{node: a, score: strongHintScore, tag: "hint_bounds", note: fmt.Sprintf("iou=%.2f", iou), strong: true})
			continue
		}
		score := 0.0
		if iou > 0.02 {
			score += min(iou*0.5, 0.25)
		}
		if diag > 0 {
			if s := (1 - b.CenterDistance(hint)/diag) * 0.10; s > 0.01 {
				score += s
			}
		}
		if score > 0 {
			props = append(props, proposal{node: a, score: score, tag: "hint_bounds", note: fmt.Sprintf("iou=%.2f", iou)})
		}
	}
	return props
}

func (d *Detector) popupHeuristic(tree *hierarchy.Tree, ancestors []hierarchy.NodeID) []proposal {
	var props []proposal
	for _, a := range ancestors {
		n := tree.Node(a)
		if frag, ok := matchAny(n, d.popup); ok {
			props = append(props, proposal{node: a, score: popupScore, tag: "popup", note: frag})
		}
	}
	return props
}

func scrollableHeuristic(tree *hierarchy.Tree, ancestors []hierarchy.NodeID) []proposal {
	var props []proposal
	score := scrollableScore
	for _, a := range ancestors {
		if !tree.Node(a).Scrollable {
			continue
		}
		props = append(props, proposal{node: a, score: score, tag: "scrollable", note: tree.Node(a).ShortClass()})
		score = max(score-scrollableDecay, scrollableFloor)
	}
	return props
}

func (d *Detector) semanticHeuristic(tree *hierarchy.Tree, ancestors []hierarchy.NodeID) []proposal {
	var props []proposal
	for _, a := range ancestors {
		if frag, ok := matchAny(tree.Node(a), d.semantic); ok {
			props = append(props, proposal{node: a, score: semanticScore, tag: "semantic", note: frag})
		}
	}
	return props
}

func (d *Detector) geometryHeuristic(tree *hierarchy.Tree, ancestors []hierarchy.NodeID) []proposal {
	var props []proposal
	for _, a := range ancestors {
		r := tree.AreaRatio(a)
		if r >= d.cfg.MinAreaRatio && r <= d.cfg.MaxFullscreenRatio {
			props = append(props, proposal{node: a, score: geometryScore, tag: "geometry", note: fmt.Sprintf("area=%.2f", r)})
		}
	}
	return props
}

// exclude drops proposals for nodes outside the area range unless a strong
// hint named that node.
func (d *Detector) exclude(tree *hierarchy.Tree, props []proposal) []proposal {
	strong := make(map[hierarchy.NodeID]bool)
	for _, p := range props {
		if p.strong {
			strong[p.node] = true
		}
	}
	out := props[:0]
	for _, p := range props {
		r := tree.AreaRatio(p.node)
		if !strong[p.node] && (r > d.cfg.MaxFullscreenRatio || r < d.cfg.MinAreaRatio) {
			continue
		}
		out = append(out, p)
	}
	return out
}

type tally struct {
	node     hierarchy.NodeID
	score    float64
	tags     []string
	distance int
}

// vote sums proposals per node. Ties go to the ancestor closest to the anchor.
func (d *Detector) vote(tree *hierarchy.Tree, anchor hierarchy.NodeID, props []proposal) *Scope {
	byNode := make(map[hierarchy.NodeID]*tally)
	var order []*tally
	for _, p := range props {
		t, ok := byNode[p.node]
		if !ok {
			t = &tally{node: p.node, distance: distance(tree, anchor, p.node)}
			byNode[p.node] = t
			order = append(order, t)
		}
		t.score += p.score
		t.tags = append(t.tags, p.tag+"("+p.note+")")
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		if order[i].distance != order[j].distance {
			return order[i].distance < order[j].distance
		}
		return order[i].node < order[j].node
	})

	best := order[0]
	trail := make([]string, 0, maxTrailEntries)
	for i, t := range order {
		if i >= maxTrailEntries {
			break
		}
		trail = append(trail, fmt.Sprintf("%s score=%.2f %s", tree.Node(t.node).Path, t.score, strings.Join(t.tags, ",")))
	}

	return &Scope{
		Root:       best.node,
		Path:       tree.Node(best.node).Path,
		Reason:     strings.Join(best.tags, ","),
		Confidence: clamp01(best.score / 2),
		Profile:    d.cfg.Profile,
		Trail:      trail,
	}
}

// distance counts levels from anchor up to a; nodes that are not ancestors
// sort after every ancestor.
func distance(tree *hierarchy.Tree, anchor, a hierarchy.NodeID) int {
	for i, x := range tree.Ancestors(anchor) {
		if x == a {
			return i + 1
		}
	}
	return 1 << 20
}

func matchAny(n *hierarchy.Node, fragments []string) (string, bool) {
	id := n.ResourceID
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	id = strings.ToLower(id)
	class := strings.ToLower(n.ShortClass())
	for _, f := range fragments {
		if strings.Contains(id, f) || strings.Contains(class, f) {
			return f, true
		}
	}
	return "", false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
