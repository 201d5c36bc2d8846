// Package signature learns structural fingerprints from repeated siblings
// (cards in a list) and scores candidates against them.
package signature

import (
	"sort"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/layout"
)

// MinScore is the template score below which candidates are pruned.
const MinScore = 0.1

const (
	shapeDepth   = 2 // levels of the item subtree captured in a shape
	maxExemplars = 3
	minGroup     = 2 // a shape must repeat to count as a template

	shapeWeight  = 0.4
	chainWeight  = 0.3
	boundsWeight = 0.3
)

// Source records where a signature came from.
const (
	SourceLearned = "learned"
	SourceKnown   = "known"
)

// Signature is the fingerprint of one exemplar item.
type Signature struct {
	AncestorChain []string `yaml:"ancestor_chain" json:"ancestorChain"` // short classes, item's parent first, container last
	Shape         string   `yaml:"shape" json:"shape"`
	WidthRatio    float64  `yaml:"width_ratio" json:"widthRatio"`
	HeightRatio   float64  `yaml:"height_ratio" json:"heightRatio"`
	IgnoreHeight  bool     `yaml:"ignore_height" json:"ignoreHeight"`
	Source        string   `yaml:"source" json:"source,omitempty"`
}

// LearnOrLoad returns known when it is non-empty. Otherwise it groups the
// container's direct children by shape and takes up to three exemplars from
// the most frequent shape that repeats.
func LearnOrLoad(tree *hierarchy.Tree, container hierarchy.NodeID, lt layout.Type, known []Signature) []Signature {
	if len(known) > 0 {
		out := make([]Signature, len(known))
		for i, s := range known {
			if s.Source == "" {
				s.Source = SourceKnown
			}
			out[i] = s
		}
		return out
	}

	groups := make(map[string][]hierarchy.NodeID)
	var order []string
	for _, c := range tree.Children(container) {
		s := Shape(tree, c)
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], c)
	}

	// Largest group wins; first seen breaks ties.
	best := ""
	for _, s := range order {
		if len(groups[s]) > len(groups[best]) {
			best = s
		}
	}
	if len(groups[best]) < minGroup {
		return nil
	}

	members := groups[best]
	if len(members) > maxExemplars {
		members = members[:maxExemplars]
	}
	sigs := make([]Signature, 0, len(members))
	for _, m := range members {
		sig := Of(tree, container, m)
		sig.IgnoreHeight = layout.VariableHeight(lt)
		sig.Source = SourceLearned
		sigs = append(sigs, sig)
	}
	return sigs
}

// Of captures the signature of item relative to container.
func Of(tree *hierarchy.Tree, container, item hierarchy.NodeID) Signature {
	sig := Signature{
		AncestorChain: chain(tree, container, item),
		Shape:         Shape(tree, item),
	}
	cb, ib := tree.Node(container).Bounds, tree.Node(item).Bounds
	if cb.Width() > 0 {
		sig.WidthRatio = float64(ib.Width()) / float64(cb.Width())
	}
	if cb.Height() > 0 {
		sig.HeightRatio = float64(ib.Height()) / float64(cb.Height())
	}
	return sig
}

// Shape renders the class structure of a subtree, e.g.
// "LinearLayout(ImageView,TextView)".
func Shape(tree *hierarchy.Tree, id hierarchy.NodeID) string {
	var sb strings.Builder
	writeShape(&sb, tree, id, 0)
	return sb.String()
}

func writeShape(sb *strings.Builder, tree *hierarchy.Tree, id hierarchy.NodeID, depth int) {
	sb.WriteString(tree.Node(id).ShortClass())
	if depth >= shapeDepth {
		return
	}
	children := tree.Children(id)
	if len(children) == 0 {
		return
	}
	sb.WriteByte('(')
	for i, c := range children {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeShape(sb, tree, c, depth+1)
	}
	sb.WriteByte(')')
}

// chain lists ancestor classes from item's parent up to container inclusive.
// It is empty when item is not inside container.
func chain(tree *hierarchy.Tree, container, item hierarchy.NodeID) []string {
	if !tree.IsAncestor(container, item) {
		return nil
	}
	var out []string
	for _, a := range tree.Ancestors(item) {
		out = append(out, tree.Node(a).ShortClass())
		if a == container {
			break
		}
	}
	return out
}

// Score returns the best match of item against sigs, in [0,1].
func Score(tree *hierarchy.Tree, container, item hierarchy.NodeID, sigs []Signature) float64 {
	if len(sigs) == 0 {
		return 0
	}
	cand := Of(tree, container, item)
	best := 0.0
	for _, s := range sigs {
		v := shapeWeight*shapeSimilarity(s.Shape, cand.Shape) +
			chainWeight*chainSimilarity(s.AncestorChain, cand.AncestorChain) +
			boundsWeight*boundsSimilarity(s, cand)
		best = max(best, v)
	}
	return best
}

// Prune scores items and keeps those at or above MinScore, in input order.
func Prune(tree *hierarchy.Tree, container hierarchy.NodeID, items []hierarchy.NodeID, sigs []Signature) ([]hierarchy.NodeID, []float64) {
	var (
		kept   []hierarchy.NodeID
		scores []float64
	)
	for _, id := range items {
		s := Score(tree, container, id, sigs)
		if s >= MinScore {
			kept = append(kept, id)
			scores = append(scores, s)
		}
	}
	return kept, scores
}

// shapeSimilarity is 1 for equal shapes, otherwise the Dice overlap of
// their class tokens.
func shapeSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	counts := make(map[string]int, len(ta))
	for _, t := range ta {
		counts[t]++
	}
	shared := 0
	for _, t := range tb {
		if counts[t] > 0 {
			counts[t]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokens(shape string) []string {
	out := strings.FieldsFunc(shape, func(r rune) bool {
		return r == '(' || r == ')' || r == ','
	})
	sort.Strings(out)
	return out
}

// chainSimilarity counts matching classes aligned at the container end.
func chainSimilarity(a, b []string) float64 {
	n := max(len(a), len(b))
	if n == 0 {
		return 0
	}
	same := 0
	for i, j := len(a)-1, len(b)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if a[i] != b[j] {
			break
		}
		same++
	}
	return float64(same) / float64(n)
}

func boundsSimilarity(sig, cand Signature) float64 {
	w := ratio(sig.WidthRatio, cand.WidthRatio)
	if sig.IgnoreHeight {
		return w
	}
	return (w + ratio(sig.HeightRatio, cand.HeightRatio)) / 2
}

func ratio(a, b float64) float64 {
	hi := max(a, b)
	if hi <= 0 {
		return 0
	}
	return min(a, b) / hi
}
