// Package layout classifies how a container arranges its children.
package layout

import (
	"sort"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Type is a container arrangement.
type Type string

const (
	Unknown        Type = "unknown"
	List           Type = "list"
	UniformGrid    Type = "uniform_grid"
	MasonrySingle  Type = "masonry_single"
	WaterfallMulti Type = "waterfall_multi"
)

const (
	minChildSize      = 20    // px; smaller children are decoration
	minChildren       = 3     // fewer qualifying children cannot be classified
	columnTolerance   = 12    // px around a column's mean left edge
	waterfallVariance = 10000 // summed per-column height variance
	masonrySpread     = 60    // px between tallest and shortest single-column item
)

// GeometryScore maps a layout to the confidence given to geometry signals.
func GeometryScore(t Type) float64 {
	switch t {
	case WaterfallMulti:
		return 0.9
	case MasonrySingle:
		return 0.85
	case UniformGrid:
		return 0.8
	case List:
		return 0.75
	default:
		return 0.5
	}
}

// VariableHeight reports whether items in this layout are expected to differ in height.
func VariableHeight(t Type) bool {
	return t == WaterfallMulti || t == MasonrySingle
}

type item struct {
	left   int
	height int
}

// Classify inspects container's direct children.
func Classify(tree *hierarchy.Tree, container hierarchy.NodeID) Type {
	var items []item
	for _, c := range tree.Children(container) {
		b := tree.Node(c).Bounds
		if b.Width() > minChildSize && b.Height() > minChildSize {
			items = append(items, item{left: b.Left, height: b.Height()})
		}
	}
	if len(items) < minChildren {
		return Unknown
	}

	columns := clusterColumns(items)
	if len(columns) >= 2 {
		total := 0.0
		for _, col := range columns {
			if len(col) >= 2 {
				total += variance(col)
			}
		}
		if total > waterfallVariance {
			return WaterfallMulti
		}
		return UniformGrid
	}

	minH, maxH := items[0].height, items[0].height
	for _, it := range items[1:] {
		minH = min(minH, it.height)
		maxH = max(maxH, it.height)
	}
	if maxH > minH+masonrySpread {
		return MasonrySingle
	}
	return List
}

// clusterColumns groups items by left edge, sorted left to right. An item
// joins a column when its left edge is within tolerance of the column mean.
func clusterColumns(items []item) [][]item {
	sorted := append([]item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].left < sorted[j].left })

	var (
		columns [][]item
		sums    []int
	)
	for _, it := range sorted {
		placed := false
		for i, col := range columns {
			mean := sums[i] / len(col)
			if abs(it.left-mean) <= columnTolerance {
				columns[i] = append(col, it)
				sums[i] += it.left
				placed = true
				break
			}
		}
		if !placed {
			columns = append(columns, []item{it})
			sums = append(sums, it.left)
		}
	}
	return columns
}

func variance(col []item) float64 {
	mean := 0.0
	for _, it := range col {
		mean += float64(it.height)
	}
	mean /= float64(len(col))
	v := 0.0
	for _, it := range col {
		d := float64(it.height) - mean
		v += d * d
	}
	return v / float64(len(col))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
