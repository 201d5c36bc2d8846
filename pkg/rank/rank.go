// Package rank scores candidate nodes and decides whether the best one can
// be acted on. Flat resolution and every decision-chain variant go through
// the same Ranker so both apply identical scoring and safety rules.
package rank

import (
	"fmt"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/heuristic"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/devicelab-dev/uiresolve/pkg/signature"
	"github.com/devicelab-dev/uiresolve/pkg/skeleton"
)

// Key trust maps a heuristic confidence c to 0.6 + 0.4*c, so an unreliable
// key still counts for something when it matched exactly.
const (
	trustFloor = 0.6
	trustSpan  = 0.4
)

// MetricsSource supplies per-container metrics, usually a *cache.Cache.
type MetricsSource interface {
	Metrics(tree *hierarchy.Tree, root hierarchy.NodeID) cache.Metrics
}

// Input is a node that matched a selector.
type Input struct {
	Node      hierarchy.NodeID
	Exactness float64  // how literally the selector matched, in [0,1]
	Keys      []string // attributes the selector constrained
}

// Options configure a Ranker. Zero values take defaults.
type Options struct {
	Mode       scoring.Mode
	Container  container.Config
	Predicates []skeleton.Predicate
	Metrics    MetricsSource
}

// Ranker scores candidates. It is safe for concurrent use when its
// MetricsSource is.
type Ranker struct {
	mode     scoring.Mode
	weights  scoring.Weights
	detector *container.Detector
	preds    []skeleton.Predicate
	metrics  MetricsSource
	ids      *heuristic.IDStability
	texts    *heuristic.TextStability
	paths    *heuristic.PathGenerator
}

// New creates a Ranker.
func New(opts Options) *Ranker {
	if opts.Mode == "" {
		opts.Mode = scoring.ModeDefault
	}
	if opts.Container == (container.Config{}) {
		opts.Container = container.DefaultConfig()
	}
	if opts.Predicates == nil {
		opts.Predicates = skeleton.TargetPredicates()
	}
	return &Ranker{
		mode:     opts.Mode,
		weights:  scoring.WeightsFor(opts.Mode),
		detector: container.New(opts.Container),
		preds:    opts.Predicates,
		metrics:  opts.Metrics,
		ids:      heuristic.NewIDStability(),
		texts:    heuristic.NewTextStability(),
		paths:    heuristic.NewPathGenerator(),
	}
}

// Mode returns the weight profile in use.
func (r *Ranker) Mode() scoring.Mode {
	return r.mode
}

// Weights returns the signal weights in use.
func (r *Ranker) Weights() scoring.Weights {
	return r.weights
}

// Detector returns the container detector.
func (r *Ranker) Detector() *container.Detector {
	return r.detector
}

// Rank scores every input and returns them best first. Nothing is filtered.
func (r *Ranker) Rank(tree *hierarchy.Tree, inputs []Input, hints container.Hints) []scoring.Candidate {
	memo := make(map[hierarchy.NodeID]cache.Metrics)
	out := make([]scoring.Candidate, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, r.score(tree, in, hints, memo))
	}
	scoring.SortDesc(out)
	return out
}

func (r *Ranker) score(tree *hierarchy.Tree, in Input, hints container.Hints, memo map[hierarchy.NodeID]cache.Metrics) scoring.Candidate {
	c := scoring.NewCandidate(tree, in.Node)
	n := tree.Node(in.Node)

	trust := r.keyTrust(n, in.Keys)
	c.Scores.Set(scoring.SignalField, in.Exactness*trust)
	c.Explainf("field: exactness %.2f x trust %.2f", in.Exactness, trust)

	sk := skeleton.Evaluate(tree, in.Node, r.preds)
	c.Scores.Set(scoring.SignalSkeleton, sk.Score)
	c.Explainf("skeleton: %.2f", sk.Score)

	if scope, ok := r.detector.Pick(tree, in.Node, hints); ok {
		m, seen := memo[scope.Root]
		if !seen {
			m = r.metricsFor(tree, scope.Root)
			memo[scope.Root] = m
		}
		c.Scores.Set(scoring.SignalGeometry, m.Geometry)
		c.Explainf("container %s (%s, layout %s)", tree.Node(scope.Root).ShortClass(), scope.Reason, m.Layout)

		if len(m.Signatures) > 0 {
			item := itemOf(tree, scope.Root, in.Node)
			ts := signature.Score(tree, scope.Root, item, m.Signatures)
			c.Scores.Set(scoring.SignalTemplate, ts)
			c.Explainf("template: %.2f", ts)
		}
	}

	c.Finish(r.weights)
	return c
}

func (r *Ranker) metricsFor(tree *hierarchy.Tree, root hierarchy.NodeID) cache.Metrics {
	if r.metrics != nil {
		return r.metrics.Metrics(tree, root)
	}
	return cache.Compute(tree, root)
}

// itemOf returns the direct child of root that contains id, or id itself.
func itemOf(tree *hierarchy.Tree, root, id hierarchy.NodeID) hierarchy.NodeID {
	item := id
	for p := tree.Parent(item); p != hierarchy.NoNode && p != root; p = tree.Parent(item) {
		item = p
	}
	return item
}

// keyTrust averages the trust of each constrained key. Without keys the
// node's best path expression stands in.
func (r *Ranker) keyTrust(n *hierarchy.Node, keys []string) float64 {
	if len(keys) == 0 {
		return trustFloor + trustSpan*r.paths.Match(n).Confidence
	}
	total := 0.0
	for _, k := range keys {
		total += trustFloor + trustSpan*r.keyConfidence(n, k)
	}
	return total / float64(len(keys))
}

func (r *Ranker) keyConfidence(n *hierarchy.Node, key string) float64 {
	switch key {
	case hierarchy.AttrResourceID:
		return r.ids.Confidence(n.ResourceID)
	case hierarchy.AttrText:
		return r.texts.Confidence(n.Text)
	case hierarchy.AttrContentDesc:
		return r.texts.Confidence(n.ContentDesc)
	case hierarchy.AttrPath:
		return 1
	default:
		return r.paths.Match(n).Confidence
	}
}

// Signals reports each heuristic matcher on a node, for diagnostics.
func (r *Ranker) Signals(n *hierarchy.Node) []heuristic.Result {
	return []heuristic.Result{r.ids.Match(n), r.texts.Match(n), r.paths.Match(n)}
}

func (r *Ranker) String() string {
	return fmt.Sprintf("ranker(%s)", r.mode)
}
