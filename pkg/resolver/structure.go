package resolver

import (
	"time"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/layout"
	"github.com/devicelab-dev/uiresolve/pkg/logger"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/devicelab-dev/uiresolve/pkg/signature"
	"github.com/devicelab-dev/uiresolve/pkg/skeleton"
)

// StructureRequest asks for the items of a repeated list.
type StructureRequest struct {
	Screen        core.Size       `yaml:"-" json:"-"`
	Hints         container.Hints `yaml:"hints" json:"hints"`
	Mode          scoring.Mode    `yaml:"mode" json:"mode,omitempty"`
	MinConfidence float64         `yaml:"min_confidence" json:"minConfidence"`
	WantAll       bool            `yaml:"want_all" json:"wantAll"`

	// Early stops
	StrictSkeletonOnly     bool `yaml:"strict_skeleton_only" json:"strictSkeletonOnly"`
	SkipGeometry           bool `yaml:"skip_geometry" json:"skipGeometry"`
	SkipTemplateWhenSingle bool `yaml:"skip_template_when_single" json:"skipTemplateWhenSingle"`

	// Fields overrides skeleton.DefaultFieldConfig.
	Fields *skeleton.FieldConfig `yaml:"fields" json:"fields,omitempty"`
	// TemplatePath names the recorded item whose fields others are compared
	// with. Without it the best template match stands in.
	TemplatePath string `yaml:"template_path" json:"templatePath,omitempty"`
	// Signatures are known templates; learned from the list when empty.
	Signatures []signature.Signature `yaml:"signatures" json:"signatures,omitempty"`
}

// StructureResult lists matching items, best first.
type StructureResult struct {
	SnapshotID string                `json:"snapshotId"`
	Container  *container.Scope      `json:"container,omitempty"`
	Layout     layout.Type           `json:"layout,omitempty"`
	Templates  []signature.Signature `json:"templates,omitempty"`
	Items      []scoring.Candidate   `json:"items"`
	Elapsed    time.Duration         `json:"elapsed"`
}

// MatchStructure finds the list container, then scores its direct children
// with template, skeleton, field and geometry signals. Only the best item is
// returned unless req.WantAll is set.
func (r *Resolver) MatchStructure(snapshot string, req StructureRequest) (*StructureResult, error) {
	start := r.now()

	tree, err := r.cache.Tree(snapshot, req.Screen)
	if err != nil {
		return nil, err
	}
	res := &StructureResult{SnapshotID: tree.ID()}

	scope, ok := r.listScope(tree, req.Hints)
	if !ok {
		res.Elapsed = r.now().Sub(start)
		return res, core.ErrNoContainerFound.WithMessage("no list container in the snapshot")
	}
	res.Container = scope

	fields := skeleton.DefaultFieldConfig()
	if req.Fields != nil {
		fields = *req.Fields
	}
	weights := scoring.WeightsFor(modeOr(req.Mode))
	items := tree.Children(scope.Root)

	var (
		templates []signature.Signature
		tplScores []float64
		geometry  = layout.GeometryScore(layout.Unknown)
	)
	if !req.StrictSkeletonOnly {
		res.Layout, templates = r.listMetrics(tree, scope.Root, req)
		if !req.SkipGeometry {
			geometry = layout.GeometryScore(res.Layout)
		}
		if len(templates) > 0 {
			items, tplScores = signature.Prune(tree, scope.Root, items, templates)
		}
		res.Templates = templates
	}

	tpl, hasTpl := templateProfile(tree, req.TemplatePath, items, tplScores)
	preds := skeleton.CardPredicates()

	cands := make([]scoring.Candidate, 0, len(items))
	for i, id := range items {
		c := scoring.NewCandidate(tree, id)

		sk := skeleton.Evaluate(tree, id, preds)
		c.Scores.Set(scoring.SignalSkeleton, sk.Score)
		c.Explainf("skeleton: %.2f", sk.Score)

		if hasTpl {
			fr := skeleton.Score(tpl, skeleton.ProfileOf(tree, id), fields)
			c.Scores.Set(scoring.SignalField, fr.Normalized())
			c.Explainf("fields: %.2f/%.2f", fr.Total, fr.MaxTotal)
		}

		if !req.StrictSkeletonOnly {
			c.Scores.Set(scoring.SignalGeometry, geometry)
			if tplScores != nil {
				c.Scores.Set(scoring.SignalTemplate, tplScores[i])
				c.Explainf("template: %.2f", tplScores[i])
			}
		}

		c.Finish(weights)
		cands = append(cands, c)
	}

	passed := scoring.RetainPassed(cands, req.MinConfidence)
	scoring.SortDesc(passed)
	if !req.WantAll && len(passed) > 1 {
		passed = passed[:1]
	}
	res.Items = passed
	res.Elapsed = r.now().Sub(start)

	logger.Info("match structure: container %s (%s), %d/%d items passed",
		scope.Path, scope.Reason, len(passed), len(cands))
	return res, nil
}

// listScope uses the path hint when it names a node, else the best list
// container in the tree.
func (r *Resolver) listScope(tree *hierarchy.Tree, hints container.Hints) (*container.Scope, bool) {
	if hints.Path != "" {
		if id, ok := tree.ByPath(hints.Path); ok {
			return &container.Scope{
				Root:       id,
				Path:       hints.Path,
				Reason:     "hint_path",
				Confidence: 1,
				Profile:    r.containerCfg.Profile,
			}, true
		}
		logger.Warn("match structure: container hint %s not in snapshot", hints.Path)
	}
	return r.Ranker(scoring.ModeDefault).Detector().PickList(tree)
}

// listMetrics returns the layout and templates for root. Skipping the
// template step only applies when a single item is wanted.
func (r *Resolver) listMetrics(tree *hierarchy.Tree, root hierarchy.NodeID, req StructureRequest) (layout.Type, []signature.Signature) {
	var m cache.Metrics
	if req.SkipGeometry {
		m = cache.Metrics{Layout: layout.Unknown}
		m.Signatures = signature.LearnOrLoad(tree, root, layout.Unknown, nil)
	} else {
		m = r.cache.Metrics(tree, root)
	}

	templates := m.Signatures
	if len(req.Signatures) > 0 {
		templates = signature.LearnOrLoad(tree, root, m.Layout, req.Signatures)
	}
	if !req.WantAll && req.SkipTemplateWhenSingle {
		templates = nil
	}
	return m.Layout, templates
}

// templateProfile picks the item other items are compared with: the node at
// path when given, else the best template match, else the first item.
func templateProfile(tree *hierarchy.Tree, path string, items []hierarchy.NodeID, tplScores []float64) (skeleton.Profile, bool) {
	if path != "" {
		if id, ok := tree.ByPath(path); ok {
			return skeleton.ProfileOf(tree, id), true
		}
	}
	if len(items) == 0 {
		return skeleton.Profile{}, false
	}
	best := 0
	for i, s := range tplScores {
		if s > tplScores[best] {
			best = i
		}
	}
	return skeleton.ProfileOf(tree, items[best]), true
}

func modeOr(m scoring.Mode) scoring.Mode {
	if m == "" {
		return scoring.ModeDefault
	}
	return m
}
