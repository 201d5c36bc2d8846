package rank

import (
	"errors"
	"reflect"
	"testing"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/disambiguate"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/devicelab-dev/uiresolve/pkg/selector"
)

const screenSnapshot = `<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" package="com.app" bounds="[0,0][1080,2400]">
    <node class="android.widget.Button" package="com.app" resource-id="X" clickable="true" bounds="[100,100][400,250]"/>
    <node class="android.widget.TextView" package="com.app" text="关注" clickable="true" bounds="[100,200][300,260]"/>
    <node class="android.widget.Button" package="com.app" text="确定" clickable="true" bounds="[100,600][500,700]"/>
    <node class="android.widget.TextView" package="com.app" text="确定" clickable="true" bounds="[600,600][1000,700]"/>
    <node class="android.widget.LinearLayout" package="com.app" resource-id="com.app:id/content_root" clickable="true" bounds="[0,0][1080,2328]"/>
  </node>
</hierarchy>`

const listSnapshot = `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="androidx.recyclerview.widget.RecyclerView" resource-id="com.app:id/feed" bounds="[0,0][1080,2000]" scrollable="true">
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,0][1080,400]"><node class="android.widget.TextView" text="Alpha" bounds="[0,0][500,100]"/></node>
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,400][1080,800]"><node class="android.widget.TextView" text="Beta" bounds="[0,400][500,500]"/></node>
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,800][1080,1200]"><node class="android.widget.TextView" text="Gamma" bounds="[0,800][500,900]"/></node>
    </node>
  </node>
</hierarchy>`

func build(t *testing.T, snapshot string) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.Build(snapshot)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tree
}

func inputs(t *testing.T, tree *hierarchy.Tree, spec selector.Spec) []Input {
	t.Helper()
	m, err := selector.Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	ids, matches := m.Filter(tree, tree.All())
	out := make([]Input, len(ids))
	for i, id := range ids {
		out[i] = Input{Node: id, Exactness: matches[i].Exactness, Keys: matches[i].Keys}
	}
	return out
}

func TestRankAndDecide_Identifier(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{ResourceID: "X"}), container.Hints{})
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if cands[0].Confidence <= 0.5 {
		t.Errorf("Confidence = %.3f, want > 0.5", cands[0].Confidence)
	}

	d, err := Decide(cands, tree.Screen(), DefaultPolicy())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Winner.Node != 1 {
		t.Errorf("Winner = %d, want 1", d.Winner.Node)
	}
	if !d.Winner.Passed {
		t.Error("winner should be marked passed")
	}
}

func TestRankAndDecide_Coordinate(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{Text: "关注"}), container.Hints{})
	d, err := Decide(cands, tree.Screen(), DefaultPolicy())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if want := (core.Point{X: 200, Y: 230}); d.Coordinate != want {
		t.Errorf("Coordinate = %+v, want %+v", d.Coordinate, want)
	}
	if !d.Winner.Bounds.Contains(d.Coordinate) {
		t.Errorf("Coordinate %+v outside %s", d.Coordinate, d.Winner.Bounds)
	}
}

func TestDecide_Ambiguous(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{Text: "确定"}), container.Hints{})
	if len(cands) != 2 {
		t.Fatalf("len(cands) = %d, want 2", len(cands))
	}

	_, err := Decide(cands, tree.Screen(), DefaultPolicy())
	if !errors.Is(err, core.ErrAmbiguousMatch) {
		t.Fatalf("Decide() error = %v, want ambiguous match", err)
	}
	var re *core.ResolveError
	if !errors.As(err, &re) {
		t.Fatalf("error %T is not a ResolveError", err)
	}

	has := func(s string) bool {
		for _, got := range re.Suggestions {
			if got == s {
				return true
			}
		}
		return false
	}
	if !has(disambiguate.SpecificClass) {
		t.Errorf("Suggestions = %v, want %q", re.Suggestions, disambiguate.SpecificClass)
	}
	if !has(disambiguate.PositionIndex) {
		t.Errorf("Suggestions = %v, want %q", re.Suggestions, disambiguate.PositionIndex)
	}
	if has(disambiguate.SpecificText) {
		t.Errorf("Suggestions = %v, should not suggest text", re.Suggestions)
	}
}

func TestDecide_UniquenessNotRequired(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{Text: "确定"}), container.Hints{})
	p := DefaultPolicy()
	p.RequireUniqueness = false

	d, err := Decide(cands, tree.Screen(), p)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	// equal confidences keep document order
	if d.Winner.Node != 3 {
		t.Errorf("Winner = %d, want 3", d.Winner.Node)
	}
	if len(d.Passed) != 2 {
		t.Errorf("len(Passed) = %d, want 2", len(d.Passed))
	}
}

func TestDecide_NearlyFullscreenIsUnsafe(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{ResourceID: "com.app:id/content_root"}), container.Hints{})
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if ratio := tree.AreaRatio(cands[0].Node); ratio < 0.969 || ratio > 0.971 {
		t.Fatalf("AreaRatio = %.3f, want 0.97", ratio)
	}

	for _, forbid := range []bool{true, false} {
		p := DefaultPolicy()
		p.ForbidContainers = forbid
		_, err := Decide(cands, tree.Screen(), p)
		if !errors.Is(err, core.ErrUnsafeTarget) {
			t.Errorf("forbidContainers=%v: Decide() error = %v, want unsafe target", forbid, err)
		}
	}
}

func TestDecide_BelowThreshold(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{Text: "确定"}), container.Hints{})
	p := DefaultPolicy()
	p.MinConfidence = 0.999

	d, err := Decide(cands, tree.Screen(), p)
	if !errors.Is(err, core.ErrNoCandidateAboveThreshold) {
		t.Fatalf("Decide() error = %v, want below threshold", err)
	}
	if len(d.Passed) != 0 {
		t.Errorf("len(Passed) = %d, want 0", len(d.Passed))
	}

	if _, err := Decide(nil, tree.Screen(), DefaultPolicy()); !errors.Is(err, core.ErrNoCandidateAboveThreshold) {
		t.Errorf("Decide(nil) error = %v, want below threshold", err)
	}
}

func TestRank_Idempotent(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})
	in := inputs(t, tree, selector.Spec{Text: "确定"})

	a := r.Rank(tree, in, container.Hints{})
	b := r.Rank(tree, in, container.Hints{})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Rank() not repeatable:\n%+v\n%+v", a, b)
	}
}

func TestRank_ContainerSignals(t *testing.T) {
	tree := build(t, listSnapshot)
	c, err := cache.New(4)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	r := New(Options{Metrics: c})

	cands := r.Rank(tree, inputs(t, tree, selector.Spec{Text: "Beta"}), container.Hints{})
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	got := cands[0].Signals
	for _, sig := range []string{"template", "skeleton", "field", "geometry"} {
		if _, ok := got[sig]; !ok {
			t.Errorf("Signals = %v, missing %s", got, sig)
		}
	}
	if got["geometry"] != 0.75 {
		t.Errorf("geometry = %v, want 0.75 (list)", got["geometry"])
	}
	if s := c.Stats(); s.MetricsBuilds != 1 {
		t.Errorf("MetricsBuilds = %d, want 1", s.MetricsBuilds)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Options{})
	if r.Mode() != scoring.ModeDefault {
		t.Errorf("Mode() = %s, want default", r.Mode())
	}
	if r.Weights() != scoring.WeightsFor(scoring.ModeDefault) {
		t.Errorf("Weights() = %+v", r.Weights())
	}
	if r.Detector().Config() != container.DefaultConfig() {
		t.Errorf("Detector config = %+v", r.Detector().Config())
	}

	r = New(Options{Mode: scoring.ModeSpeed})
	if r.Weights().Field != 0.40 {
		t.Errorf("speed Field weight = %v, want 0.40", r.Weights().Field)
	}
}

func TestSignals(t *testing.T) {
	tree := build(t, screenSnapshot)
	r := New(Options{})
	res := r.Signals(tree.Node(2))
	if len(res) != 3 {
		t.Fatalf("len(Signals) = %d, want 3", len(res))
	}
	if res[0].Confidence != 0 {
		t.Errorf("id confidence = %v, want 0 for a node without resource-id", res[0].Confidence)
	}
	if !res[1].PassedGate {
		t.Errorf("text result = %+v, want gate passed", res[1])
	}
}
