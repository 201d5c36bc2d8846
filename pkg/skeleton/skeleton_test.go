package skeleton

import (
	"math"
	"testing"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

const cardHierarchy = `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="androidx.recyclerview.widget.RecyclerView" resource-id="com.app:id/feed" bounds="[0,200][1080,2200]" scrollable="true">
      <node class="android.widget.LinearLayout" resource-id="com.app:id/card" bounds="[0,200][1080,600]" clickable="true">
        <node class="android.widget.ImageView" bounds="[20,220][200,400]"/>
        <node class="android.widget.TextView" text="First" bounds="[220,220][1000,300]"/>
      </node>
      <node class="android.widget.LinearLayout" resource-id="com.app:id/card" bounds="[0,600][1080,1000]" clickable="true">
        <node class="android.widget.ImageView" bounds="[20,620][200,800]"/>
        <node class="android.widget.TextView" text="Second" bounds="[220,620][1000,700]"/>
      </node>
    </node>
    <node class="android.widget.Button" text="Outside" bounds="[0,2200][1080,2400]" enabled="false"/>
  </node>
</hierarchy>`

// Node ids in cardHierarchy.
const (
	nodeFeed    hierarchy.NodeID = 1
	nodeCard1   hierarchy.NodeID = 2
	nodeImage1  hierarchy.NodeID = 3
	nodeText1   hierarchy.NodeID = 4
	nodeCard2   hierarchy.NodeID = 5
	nodeText2   hierarchy.NodeID = 7
	nodeOutside hierarchy.NodeID = 8
)

func buildTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.Build(cardHierarchy)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tree
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore_SiblingCardsMatch(t *testing.T) {
	tree := buildTree(t)
	res := Score(ProfileOf(tree, nodeCard1), ProfileOf(tree, nodeCard2), DefaultFieldConfig())

	if !res.Passed {
		t.Errorf("Passed = false, want true (total %.2f)", res.Total)
	}
	if len(res.Fields) != 5 {
		t.Fatalf("len(Fields) = %d, want 5 (bounds rule disabled)", len(res.Fields))
	}
	for _, f := range res.Fields {
		if !f.Matched {
			t.Errorf("field %s not matched: %s", f.Field, f.Reason)
		}
	}
	// id 0.8 + empty desc 0.25 + empty text 0.25 + class 1 + children 1
	if !almostEqual(res.Total, 3.3) || !almostEqual(res.MaxTotal, 3.6) {
		t.Errorf("Total/MaxTotal = %v/%v, want 3.3/3.6", res.Total, res.MaxTotal)
	}
}

func TestScore_SiblingTextsBothPresent(t *testing.T) {
	tree := buildTree(t)
	res := Score(ProfileOf(tree, nodeText1), ProfileOf(tree, nodeText2), DefaultFieldConfig())

	var text *FieldMatch
	for i := range res.Fields {
		if res.Fields[i].Field == FieldText {
			text = &res.Fields[i]
		}
	}
	if text == nil {
		t.Fatal("no text field in result")
	}
	if !text.Matched || !almostEqual(text.Score, 0.4) || !almostEqual(text.MaxScore, 0.4) {
		t.Errorf("text = %+v, want matched 0.4/0.4 for two different non-empty texts", *text)
	}
	// empty id 0.5 + empty desc 0.25 + text 0.4 + class 1 + no children 1
	if !almostEqual(res.Total, 3.15) || !res.Passed {
		t.Errorf("Total = %v, Passed = %v, want 3.15 and passed", res.Total, res.Passed)
	}
}

func TestScore_DifferentNodes(t *testing.T) {
	tree := buildTree(t)
	res := Score(ProfileOf(tree, nodeCard1), ProfileOf(tree, nodeOutside), DefaultFieldConfig())

	if res.Normalized() >= 0.5 {
		t.Errorf("Normalized() = %v, want < 0.5", res.Normalized())
	}
	if res.Total > res.MaxTotal {
		t.Errorf("Total %v exceeds MaxTotal %v", res.Total, res.MaxTotal)
	}
}

func TestScoreField_Strategies(t *testing.T) {
	r := DefaultScoringRules()
	tests := []struct {
		name      string
		strategy  Strategy
		a, b      string
		wantScore float64
		wantMatch bool
	}{
		{"exact equal", StrategyExact, "x", "x", 1.0, true},
		{"exact differ", StrategyExact, "x", "y", 0, false},
		{"exact both empty", StrategyExact, "", "", 0.5, false},
		{"both non-empty present", StrategyBothNonEmpty, "x", "y", 0.8, true},
		{"both non-empty missing", StrategyBothNonEmpty, "x", "", 0, false},
		{"both non-empty both empty", StrategyBothNonEmpty, "", "", 0, false},
		{"consistent present", StrategyConsistentEmptiness, "x", "y", 0.8, true},
		{"consistent empty", StrategyConsistentEmptiness, "", "", 0.5, true},
		{"consistent differ", StrategyConsistentEmptiness, "x", "", 0, false},
		{"similarity same", StrategySimilarity, "follow", "follow", 1.0, true},
		{"similarity none", StrategySimilarity, "abc", "xyz", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := FieldRule{Field: FieldText, Enabled: true, Strategy: tt.strategy, Weight: 1, Rules: r}
			fm := scoreField(rule, Profile{Text: tt.a}, Profile{Text: tt.b})
			if !almostEqual(fm.Score, tt.wantScore) {
				t.Errorf("Score = %v, want %v", fm.Score, tt.wantScore)
			}
			if fm.Matched != tt.wantMatch {
				t.Errorf("Matched = %v, want %v (%s)", fm.Matched, tt.wantMatch, fm.Reason)
			}
			if fm.Score > fm.MaxScore {
				t.Errorf("Score %v exceeds MaxScore %v", fm.Score, fm.MaxScore)
			}
		})
	}
}

func TestScore_MismatchPenaltyCapped(t *testing.T) {
	cfg := FieldConfig{
		Fields: []FieldRule{
			{Field: FieldClass, Enabled: true, Strategy: StrategyExact, Weight: 1,
				Rules: ScoringRules{ExactMatch: 1, BothEmpty: 0.5, MismatchPenalty: 0.5}},
		},
		GlobalThreshold: 0.5,
	}
	res := Score(Profile{Class: "A"}, Profile{Class: "B"}, cfg)
	if !almostEqual(res.Total, -0.5) {
		t.Errorf("Total = %v, want -0.5", res.Total)
	}
	if res.Passed {
		t.Error("Passed = true, want false")
	}
	if res.Normalized() != 0 {
		t.Errorf("Normalized() = %v, want 0", res.Normalized())
	}
}

func TestScore_BoundsSimilarity(t *testing.T) {
	cfg := FieldConfig{Fields: []FieldRule{
		{Field: FieldBounds, Enabled: true, Strategy: StrategySimilarity, Weight: 1, Rules: DefaultScoringRules()},
	}}
	a := Profile{Bounds: core.Bounds{Right: 100, Bottom: 100}}
	b := Profile{Bounds: core.Bounds{Left: 500, Top: 500, Right: 600, Bottom: 550}}
	res := Score(a, b, cfg)
	if !almostEqual(res.Total, 0.5) {
		t.Errorf("Total = %v, want 0.5", res.Total)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"a", "a", 1},
		{"a", "b", 0},
		{"night", "nacht", 0.25},
		{"Follow", "follow", 1},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); !almostEqual(got, tt.want) {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEvaluate_CardPredicates(t *testing.T) {
	tree := buildTree(t)

	tests := []struct {
		name       string
		id         hierarchy.NodeID
		wantScore  float64
		wantFailed bool
	}{
		{"card in list", nodeCard1, 1, false},
		{"text inside card", nodeText1, 1, false},
		{"button outside list", nodeOutside, 0, true},
		{"list itself", nodeFeed, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tree, tt.id, CardPredicates())
			if !almostEqual(res.Score, tt.wantScore) {
				t.Errorf("Score = %v, want %v", res.Score, tt.wantScore)
			}
			if res.HardFailed != tt.wantFailed {
				t.Errorf("HardFailed = %v, want %v", res.HardFailed, tt.wantFailed)
			}
			if len(res.Results) != 2 {
				t.Errorf("len(Results) = %d, want 2", len(res.Results))
			}
		})
	}
}

func TestEvaluate_SoftPartialCredit(t *testing.T) {
	tree := buildTree(t)

	res := Evaluate(tree, nodeOutside, TargetPredicates())
	if res.HardFailed {
		t.Error("HardFailed = true, want false for soft predicates")
	}
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0 (not clickable, disabled)", res.Score)
	}

	res = Evaluate(tree, nodeImage1, TargetPredicates())
	want := 1.0 // clickable parent and enabled
	if !almostEqual(res.Score, want) {
		t.Errorf("Score = %v, want %v", res.Score, want)
	}
}

func TestPredicates(t *testing.T) {
	tree := buildTree(t)

	tests := []struct {
		name string
		pred Predicate
		id   hierarchy.NodeID
		want bool
	}{
		{"resource id equal", NewResourceID("com.app:id/card", false, 1, Soft), nodeCard1, true},
		{"resource id differ", NewResourceID("com.app:id/other", false, 1, Soft), nodeCard1, false},
		{"resource id presence", NewResourceID("", true, 1, Soft), nodeCard2, true},
		{"resource id absent", NewResourceID("", true, 1, Soft), nodeText1, false},
		{"class contains", NewClassContains("LinearLayout", 1, Soft), nodeCard1, true},
		{"class lacks", NewClassContains("Button", 1, Soft), nodeCard1, false},
		{"must be empty", NewMustBeEmpty(hierarchy.AttrText, 1, Soft), nodeImage1, true},
		{"must be empty fails", NewMustBeEmpty(hierarchy.AttrText, 1, Soft), nodeText1, false},
		{"descendants with text", NewDescendantCount("TextView", true, 2, 1, Soft), nodeFeed, true},
		{"too few descendants", NewDescendantCount("TextView", true, 2, 1, Soft), nodeCard1, false},
		{"any descendants", NewDescendantCount("", false, 6, 1, Soft), nodeFeed, true},
		{"enabled", NewEnabled(1, Soft), nodeCard1, true},
		{"disabled", NewEnabled(1, Soft), nodeOutside, false},
		{"clickable depth 0", NewClickableOrClickableParent(0, 1, Soft), nodeText1, false},
		{"clickable depth 1", NewClickableOrClickableParent(1, 1, Soft), nodeText1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := tt.pred.Holds(tree, tt.id)
			if got != tt.want {
				t.Errorf("%s.Holds(%d) = %v (%s), want %v", tt.pred.Name(), tt.id, got, why, tt.want)
			}
		})
	}
}
