package signature

import (
	"math"
	"testing"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/layout"
)

const feedHierarchy = `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="androidx.recyclerview.widget.RecyclerView" bounds="[0,0][1080,2000]" scrollable="true">
      <node class="android.widget.TextView" text="Header" bounds="[0,0][1080,100]"/>
      <node class="android.widget.LinearLayout" bounds="[0,100][1080,500]" clickable="true">
        <node class="android.widget.ImageView" bounds="[0,100][300,500]"/>
        <node class="android.widget.TextView" text="One" bounds="[300,100][1080,200]"/>
      </node>
      <node class="android.widget.LinearLayout" bounds="[0,500][1080,900]" clickable="true">
        <node class="android.widget.ImageView" bounds="[0,500][300,900]"/>
        <node class="android.widget.TextView" text="Two" bounds="[300,500][1080,600]"/>
      </node>
      <node class="android.widget.LinearLayout" bounds="[0,900][1080,1300]" clickable="true">
        <node class="android.widget.ImageView" bounds="[0,900][300,1300]"/>
        <node class="android.widget.TextView" text="Three" bounds="[300,900][1080,1000]"/>
      </node>
      <node class="android.widget.LinearLayout" bounds="[0,1300][1080,1700]" clickable="true">
        <node class="android.widget.ImageView" bounds="[0,1300][300,1700]"/>
        <node class="android.widget.TextView" text="Four" bounds="[300,1300][1080,1400]"/>
      </node>
    </node>
    <node class="android.widget.Button" text="Post" bounds="[0,2000][100,2100]"/>
  </node>
</hierarchy>`

const (
	nodeList   hierarchy.NodeID = 1
	nodeHeader hierarchy.NodeID = 2
	nodeCard1  hierarchy.NodeID = 3
	nodeCard4  hierarchy.NodeID = 12
	nodeButton hierarchy.NodeID = 15
)

func buildTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.Build(feedHierarchy)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tree
}

func TestShape(t *testing.T) {
	tree := buildTree(t)
	if got, want := Shape(tree, nodeCard1), "LinearLayout(ImageView,TextView)"; got != want {
		t.Errorf("Shape(card) = %q, want %q", got, want)
	}
	if got, want := Shape(tree, nodeHeader), "TextView"; got != want {
		t.Errorf("Shape(header) = %q, want %q", got, want)
	}
	// depth is capped at two levels below the node
	root := Shape(tree, 0)
	if root != "FrameLayout(RecyclerView(TextView,LinearLayout,LinearLayout,LinearLayout,LinearLayout),Button)" {
		t.Errorf("Shape(root) = %q", root)
	}
}

func TestLearnOrLoad_Learns(t *testing.T) {
	tree := buildTree(t)
	sigs := LearnOrLoad(tree, nodeList, layout.List, nil)

	if len(sigs) != maxExemplars {
		t.Fatalf("len(sigs) = %d, want %d", len(sigs), maxExemplars)
	}
	for _, s := range sigs {
		if s.Shape != "LinearLayout(ImageView,TextView)" {
			t.Errorf("Shape = %q, want card shape", s.Shape)
		}
		if len(s.AncestorChain) != 1 || s.AncestorChain[0] != "RecyclerView" {
			t.Errorf("AncestorChain = %v, want [RecyclerView]", s.AncestorChain)
		}
		if s.IgnoreHeight {
			t.Error("IgnoreHeight = true for a list layout")
		}
		if s.Source != SourceLearned {
			t.Errorf("Source = %q, want %q", s.Source, SourceLearned)
		}
		if math.Abs(s.HeightRatio-0.2) > 1e-9 || s.WidthRatio != 1 {
			t.Errorf("ratios = %v x %v, want 1 x 0.2", s.WidthRatio, s.HeightRatio)
		}
	}
}

func TestLearnOrLoad_VariableHeight(t *testing.T) {
	tree := buildTree(t)
	for _, s := range LearnOrLoad(tree, nodeList, layout.WaterfallMulti, nil) {
		if !s.IgnoreHeight {
			t.Error("IgnoreHeight = false for a waterfall layout")
		}
	}
}

func TestLearnOrLoad_NoRepeats(t *testing.T) {
	tree := buildTree(t)
	if sigs := LearnOrLoad(tree, nodeCard1, layout.Unknown, nil); sigs != nil {
		t.Errorf("LearnOrLoad(card) = %v, want nil", sigs)
	}
}

func TestLearnOrLoad_Known(t *testing.T) {
	tree := buildTree(t)
	known := []Signature{{Shape: "Button", WidthRatio: 0.5}}
	sigs := LearnOrLoad(tree, nodeList, layout.List, known)
	if len(sigs) != 1 || sigs[0].Shape != "Button" {
		t.Fatalf("LearnOrLoad returned %v, want the known signature", sigs)
	}
	if sigs[0].Source != SourceKnown {
		t.Errorf("Source = %q, want %q", sigs[0].Source, SourceKnown)
	}
	if known[0].Source != "" {
		t.Error("LearnOrLoad modified the caller's slice")
	}
}

func TestScore(t *testing.T) {
	tree := buildTree(t)
	sigs := LearnOrLoad(tree, nodeList, layout.List, nil)

	card := Score(tree, nodeList, nodeCard4, sigs)
	if math.Abs(card-1) > 1e-9 {
		t.Errorf("Score(card) = %v, want 1", card)
	}
	header := Score(tree, nodeList, nodeHeader, sigs)
	if header >= card || header < MinScore {
		t.Errorf("Score(header) = %v, want between %v and %v", header, MinScore, card)
	}
	button := Score(tree, nodeList, nodeButton, sigs)
	if button >= MinScore {
		t.Errorf("Score(button) = %v, want < %v", button, MinScore)
	}
	if got := Score(tree, nodeList, nodeCard4, nil); got != 0 {
		t.Errorf("Score without signatures = %v, want 0", got)
	}
}

func TestPrune(t *testing.T) {
	tree := buildTree(t)
	sigs := LearnOrLoad(tree, nodeList, layout.List, nil)

	kept, scores := Prune(tree, nodeList, []hierarchy.NodeID{nodeButton, nodeHeader, nodeCard4}, sigs)
	if len(kept) != 2 || kept[0] != nodeHeader || kept[1] != nodeCard4 {
		t.Errorf("kept = %v, want [%d %d]", kept, nodeHeader, nodeCard4)
	}
	if len(scores) != len(kept) {
		t.Errorf("len(scores) = %d, want %d", len(scores), len(kept))
	}
}

func TestChainSimilarity(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{nil, nil, 0},
		{[]string{"RecyclerView"}, []string{"RecyclerView"}, 1},
		{[]string{"LinearLayout", "RecyclerView"}, []string{"RecyclerView"}, 0.5},
		{[]string{"A", "RecyclerView"}, []string{"B", "RecyclerView"}, 0.5},
		{[]string{"ListView"}, []string{"RecyclerView"}, 0},
	}
	for _, tt := range tests {
		if got := chainSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("chainSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
