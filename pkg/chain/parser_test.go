package chain

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePlan_SingleDocument(t *testing.T) {
	yaml := `
strategy:
  selected: by_id
  time_budget_ms: 800
  require_uniqueness: false
context:
  package: com.app
  screen: {width: 1080, height: 2400}
  container_anchor:
    by: id
    value: com.app:id/feed
plan:
  - id: by_id
    kind: self_id
    selectors:
      self:
        resource_id: com.app:id/btn
    static_score: 0.9
  - id: by_text
    kind: child-to-parent
    selectors:
      child:
        text: Settings
    structure:
      relation: ancestor_descendant
      levels: 2
`
	plan, err := ParsePlan([]byte(yaml), "plan.yaml")
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}

	if plan.Strategy.Selected != "by_id" {
		t.Errorf("Selected = %q, want by_id", plan.Strategy.Selected)
	}
	if plan.Strategy.TimeBudgetMS != 800 {
		t.Errorf("TimeBudgetMS = %d, want 800", plan.Strategy.TimeBudgetMS)
	}
	if plan.Strategy.RequireUniqueness == nil || *plan.Strategy.RequireUniqueness {
		t.Error("RequireUniqueness should be set to false")
	}
	if !plan.Strategy.Fallback() {
		t.Error("Fallback() should default to true")
	}
	if plan.Context.Screen == nil || plan.Context.Screen.Height != 2400 {
		t.Errorf("Screen = %+v", plan.Context.Screen)
	}
	if a := plan.Context.ContainerAnchor; a == nil || a.By != AnchorByID || a.Value != "com.app:id/feed" {
		t.Errorf("ContainerAnchor = %+v", a)
	}

	if len(plan.Variants) != 2 {
		t.Fatalf("len(Variants) = %d, want 2", len(plan.Variants))
	}
	v := plan.Variants[1]
	if v.Kind != KindChildToParent {
		t.Errorf("Kind = %q, want %q", v.Kind, KindChildToParent)
	}
	if v.Selectors.Child == nil || v.Selectors.Child.Text.Equals != "Settings" {
		t.Errorf("Child = %+v, want text equals Settings", v.Selectors.Child)
	}
	if v.Structure == nil || v.Structure.Levels != 2 {
		t.Errorf("Structure = %+v", v.Structure)
	}
	if plan.Variants[0].StaticScore != 0.9 {
		t.Errorf("StaticScore = %v, want 0.9", plan.Variants[0].StaticScore)
	}
}

func TestParsePlan_HeaderAndVariantDocuments(t *testing.T) {
	yaml := `strategy:
  allow_fallback: false
context:
  activity: .MainActivity
---
- id: tap
  kind: bounds_tap
  bounds: "[0,0][10,10]"
- id: menu
  kind: self_desc
  selectors:
    self:
      content_desc: More options
`
	plan, err := ParsePlan([]byte(yaml), "plan.yaml")
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	if plan.Strategy.Fallback() {
		t.Error("Fallback() should be false")
	}
	if plan.Context.Activity != ".MainActivity" {
		t.Errorf("Activity = %q", plan.Context.Activity)
	}
	if len(plan.Variants) != 2 {
		t.Fatalf("len(Variants) = %d, want 2", len(plan.Variants))
	}
	if plan.Variants[0].Bounds != "[0,0][10,10]" {
		t.Errorf("Bounds = %q", plan.Variants[0].Bounds)
	}
	if plan.Variants[1].Selectors.Self.ContentDesc != "More options" {
		t.Errorf("ContentDesc = %q", plan.Variants[1].Selectors.Self.ContentDesc)
	}
}

func TestParsePlan_BareList(t *testing.T) {
	yaml := `- id: a
  kind: SELF_ID
  selectors:
    self: {resource_id: ok}
`
	plan, err := ParsePlan([]byte(yaml), "plan.yaml")
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	if len(plan.Variants) != 1 || plan.Variants[0].Kind != KindSelfID {
		t.Errorf("Variants = %+v", plan.Variants)
	}
}

func TestParsePlan_TextMatcherForms(t *testing.T) {
	yaml := `plan:
  - id: a
    kind: child_to_parent
    selectors:
      child:
        text:
          contains: Wi
          in_list: [WLAN, 无线网络]
`
	plan, err := ParsePlan([]byte(yaml), "plan.yaml")
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	m := plan.Variants[0].Selectors.Child.Text
	if m.Contains != "Wi" || len(m.InList) != 2 || m.Equals != "" {
		t.Errorf("Text = %+v", m)
	}
}

func TestParsePlan_Errors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantLine int
		wantMsg  string
	}{
		{
			name:    "empty",
			yaml:    "   \n",
			wantMsg: "empty plan",
		},
		{
			name: "unknown kind",
			yaml: `plan:
  - id: a
    kind: teleport
`,
			wantLine: 3,
			wantMsg:  "unknown variant kind: teleport",
		},
		{
			name: "missing kind",
			yaml: `plan:
  - id: a
`,
			wantLine: 2,
			wantMsg:  "no kind",
		},
		{
			name:    "scalar plan",
			yaml:    "hello\n",
			wantMsg: "mapping or a list",
		},
		{
			name: "variants twice",
			yaml: `plan:
  - id: a
    kind: self_id
---
- id: b
  kind: self_id
`,
			wantMsg: "both in the header",
		},
		{
			name: "second document not a list",
			yaml: `strategy: {}
---
id: b
`,
			wantMsg: "must be a list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.yaml), "plan.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if tt.wantLine > 0 && pe.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", pe.Line, tt.wantLine)
			}
			if !strings.Contains(pe.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want to contain %q", pe.Message, tt.wantMsg)
			}
		})
	}
}

func TestParsePlanFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login.yaml")
	content := `plan:
  - id: a
    kind: self_id
    selectors:
      self: {resource_id: com.app:id/login}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := ParsePlanFile(path)
	if err != nil {
		t.Fatalf("ParsePlanFile() error = %v", err)
	}
	if plan.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", plan.SourcePath, path)
	}

	if _, err := ParsePlanFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestSplitYAMLDocuments_KeepsBlockScalars(t *testing.T) {
	content := `context:
  activity: |
    ---
    not a separator
---
- id: a
`
	parts := splitYAMLDocuments(content)
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2", len(parts))
	}
	if !strings.Contains(parts[0], "not a separator") {
		t.Errorf("block scalar lost: %q", parts[0])
	}
}
