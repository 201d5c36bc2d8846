package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/uiresolve/pkg/config"
	"github.com/devicelab-dev/uiresolve/pkg/core"
)

const screenXML = `<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" package="com.app" bounds="[0,0][1080,2400]">
    <node class="android.widget.Button" package="com.app" resource-id="X" clickable="true" bounds="[100,100][400,250]"/>
    <node class="android.widget.TextView" package="com.app" text="关注" clickable="true" bounds="[100,200][300,260]"/>
    <node class="android.widget.Button" package="com.app" text="确定" clickable="true" bounds="[100,600][500,700]"/>
    <node class="android.widget.TextView" package="com.app" text="确定" clickable="true" bounds="[600,600][1000,700]"/>
    <node class="android.widget.LinearLayout" package="com.app" resource-id="com.app:id/content_root" clickable="true" bounds="[0,0][1080,2328]"/>
  </node>
</hierarchy>`

const feedXML = `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="androidx.recyclerview.widget.RecyclerView" resource-id="com.app:id/feed" bounds="[0,0][1080,2000]" scrollable="true">
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,0][1080,400]"><node class="android.widget.TextView" text="Alpha" bounds="[0,0][500,100]"/></node>
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,400][1080,800]"><node class="android.widget.TextView" text="Beta" bounds="[0,400][500,500]"/></node>
      <node class="android.widget.LinearLayout" clickable="true" bounds="[0,800][1080,1200]"><node class="android.widget.TextView" text="Gamma" bounds="[0,800][500,900]"/></node>
    </node>
  </node>
</hierarchy>`

const planYAML = `plan:
  - id: root
    kind: self_id
    selectors:
      self: {resource_id: com.app:id/content_root}
  - id: second_ok
    kind: global_index_with_strong_checks
    selectors:
      self:
        text: 确定
    index: {global_index: 2}
`

// workspace writes files into a temp dir, points the home directory at it
// and clears UIRESOLVE_* overrides.
func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"UIRESOLVE_CONFIG", "UIRESOLVE_VERBOSE", config.EnvMode, config.EnvMinConfidence,
		config.EnvTimeBudget, config.EnvPerCandidateBudget, config.EnvLogFile, config.EnvCacheSize} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv("UIRESOLVE_HOME", dir)
	return dir
}

// run executes the app and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := NewApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut

	err := app.Run(append([]string{"uiresolve"}, args...))
	return out.String(), err
}

type resolveOutput struct {
	Result struct {
		Coordinate *core.Point `json:"coordinate"`
		Confidence float64     `json:"confidence"`
	} `json:"result"`
	Error *failure `json:"error"`
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
}

func TestGlobalFlags(t *testing.T) {
	want := map[string]bool{
		"config":         false,
		"mode":           false,
		"min-confidence": false,
		"log-file":       false,
		"verbose":        false,
		"cache-size":     false,
	}
	for _, f := range GlobalFlags {
		for _, name := range f.Names() {
			if _, ok := want[name]; ok {
				want[name] = true
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing global flag --%s", name)
		}
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := NewApp()
	for _, name := range []string{"resolve", "chain", "match", "inspect"} {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestResolveCommand(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML})

	out, err := run(t, "resolve", "--target", "text: 关注", filepath.Join(dir, "screen.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got resolveOutput
	decode(t, out, &got)
	if got.Error != nil {
		t.Fatalf("error = %+v", got.Error)
	}
	if got.Result.Coordinate == nil || *got.Result.Coordinate != (core.Point{X: 200, Y: 230}) {
		t.Errorf("Coordinate = %v, want (200,230)", got.Result.Coordinate)
	}
}

func TestResolveCommand_TargetFile(t *testing.T) {
	dir := workspace(t, map[string]string{
		"screen.xml":  screenXML,
		"target.yaml": "resource_id: X\n",
	})

	out, err := run(t, "resolve", "--target-file", filepath.Join(dir, "target.yaml"), filepath.Join(dir, "screen.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got resolveOutput
	decode(t, out, &got)
	if got.Result.Confidence <= 0.5 {
		t.Errorf("Confidence = %v, want > 0.5", got.Result.Confidence)
	}
}

func TestResolveCommand_Ambiguous(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML})

	out, err := run(t, "resolve", "--target", "确定", filepath.Join(dir, "screen.xml"))
	if core.KindOf(err) != core.KindAmbiguousMatch {
		t.Fatalf("error = %v, want an ambiguous match", err)
	}

	var got resolveOutput
	decode(t, out, &got)
	if got.Error == nil || got.Error.Code != "ambiguous_match" {
		t.Fatalf("error = %+v, want ambiguous_match", got.Error)
	}
	if len(got.Error.Suggestions) == 0 {
		t.Error("ambiguous output should carry suggestions")
	}
}

func TestResolveCommand_TargetsFile(t *testing.T) {
	dir := workspace(t, map[string]string{
		"screen.xml": screenXML,
		"targets.yaml": `- name: id
  target: {resource_id: X}
- name: follow
  target: 关注
`,
	})

	out, err := run(t, "resolve", "--targets-file", filepath.Join(dir, "targets.yaml"), "--workers", "2", filepath.Join(dir, "screen.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	decode(t, out, &got)
	if len(got) != 2 || got[0].Name != "id" || got[1].Name != "follow" {
		t.Errorf("results = %+v, want id then follow", got)
	}
}

func TestResolveCommand_Errors(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML})
	snapshot := filepath.Join(dir, "screen.xml")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no snapshot", []string{"resolve"}, "snapshot file is required"},
		{"no target", []string{"resolve", snapshot}, "--target"},
		{"missing snapshot", []string{"resolve", "--target", "x", filepath.Join(dir, "nope.xml")}, "read snapshot"},
		{"bad mode", []string{"--mode", "turbo", "resolve", "--target", "x", snapshot}, "invalid config"},
		{"bad confidence", []string{"--min-confidence", "2", "resolve", "--target", "x", snapshot}, "min_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want one containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	dir := workspace(t, map[string]string{
		"screen.xml":     screenXML,
		"uiresolve.yaml": "mode: turbo\n",
	})
	cfgPath := filepath.Join(dir, "uiresolve.yaml")
	snapshot := filepath.Join(dir, "screen.xml")

	_, err := run(t, "--config", cfgPath, "resolve", "--target", "关注", snapshot)
	if err == nil || !strings.Contains(err.Error(), "turbo") {
		t.Errorf("error = %v, want the mode from the file rejected", err)
	}

	// The flag overrides the file
	if _, err := run(t, "--config", cfgPath, "--mode", "robust", "resolve", "--target", "关注", snapshot); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigFile_Discovered(t *testing.T) {
	dir := workspace(t, map[string]string{
		"screen.xml":     screenXML,
		"uiresolve.yaml": "cache_size: 0\n",
	})

	// The working directory has no uiresolve.yaml, so the home one is used
	_, err := run(t, "resolve", "--target", "关注", filepath.Join(dir, "screen.xml"))
	if err == nil || !strings.Contains(err.Error(), "cache_size") {
		t.Errorf("error = %v, want the home config applied", err)
	}
}

func TestLogFile(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML})
	logPath := filepath.Join(dir, "uiresolve.log")

	if _, err := run(t, "--log-file", logPath, "resolve", "--target", "关注", filepath.Join(dir, "screen.xml")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] resolve") {
		t.Errorf("log = %q, want a resolve entry", data)
	}
}

func TestChainCommand(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML, "plan.yaml": planYAML})

	out, err := run(t, "chain", filepath.Join(dir, "screen.xml"), filepath.Join(dir, "plan.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Result struct {
			Success     bool              `json:"success"`
			UsedVariant string            `json:"usedVariant"`
			Trail       []json.RawMessage `json:"trail"`
		} `json:"result"`
	}
	decode(t, out, &got)
	if !got.Result.Success || got.Result.UsedVariant != "second_ok" {
		t.Errorf("result = %+v, want success via second_ok", got.Result)
	}
	if len(got.Result.Trail) != 2 {
		t.Errorf("len(Trail) = %d, want 2", len(got.Result.Trail))
	}
}

func TestChainCommand_ValidateOnly(t *testing.T) {
	dir := workspace(t, map[string]string{
		"plan.yaml": planYAML,
		"bad.yaml": `plan:
  - id: tap
    kind: bounds_tap
`,
	})

	out, err := run(t, "chain", "--validate-only", "unused.xml", filepath.Join(dir, "plan.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("output = %s, want valid", out)
	}

	_, err = run(t, "chain", "--validate-only", "unused.xml", filepath.Join(dir, "bad.yaml"))
	if core.KindOf(err) != core.KindInvalidSpec {
		t.Errorf("error = %v, want an invalid plan", err)
	}
}

func TestChainCommand_ParseError(t *testing.T) {
	dir := workspace(t, map[string]string{"plan.yaml": "plan:\n  - id: a\n    kind: teleport\n"})

	_, err := run(t, "chain", "unused.xml", filepath.Join(dir, "plan.yaml"))
	if err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Errorf("error = %v, want the unknown kind", err)
	}
}

func TestMatchCommand(t *testing.T) {
	dir := workspace(t, map[string]string{"feed.xml": feedXML})

	out, err := run(t, "match", "--all", filepath.Join(dir, "feed.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Result struct {
			Items []json.RawMessage `json:"items"`
		} `json:"result"`
	}
	decode(t, out, &got)
	if len(got.Result.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(got.Result.Items))
	}
}

func TestMatchCommand_NoContainer(t *testing.T) {
	dir := workspace(t, map[string]string{"screen.xml": screenXML})

	out, err := run(t, "match", filepath.Join(dir, "screen.xml"))
	if core.KindOf(err) != core.KindNoContainerFound {
		t.Fatalf("error = %v, want no container", err)
	}
	if !strings.Contains(out, "no_container_found") {
		t.Errorf("output = %s, want the error code", out)
	}
}

func TestInspectCommand(t *testing.T) {
	dir := workspace(t, map[string]string{"feed.xml": feedXML})

	out, err := run(t, "inspect", "--path", "/hierarchy/android.widget.FrameLayout[1]",
		filepath.Join(dir, "feed.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Nodes int `json:"nodes"`
		List  *struct {
			Root int `json:"root"`
		} `json:"list"`
		Node *struct {
			Class string
		} `json:"node"`
	}
	decode(t, out, &got)
	if got.Nodes != 8 {
		t.Errorf("Nodes = %d, want 8", got.Nodes)
	}
	if got.List == nil || got.List.Root != 1 {
		t.Errorf("List = %+v, want the RecyclerView", got.List)
	}
	if got.Node == nil || got.Node.Class != "android.widget.FrameLayout" {
		t.Errorf("Node = %+v, want the root", got.Node)
	}

	_, err = run(t, "inspect", "--path", "/hierarchy/Nope[1]", filepath.Join(dir, "feed.xml"))
	if err == nil || !strings.Contains(err.Error(), "no node at") {
		t.Errorf("error = %v, want a missing path", err)
	}
}

func TestInspectCommand_At(t *testing.T) {
	dir := workspace(t, map[string]string{"feed.xml": feedXML})
	snapshot := filepath.Join(dir, "feed.xml")

	out, err := run(t, "inspect", "--at", "100,450", snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type node struct {
		Class     string
		Text      string
		Clickable bool
	}
	var got struct {
		Scroller *node `json:"scroller"`
		Hit      *node `json:"hit"`
	}
	decode(t, out, &got)
	if got.Scroller == nil || got.Scroller.Class != "androidx.recyclerview.widget.RecyclerView" {
		t.Errorf("Scroller = %+v, want the RecyclerView", got.Scroller)
	}
	if got.Hit == nil || !got.Hit.Clickable || got.Hit.Class != "android.widget.LinearLayout" {
		t.Errorf("Hit = %+v, want the clickable row", got.Hit)
	}

	tests := []struct {
		name string
		at   string
		want string
	}{
		{"malformed", "100", "invalid point"},
		{"not numeric", "a,b", "invalid point"},
		{"off screen", "5000,5000", "no node contains"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "inspect", "--at", tt.at, snapshot)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want one containing %q", err, tt.want)
			}
		})
	}
}
