package heuristic

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// Stability multipliers.
const (
	obfuscatedFactor = 0.2
	dynamicFactor    = 0.3
	containerFactor  = 0.6

	namingShort    = 0.7
	namingSemantic = 1.0
	namingPlain    = 0.85

	trustStability = 0.6
	idGate         = 0.5
)

var genericContainerNames = []string{
	"container", "wrapper", "layout", "frame", "root",
	"content", "main", "holder", "parent", "child",
}

var semanticIDWords = []string{
	"btn", "button", "text", "image", "icon", "title", "desc",
	"header", "footer", "nav", "menu", "tab", "list", "item",
	"card", "avatar", "name", "info", "detail", "action",
}

// IDAssessment describes how stable a resource-id looks.
type IDAssessment struct {
	Name             string   `json:"name"` // id without the "pkg:id/" prefix
	Stability        float64  `json:"stability"`
	Obfuscated       bool     `json:"obfuscated"`
	Dynamic          bool     `json:"dynamic"`
	GenericContainer bool     `json:"genericContainer"`
	ShouldTrust      bool     `json:"shouldTrust"`
	Reasons          []string `json:"reasons,omitempty"`
}

// IDStability flags generated, obfuscated and volatile resource ids.
type IDStability struct {
	obfuscatedPrefix *regexp2.Regexp
	tooShort         *regexp2.Regexp
	hashLike         *regexp2.Regexp
	camelHump        *regexp2.Regexp
	longDigits       *regexp2.Regexp
	numericSuffix    *regexp2.Regexp
	upper            *regexp2.Regexp
}

// NewIDStability compiles the identifier rules.
func NewIDStability() *IDStability {
	return &IDStability{
		obfuscatedPrefix: mustCompile(`^[01]_`),
		tooShort:         mustCompile(`^[a-z]{1,2}$`),
		hashLike:         mustCompile(`^(?=.*[A-Za-z])(?=.*\d)[A-Za-z0-9]{16,}$`),
		camelHump:        mustCompile(`[a-z][A-Z]`),
		longDigits:       mustCompile(`\d{10,}`),
		numericSuffix:    mustCompile(`(?:^|_)\d{3,}$`),
		upper:            mustCompile(`[A-Z]`),
	}
}

// Name strips the "pkg:id/" prefix from a resource id.
func Name(resourceID string) string {
	if i := strings.LastIndex(resourceID, ":id/"); i >= 0 {
		return resourceID[i+len(":id/"):]
	}
	return resourceID
}

// Assess scores a resource id. Empty ids are never trusted.
func (s *IDStability) Assess(resourceID string) IDAssessment {
	if resourceID == "" || resourceID == "NO_ID" {
		return IDAssessment{Reasons: []string{"no resource-id"}}
	}

	a := IDAssessment{Name: Name(resourceID), Stability: 1}
	name := a.Name

	if why, ok := s.obfuscated(name); ok {
		a.Obfuscated = true
		a.Stability *= obfuscatedFactor
		a.Reasons = append(a.Reasons, why)
	}
	if why, ok := s.dynamic(name); ok {
		a.Dynamic = true
		a.Stability *= dynamicFactor
		a.Reasons = append(a.Reasons, why)
	}
	if why, ok := genericContainer(name); ok {
		a.GenericContainer = true
		a.Stability *= containerFactor
		a.Reasons = append(a.Reasons, why)
	}

	q, why := s.naming(name)
	a.Stability *= q
	if why != "" {
		a.Reasons = append(a.Reasons, why)
	}

	a.ShouldTrust = a.Stability >= trustStability
	return a
}

func (s *IDStability) obfuscated(name string) (string, bool) {
	switch {
	case strings.Contains(name, "obfuscated"):
		return "marked obfuscated", true
	case matches(s.obfuscatedPrefix, name):
		return fmt.Sprintf("starts with %q", name[:2]), true
	case matches(s.hashLike, name) && !matches(s.camelHump, name):
		return "looks like a hash", true
	case matches(s.tooShort, name):
		return fmt.Sprintf("%q is too short, likely minified", name), true
	}
	return "", false
}

func (s *IDStability) dynamic(name string) (string, bool) {
	switch {
	case matches(s.longDigits, name):
		return "contains a timestamp-like digit run", true
	case len(name) > 20 && strings.Count(name, "-") >= 3:
		return "looks like a UUID", true
	case matches(s.numericSuffix, name):
		return "ends with a generated number", true
	}
	return "", false
}

func genericContainer(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range genericContainerNames {
		if strings.HasSuffix(lower, p) {
			return fmt.Sprintf("generic container name %q", p), true
		}
	}
	return "", false
}

func (s *IDStability) naming(name string) (float64, string) {
	snake := strings.Contains(name, "_") && len(name) > 3
	camel := matches(s.upper, name)
	if !snake && !camel && len(name) <= 5 {
		return namingShort, "short unstructured name"
	}
	lower := strings.ToLower(name)
	for _, w := range semanticIDWords {
		if strings.Contains(lower, w) {
			return namingSemantic, ""
		}
	}
	return namingPlain, "no semantic naming"
}

// Confidence maps a resource id to a match confidence: 0 for no id,
// otherwise max(0.95*stability, 0.1).
func (s *IDStability) Confidence(resourceID string) float64 {
	a := s.Assess(resourceID)
	if a.Name == "" {
		return 0
	}
	return max(0.95*a.Stability, 0.1)
}

// Match judges the node's resource id.
func (s *IDStability) Match(n *hierarchy.Node) Result {
	a := s.Assess(n.ResourceID)
	r := Result{Matcher: MatcherIDStability}
	if a.Name == "" {
		r.Explain = "no resource-id"
		return r
	}
	r.Confidence = max(0.95*a.Stability, 0.1)
	r.PassedGate = a.ShouldTrust && r.Confidence >= idGate
	r.Explain = fmt.Sprintf("id %q stability %.2f", a.Name, a.Stability)
	if len(a.Reasons) > 0 {
		r.Explain += ": " + strings.Join(a.Reasons, "; ")
	}
	return r
}
