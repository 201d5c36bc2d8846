// Package selector handles flat target specifications: field values plus
// per-field match modes and include/exclude rules.
package selector

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

// MatchMode selects how a field value is compared with a node attribute.
type MatchMode string

const (
	ModeEquals   MatchMode = "equals"
	ModeContains MatchMode = "contains"
	ModeRegex    MatchMode = "regex"
)

// Fields a specification can constrain, in evaluation order.
var Fields = []string{
	hierarchy.AttrResourceID,
	hierarchy.AttrContentDesc,
	hierarchy.AttrText,
	hierarchy.AttrClass,
	hierarchy.AttrPackage,
	hierarchy.AttrPath,
}

// Spec is a flat target description.
// Pure data structure - Compile turns it into a Matcher.
type Spec struct {
	// Field values
	ResourceID  string `yaml:"resource-id" json:"resourceId,omitempty"`
	Text        string `yaml:"text" json:"text,omitempty"`
	ContentDesc string `yaml:"content-desc" json:"contentDesc,omitempty"`
	Class       string `yaml:"class" json:"class,omitempty"`
	Package     string `yaml:"package" json:"package,omitempty"`
	Path        string `yaml:"path" json:"path,omitempty"`

	// State filters
	Clickable *bool `yaml:"clickable" json:"clickable,omitempty"`
	Enabled   *bool `yaml:"enabled" json:"enabled,omitempty"`

	// Rules keyed by field name
	MatchMode     map[string]MatchMode `yaml:"match_mode" json:"matchMode,omitempty"`
	Includes      map[string][]string  `yaml:"includes" json:"includes,omitempty"`
	Excludes      map[string][]string  `yaml:"excludes" json:"excludes,omitempty"`
	RegexIncludes map[string][]string  `yaml:"regex_includes" json:"regexIncludes,omitempty"`
	RegexExcludes map[string][]string  `yaml:"regex_excludes" json:"regexExcludes,omitempty"`
}

// specRaw is used for YAML parsing to accept field aliases.
type specRaw struct {
	ResourceID       string               `yaml:"resource-id"`
	ID               string               `yaml:"id"`
	ResourceIDAlt    string               `yaml:"resourceId"`
	ResourceIDSnake  string               `yaml:"resource_id"`
	Text             string               `yaml:"text"`
	Element          string               `yaml:"element"`
	ContentDesc      string               `yaml:"content-desc"`
	Desc             string               `yaml:"desc"`
	ContentDescAlt   string               `yaml:"contentDesc"`
	ContentDescSnake string               `yaml:"content_desc"`
	Class            string               `yaml:"class"`
	ClassName        string               `yaml:"className"`
	ClassNameSnake   string               `yaml:"class_name"`
	Package          string               `yaml:"package"`
	Path             string               `yaml:"path"`
	XPath            string               `yaml:"xpath"`
	Clickable        *bool                `yaml:"clickable"`
	Enabled          *bool                `yaml:"enabled"`
	MatchMode        map[string]MatchMode `yaml:"match_mode"`
	MatchModeAlt     map[string]MatchMode `yaml:"matchMode"`
	Includes         map[string][]string  `yaml:"includes"`
	Excludes         map[string][]string  `yaml:"excludes"`
	RegexIncludes    map[string][]string  `yaml:"regex_includes"`
	RegexExcludes    map[string][]string  `yaml:"regex_excludes"`
}

// UnmarshalYAML allows Spec to be unmarshaled from a string (text) or a map.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Spec{Text: node.Value}
		return nil
	}

	var raw specRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*s = Spec{
		ResourceID:    firstNonEmpty(raw.ResourceID, raw.ResourceIDSnake, raw.ID, raw.ResourceIDAlt),
		Text:          firstNonEmpty(raw.Text, raw.Element),
		ContentDesc:   firstNonEmpty(raw.ContentDesc, raw.ContentDescSnake, raw.Desc, raw.ContentDescAlt),
		Class:         firstNonEmpty(raw.Class, raw.ClassName, raw.ClassNameSnake),
		Package:       raw.Package,
		Path:          firstNonEmpty(raw.Path, raw.XPath),
		Clickable:     raw.Clickable,
		Enabled:       raw.Enabled,
		MatchMode:     raw.MatchMode,
		Includes:      normalizeKeys(raw.Includes),
		Excludes:      normalizeKeys(raw.Excludes),
		RegexIncludes: normalizeKeys(raw.RegexIncludes),
		RegexExcludes: normalizeKeys(raw.RegexExcludes),
	}
	if s.MatchMode == nil {
		s.MatchMode = raw.MatchModeAlt
	}
	s.MatchMode = normalizeKeys(s.MatchMode)

	return nil
}

// Value returns the value set for a field, or "".
func (s *Spec) Value(field string) string {
	switch canonicalField(field) {
	case hierarchy.AttrResourceID:
		return s.ResourceID
	case hierarchy.AttrText:
		return s.Text
	case hierarchy.AttrContentDesc:
		return s.ContentDesc
	case hierarchy.AttrClass:
		return s.Class
	case hierarchy.AttrPackage:
		return s.Package
	case hierarchy.AttrPath:
		return s.Path
	}
	return ""
}

// SetFields returns the names of fields that carry a value, in Fields order.
func (s *Spec) SetFields() []string {
	var out []string
	for _, f := range Fields {
		if s.Value(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty returns true if no field value or rule is set.
func (s *Spec) IsEmpty() bool {
	return len(s.SetFields()) == 0 &&
		s.Clickable == nil &&
		s.Enabled == nil &&
		len(s.Includes) == 0 &&
		len(s.RegexIncludes) == 0
}

// Mode returns the match mode for a field, defaulting to equals.
func (s *Spec) Mode(field string) MatchMode {
	if m, ok := s.MatchMode[canonicalField(field)]; ok && m != "" {
		return m
	}
	return ModeEquals
}

// Describe returns a human-readable description.
func (s *Spec) Describe() string {
	switch {
	case s.Text != "":
		return s.Text
	case s.ResourceID != "":
		return "#" + s.ResourceID
	case s.ContentDesc != "":
		return "desc:" + s.ContentDesc
	case s.Path != "":
		return s.Path
	case s.Class != "":
		return "class:" + s.Class
	default:
		return ""
	}
}

// DescribeQuoted returns a quoted description like text="value".
func (s *Spec) DescribeQuoted() string {
	var parts []string
	for _, f := range s.SetFields() {
		parts = append(parts, f+"=\""+s.Value(f)+"\"")
	}
	return strings.Join(parts, " ")
}

// canonicalField maps aliases to hierarchy attribute names.
func canonicalField(f string) string {
	switch f {
	case "id", "resourceId", "resource_id":
		return hierarchy.AttrResourceID
	case "desc", "contentDesc", "content_desc":
		return hierarchy.AttrContentDesc
	case "className", "class_name":
		return hierarchy.AttrClass
	case "xpath":
		return hierarchy.AttrPath
	}
	return f
}

func normalizeKeys[V any](m map[string]V) map[string]V {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[canonicalField(k)] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// sortedKeys returns map keys in a fixed order so rule evaluation is deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
