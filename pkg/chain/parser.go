package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParsePlanFile parses a plan file.
func ParsePlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided plan file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParsePlan(data, path)
}

// ParsePlan parses plan YAML (or JSON) content.
//
// A plan is either one mapping with strategy, context and plan keys, or two
// documents: a header mapping (strategy, context) followed by the variant
// list.
func ParsePlan(data []byte, sourcePath string) (*Plan, error) {
	parts := splitYAMLDocuments(string(data))

	plan := &Plan{SourcePath: sourcePath}

	switch len(parts) {
	case 0:
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty plan file",
		}
	case 1:
		if err := parseDocument(parts[0], plan); err != nil {
			return nil, err
		}
	default:
		if err := parseDocument(parts[0], plan); err != nil {
			return nil, err
		}
		if len(plan.Variants) > 0 {
			return nil, &ParseError{
				Path:    sourcePath,
				Message: "variants given both in the header and in a second document",
			}
		}
		if err := parseVariants(parts[1], plan); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 && strings.TrimSpace(current.String()) != "" {
				parts = append(parts, current.String())
			}
			current.Reset()
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseDocument(content string, plan *Plan) error {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return wrapParseError(plan.SourcePath, 0, err)
	}
	root := documentRoot(&doc)
	if root == nil {
		return &ParseError{Path: plan.SourcePath, Line: 1, Message: "empty plan document"}
	}

	// A bare list is a plan without header
	if root.Kind == yaml.SequenceNode {
		return decodeVariants(root, plan)
	}
	if root.Kind != yaml.MappingNode {
		return &ParseError{
			Path:    plan.SourcePath,
			Line:    root.Line,
			Message: "plan must be a mapping or a list of variants",
		}
	}

	var header struct {
		Strategy StrategyConfig `yaml:"strategy"`
		Context  Context        `yaml:"context"`
	}
	if err := root.Decode(&header); err != nil {
		return wrapParseError(plan.SourcePath, root.Line, err)
	}
	plan.Strategy = header.Strategy
	plan.Context = header.Context

	if variants := mappingValue(root, "plan", "variants"); variants != nil {
		return decodeVariants(variants, plan)
	}
	return nil
}

func parseVariants(content string, plan *Plan) error {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return wrapParseError(plan.SourcePath, 0, err)
	}
	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.SequenceNode {
		line := 1
		if root != nil {
			line = root.Line
		}
		return &ParseError{Path: plan.SourcePath, Line: line, Message: "variants must be a list"}
	}
	return decodeVariants(root, plan)
}

func decodeVariants(seq *yaml.Node, plan *Plan) error {
	if seq.Kind != yaml.SequenceNode {
		return &ParseError{Path: plan.SourcePath, Line: seq.Line, Message: "plan must be a list of variants"}
	}
	for _, node := range seq.Content {
		v, err := decodeVariant(node, plan.SourcePath)
		if err != nil {
			return err
		}
		plan.Variants = append(plan.Variants, v)
	}
	return nil
}

func decodeVariant(node *yaml.Node, sourcePath string) (Variant, error) {
	if node.Kind != yaml.MappingNode {
		return Variant{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "variant must be a mapping",
		}
	}

	kindNode := mappingValue(node, "kind")
	if kindNode == nil {
		return Variant{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "variant has no kind",
		}
	}

	var v Variant
	if err := node.Decode(&v); err != nil {
		return Variant{}, wrapParseError(sourcePath, node.Line, err)
	}
	if !v.Kind.Valid() {
		return Variant{}, &ParseError{
			Path:    sourcePath,
			Line:    kindNode.Line,
			Message: fmt.Sprintf("unknown variant kind: %s", kindNode.Value),
		}
	}
	return v, nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

// mappingValue returns the value of the first of keys present in a mapping.
func mappingValue(node *yaml.Node, keys ...string) *yaml.Node {
	for i := 0; i < len(node.Content)-1; i += 2 {
		for _, k := range keys {
			if node.Content[i].Value == k {
				return node.Content[i+1]
			}
		}
	}
	return nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}
