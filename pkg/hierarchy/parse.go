package hierarchy

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/core"
)

type frame struct {
	id     NodeID
	counts map[string]int // per-class sibling counter for path indices
}

// parse decodes UIAutomator XML into nodes in document order. The returned
// ends slice holds, for each node, the exclusive end of its subtree range.
func parse(snapshot string) ([]Node, []NodeID, error) {
	decoder := xml.NewDecoder(strings.NewReader(snapshot))

	var (
		nodes          []Node
		ends           []NodeID
		stack          []frame
		top            = frame{id: NoNode, counts: map[string]int{}}
		foundHierarchy bool
	)

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, parseError("invalid markup", "", len(nodes)).WithCause(err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			// Skip the hierarchy element
			if t.Name.Local == "hierarchy" {
				foundHierarchy = true
				continue
			}

			parent := top
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			id := NodeID(len(nodes))
			n, err := newNode(id, parent.id, len(stack), t)
			if err != nil {
				return nil, nil, err
			}

			parent.counts[n.Class]++
			n.Path = pathOf(nodes, parent.id, n.Class, parent.counts[n.Class])

			nodes = append(nodes, n)
			ends = append(ends, 0)
			stack = append(stack, frame{id: id, counts: map[string]int{}})

		case xml.EndElement:
			if t.Name.Local == "hierarchy" && len(stack) == 0 {
				continue
			}
			if len(stack) == 0 {
				return nil, nil, parseError("unbalanced closing tag", "</"+t.Name.Local+">", len(nodes))
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			ends[closed.id] = NodeID(len(nodes))
		}
	}

	if len(stack) > 0 {
		return nil, nil, parseError("unclosed element", nodes[stack[len(stack)-1].id].Class, len(nodes))
	}
	if !foundHierarchy {
		return nil, nil, parseError("invalid page source: no hierarchy element found", "", 0)
	}
	if len(nodes) == 0 {
		return nil, nil, parseError("snapshot contains no nodes", "", 0)
	}

	return nodes, ends, nil
}

func newNode(id, parent NodeID, depth int, t xml.StartElement) (Node, error) {
	n := Node{
		ID:        id,
		Parent:    parent,
		Depth:     depth,
		Class:     t.Name.Local, // Class name is the element tag
		Enabled:   true,
		Displayed: true,
		Attrs:     make(map[string]string, len(t.Attr)),
	}

	for _, attr := range t.Attr {
		n.Attrs[attr.Name.Local] = attr.Value

		switch attr.Name.Local {
		case "text":
			n.Text = attr.Value
		case "resource-id":
			n.ResourceID = attr.Value
		case "content-desc":
			n.ContentDesc = attr.Value
		case "hint":
			n.Hint = attr.Value
		case "class":
			n.Class = attr.Value // Override if class attr exists
		case "package":
			n.Package = attr.Value
		case "index":
			n.Index, _ = strconv.Atoi(attr.Value)
		case "bounds":
			b, err := ParseBounds(attr.Value)
			if err != nil {
				return Node{}, parseError(err.Error(), attr.Value, int(id))
			}
			n.Bounds = b
		case "enabled":
			n.Enabled = attr.Value != "false"
		case "displayed":
			n.Displayed = attr.Value != "false"
		case "clickable":
			n.Clickable = attr.Value == "true"
		case "long-clickable":
			n.LongClickable = attr.Value == "true"
		case "scrollable":
			n.Scrollable = attr.Value == "true"
		case "focusable":
			n.Focusable = attr.Value == "true"
		case "focused":
			n.Focused = attr.Value == "true"
		case "selected":
			n.Selected = attr.Value == "true"
		case "checkable":
			n.Checkable = attr.Value == "true"
		case "checked":
			n.Checked = attr.Value == "true"
		}
	}

	// UIAutomator nodes always carry a class; <node> tags without one are anonymous
	if n.Class == "node" {
		n.Class = ""
	}

	return n, nil
}

func pathOf(nodes []Node, parent NodeID, class string, nth int) string {
	prefix := "/hierarchy"
	if parent != NoNode {
		prefix = nodes[parent].Path
	}
	name := class
	if name == "" {
		name = "node"
	}
	return fmt.Sprintf("%s/%s[%d]", prefix, name, nth)
}

// ParseBounds parses Android bounds string "[l,t][r,b]". Unlike a lenient
// reader it rejects anything that does not have exactly that shape.
func ParseBounds(s string) (core.Bounds, error) {
	var v [4]int
	rest := s
	for i := 0; i < 2; i++ {
		if !strings.HasPrefix(rest, "[") {
			return core.Bounds{}, fmt.Errorf("bounds must start with '['")
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return core.Bounds{}, fmt.Errorf("bounds missing closing bracket")
		}
		pair := strings.Split(rest[1:end], ",")
		if len(pair) != 2 {
			return core.Bounds{}, fmt.Errorf("bounds corner needs two coordinates")
		}
		for j, p := range pair {
			n, err := strconv.Atoi(p)
			if err != nil {
				return core.Bounds{}, fmt.Errorf("bounds coordinate %q is not an integer", p)
			}
			v[i*2+j] = n
		}
		rest = rest[end+1:]
	}
	if rest != "" {
		return core.Bounds{}, fmt.Errorf("unexpected text after bounds")
	}

	b := core.Bounds{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	if b.Right < b.Left || b.Bottom < b.Top {
		return core.Bounds{}, fmt.Errorf("bounds are inverted")
	}
	return b, nil
}

func parseError(msg, fragment string, node int) *core.ResolveError {
	details := map[string]interface{}{"node": node}
	if fragment != "" {
		details["fragment"] = fragment
		msg = fmt.Sprintf("%s: %q", msg, fragment)
	}
	return core.ErrParse.WithMessage(msg).WithDetails(details)
}
