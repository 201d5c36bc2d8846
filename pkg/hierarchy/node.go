// Package hierarchy indexes Android view-hierarchy snapshots.
//
// Nodes live in a flat slice in document order. A node refers to its parent by
// index, never by pointer; children are found by scanning the node's subtree
// range, which is contiguous in document order.
package hierarchy

import (
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/core"
)

// NodeID is the index of a node in its tree, in document order.
type NodeID int

// NoNode is the parent of a root node.
const NoNode NodeID = -1

// Attribute names understood by Node.Attr.
const (
	AttrResourceID  = "resource-id"
	AttrText        = "text"
	AttrContentDesc = "content-desc"
	AttrClass       = "class"
	AttrPackage     = "package"
	AttrHint        = "hint"
	AttrPath        = "path"
)

// Node is one element of a snapshot. Nodes are owned by their Tree and must
// not be modified.
type Node struct {
	ID     NodeID
	Parent NodeID
	Depth  int
	Index  int    // "index" attribute as reported by the dump
	Path   string // /hierarchy/android.widget.FrameLayout[1]/...

	Class       string
	ResourceID  string
	Text        string
	ContentDesc string
	Hint        string
	Package     string
	Bounds      core.Bounds

	Clickable     bool
	LongClickable bool
	Scrollable    bool
	Enabled       bool
	Focusable     bool
	Focused       bool
	Selected      bool
	Checkable     bool
	Checked       bool
	Displayed     bool

	Attrs map[string]string // every attribute as read
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == NoNode
}

// Attr returns a named attribute. Known names map to typed fields; anything
// else is looked up in the raw attribute map.
func (n *Node) Attr(name string) string {
	switch name {
	case AttrResourceID, "id", "resourceId":
		return n.ResourceID
	case AttrText:
		return n.Text
	case AttrContentDesc, "desc", "contentDesc":
		return n.ContentDesc
	case AttrClass, "className":
		return n.Class
	case AttrPackage:
		return n.Package
	case AttrHint:
		return n.Hint
	case AttrPath, "xpath":
		return n.Path
	}
	return n.Attrs[name]
}

// ShortClass returns the class name without its package, e.g. "TextView".
func (n *Node) ShortClass() string {
	return ShortClass(n.Class)
}

// ShortClass strips the package prefix from a fully-qualified class name.
func ShortClass(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		return class[i+1:]
	}
	return class
}

// Label returns the first non-empty of text, content-desc and hint.
func (n *Node) Label() string {
	switch {
	case n.Text != "":
		return n.Text
	case n.ContentDesc != "":
		return n.ContentDesc
	default:
		return n.Hint
	}
}
