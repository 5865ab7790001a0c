// Package models defines the domain types for canvasarchive.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Node kinds used by the archiver. Any other kind is carried through untouched.
const (
	KindGroup = "group"
	KindText  = "text"
)

// Node is a single element of a JSON Canvas document.
//
// Raw holds the exact JSON object the node was decoded from; encoding a node
// that still carries Raw re-emits it as-is, so fields this package does not
// model survive a round trip.
type Node struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
	Color  string  `json:"color,omitempty"`
	Text   string  `json:"text,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type nodeFields Node

// UnmarshalJSON decodes the modelled fields and keeps a copy of the source object.
func (n *Node) UnmarshalJSON(data []byte) error {
	var f nodeFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Node(f)
	n.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source object when present.
func (n Node) MarshalJSON() ([]byte, error) {
	if len(n.Raw) > 0 {
		return n.Raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(nodeFields(n)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Area returns width * height.
func (n Node) Area() float64 {
	return n.Width * n.Height
}

// Contains reports whether other lies entirely within n. Edges are inclusive:
// a rectangle that coincides with n's boundary is contained.
func (n Node) Contains(other Node) bool {
	return other.X >= n.X &&
		other.X+other.Width <= n.X+n.Width &&
		other.Y >= n.Y &&
		other.Y+other.Height <= n.Y+n.Height
}

// Name returns the group label as a section name (see NormalizeName).
func (n Node) Name() string {
	return NormalizeName(n.Label)
}

// NormalizeName folds every run of whitespace, line breaks included, into a
// single space and trims the ends, so a name always fits on one line.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Selector picks the nodes that should be swept off a canvas.
type Selector struct {
	Type  string
	Color string
}

// Match reports whether n is selected.
func (s Selector) Match(n Node) bool {
	return n.Type == s.Type && n.Color == s.Color
}

// Canvas is a decoded JSON Canvas document.
//
// Extra carries every top-level field other than "nodes" (edges, plugin
// metadata) without interpreting it.
type Canvas struct {
	Nodes []Node
	Extra map[string]json.RawMessage
}

// Candidates returns the selected nodes in document order.
func (c *Canvas) Candidates(sel Selector) []Node {
	var out []Node
	for _, n := range c.Nodes {
		if sel.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// Groups returns the group nodes that carry a non-blank label, in document order.
func (c *Canvas) Groups() []Node {
	var out []Node
	for _, n := range c.Nodes {
		if n.Type == KindGroup && n.Name() != "" {
			out = append(out, n)
		}
	}
	return out
}

// Without returns a new canvas with the given node IDs removed. Surviving
// nodes keep their order and their raw encoding; Extra is shared.
func (c *Canvas) Without(ids map[string]struct{}) *Canvas {
	out := &Canvas{
		Nodes: make([]Node, 0, len(c.Nodes)),
		Extra: c.Extra,
	}
	for _, n := range c.Nodes {
		if _, drop := ids[n.ID]; drop {
			continue
		}
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

// IDs collects the IDs of nodes into a set.
func IDs(nodes []Node) map[string]struct{} {
	set := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		set[n.ID] = struct{}{}
	}
	return set
}
