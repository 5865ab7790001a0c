// Package parser decodes JSON Canvas documents and outlines Markdown archives.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/starford/canvasarchive/internal/models"
)

const nodesKey = "nodes"

// ParseCanvas decodes a canvas. Every top-level field other than "nodes" is
// kept as raw JSON in Canvas.Extra. Blank input is an empty canvas.
func ParseCanvas(data []byte) (*models.Canvas, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &models.Canvas{Extra: map[string]json.RawMessage{}}, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parser: decode canvas: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("parser: decode canvas: top level is null")
	}

	c := &models.Canvas{Extra: top}
	if raw, ok := top[nodesKey]; ok {
		if err := json.Unmarshal(raw, &c.Nodes); err != nil {
			return nil, fmt.Errorf("parser: decode nodes: %w", err)
		}
		delete(top, nodesKey)
	}
	return c, nil
}

// EncodeCanvas writes nodes first, then the pass-through fields in key order,
// indented with tabs the way Obsidian saves canvases. Raw node objects are
// re-emitted as read, apart from whitespace.
func EncodeCanvas(c *models.Canvas) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + nodesKey + `":[`)
	for i, n := range c.Nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := n.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("parser: encode node %s: %w", n.ID, err)
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if k != nodesKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("parser: encode key %s: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(c.Extra[k])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "\t"); err != nil {
		return nil, fmt.Errorf("parser: encode canvas: %w", err)
	}
	return out.Bytes(), nil
}
