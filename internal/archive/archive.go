// Package archive merges grouped card entries into a Kanban-style Markdown
// archive. The document is treated as plain lines: anything that is not a
// level-2 heading is passed through untouched.
package archive

import (
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/canvasarchive/internal/models"
)

// Header is the metadata block every archive starts with.
const Header = "---\n\nkanban-plugin: basic\n\n---\n"

var crlfHeader = strings.ReplaceAll(Header, "\n", "\r\n")

const (
	headingMarker = "## "
	entryPrefix   = "- [ ] "
	lineBreak     = "<br>"
)

var breakReplacer = strings.NewReplacer("\r\n", lineBreak, "\r", lineBreak, "\n", lineBreak)

// EntryLine formats a card body as a single unchecked list item.
func EntryLine(body string) string {
	return entryPrefix + breakReplacer.Replace(body)
}

// Heading formats a section heading. The name is normalized so the heading
// stays on one line.
func Heading(name string) string {
	return headingMarker + models.NormalizeName(name)
}

// SectionName reports whether line opens a section and returns its normalized name.
func SectionName(line string) (string, bool) {
	if !strings.HasPrefix(line, headingMarker) {
		return "", false
	}
	return models.NormalizeName(line[len(headingMarker):]), true
}

// Entries turns resolved groups into archive lines, keeping group order.
func Entries(grouped *orderedmap.OrderedMap[string, []models.Node]) *orderedmap.OrderedMap[string, []string] {
	out := orderedmap.New[string, []string]()
	for pair := grouped.Oldest(); pair != nil; pair = pair.Next() {
		lines := make([]string, 0, len(pair.Value))
		for _, n := range pair.Value {
			lines = append(lines, EntryLine(n.Text))
		}
		out.Set(pair.Key, lines)
	}
	return out
}

// walker is the section scan state: outside any section, or inside open.
type walker struct {
	out     []string
	pending *orderedmap.OrderedMap[string, []string]
	cr      string // "\r" when the document uses CRLF line endings

	inSection bool
	open      string
	heading   int // index of the open section's heading in out
}

// enter records a heading line and moves into its section.
func (w *walker) enter(line, name string) {
	w.leave()
	w.out = append(w.out, line)
	w.inSection = true
	w.open = name
	w.heading = len(w.out) - 1
}

// leave flushes pending entries for the open section directly below its heading.
func (w *walker) leave() {
	if !w.inSection {
		return
	}
	if lines, ok := w.pending.Get(w.open); ok {
		w.out = slices.Insert(w.out, w.heading+1, w.terminate(lines)...)
		w.pending.Delete(w.open)
	}
	w.inSection = false
	w.open = ""
}

// terminate returns copies of lines carrying the document's carriage return.
func (w *walker) terminate(lines []string) []string {
	if w.cr == "" {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + w.cr
	}
	return out
}

// Merge inserts entries into doc. Entries for a section that already exists
// go right after its heading, ahead of the existing body; sections that do
// not exist are appended at the end in map order. The header is prepended
// when missing. entries is not modified.
//
// A document whose first line ends in CRLF is a CRLF document: the header is
// matched and written with CRLF and inserted lines use CRLF too.
func Merge(doc string, entries *orderedmap.OrderedMap[string, []string]) string {
	cr := ""
	if i := strings.IndexByte(doc, '\n'); i > 0 && doc[i-1] == '\r' {
		cr = "\r"
	}
	header := Header
	if cr != "" {
		header = crlfHeader
	}
	if !strings.HasPrefix(doc, header) {
		doc = header + doc
	}

	lines := strings.Split(doc, "\n")
	trailingNewline := lines[len(lines)-1] == ""
	if trailingNewline {
		lines = lines[:len(lines)-1]
	} else if cr != "" {
		// Terminate the last line for the walk; undone below if nothing is appended.
		lines[len(lines)-1] += cr
	}

	w := &walker{
		out:     make([]string, 0, len(lines)),
		pending: normalize(entries),
		cr:      cr,
	}
	for _, line := range lines {
		if name, ok := SectionName(line); ok {
			w.enter(line, name)
			continue
		}
		w.out = append(w.out, line)
	}
	w.leave()

	appended := false
	for pair := w.pending.Oldest(); pair != nil; pair = pair.Next() {
		w.out = append(w.out, w.terminate([]string{"", Heading(pair.Key), ""})...)
		w.out = append(w.out, w.terminate(pair.Value)...)
		appended = true
	}

	switch {
	case trailingNewline || appended:
		w.out = append(w.out, "")
	case cr != "":
		last := len(w.out) - 1
		w.out[last] = strings.TrimSuffix(w.out[last], cr)
	}
	return strings.Join(w.out, "\n")
}

// normalize copies entries with normalized names, folding names that collide
// after normalizing into one section.
func normalize(entries *orderedmap.OrderedMap[string, []string]) *orderedmap.OrderedMap[string, []string] {
	out := orderedmap.New[string, []string]()
	if entries == nil {
		return out
	}
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		name := models.NormalizeName(pair.Key)
		prev, _ := out.Get(name)
		out.Set(name, append(slices.Clip(prev), pair.Value...))
	}
	return out
}
