package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/canvasarchive/internal/archive"
)

// Section summarises one level-2 section of an archive.
type Section struct {
	Name string `json:"name"`
	Open int    `json:"open"`
	Done int    `json:"done"`
}

// Outline is the parsed shape of an archive document.
type Outline struct {
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Sections    []Section              `json:"sections"`
}

var md = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// ParseArchive splits the frontmatter off data and lists its sections with
// open and checked task counts. Sections are recognised the same way the
// merger recognises them, so setext headings are not sections.
func ParseArchive(data []byte) (*Outline, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	src := []byte(body)
	doc := md.Parser().Parse(text.NewReader(src))

	out := &Outline{Frontmatter: fm, Sections: []Section{}}
	current := -1

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if name, ok := headingName(node, src); ok {
				out.Sections = append(out.Sections, Section{Name: name})
				current = len(out.Sections) - 1
			}
			return ast.WalkSkipChildren, nil
		case *extast.TaskCheckBox:
			if current < 0 {
				break
			}
			if node.IsChecked {
				out.Sections[current].Done++
			} else {
				out.Sections[current].Open++
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// headingName returns the section name when the heading's source line is a
// "## " heading.
func headingName(h *ast.Heading, src []byte) (string, bool) {
	if h.Level != 2 || h.Lines().Len() == 0 {
		return "", false
	}
	seg := h.Lines().At(0)
	start := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
	end := bytes.IndexByte(src[start:], '\n')
	line := src[start:]
	if end >= 0 {
		line = src[start : start+end]
	}
	return archive.SectionName(strings.TrimRight(string(line), "\r"))
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without a closing delimiter, or with YAML that does
// not parse, the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), nil
	}

	return fm, body, nil
}
