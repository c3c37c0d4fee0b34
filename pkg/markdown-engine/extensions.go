package markdown

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Document is a parsed document passed to transforms before rendering.
type Document struct {
	Root    ast.Node
	Options Options
	// Headings in document order, ids already assigned.
	Headings []*ast.Heading
}

// Transform rewrites a parsed document.
type Transform func(doc *Document)

// Setup collects what extensions contribute to an engine.
type Setup struct {
	Parser     parser.Extensions
	HTML       html.Flags
	Transforms []Transform
}

// Extension adds a Markdown feature to an engine.
type Extension interface {
	Name() string
	Extend(s *Setup)
}

type extension struct {
	name      string
	parser    parser.Extensions
	html      html.Flags
	transform Transform
}

func (e extension) Name() string {
	return e.name
}

func (e extension) Extend(s *Setup) {
	s.Parser |= e.parser
	s.HTML |= e.html
	if e.transform != nil {
		s.Transforms = append(s.Transforms, e.transform)
	}
}

var (
	AnchorLink    Extension = extension{name: "anchorlink", transform: anchorLinks}
	Autolink      Extension = extension{name: "autolink", parser: parser.Autolink}
	Footnotes     Extension = extension{name: "footnotes", parser: parser.Footnotes, html: html.FootnoteReturnLinks}
	Strikethrough Extension = extension{name: "strikethrough", parser: parser.Strikethrough}
	TaskList      Extension = extension{name: "tasklist", transform: taskListItems}
	Tables        Extension = extension{name: "tables", parser: parser.Tables}
	TOC           Extension = extension{name: "toc", transform: tableOfContents}
	Typographic   Extension = extension{
		name: "typographic",
		html: html.Smartypants | html.SmartypantsFractions | html.SmartypantsDashes | html.SmartypantsLatexDashes,
	}
)

// DefaultExtensions returns the extensions used for served pages, in order.
func DefaultExtensions() []Extension {
	return []Extension{AnchorLink, Autolink, Footnotes, Strikethrough, TaskList, Tables, TOC, Typographic}
}

func insertChild(parent ast.Node, index int, child ast.Node) {
	children := parent.GetChildren()
	children = append(children, nil)
	copy(children[index+1:], children[index:])
	children[index] = child
	parent.SetChildren(children)
	child.SetParent(parent)
}

func replaceNode(old, replacement ast.Node) {
	parent := old.GetParent()
	if parent == nil {
		return
	}
	children := parent.GetChildren()
	for i, c := range children {
		if c == old {
			children[i] = replacement
			replacement.SetParent(parent)
			return
		}
	}
}

func htmlSpan(s string) *ast.HTMLSpan {
	span := &ast.HTMLSpan{}
	span.Literal = []byte(s)
	return span
}

// anchorLinks prepends a self link to every heading with an id.
func anchorLinks(doc *Document) {
	for _, h := range doc.Headings {
		if h.HeadingID == "" {
			continue
		}
		id := template.HTMLEscapeString(h.HeadingID)
		attrs := `href="#` + id + `"`
		if doc.Options.AnchorLinkSetID && !doc.Options.RenderHeaderID {
			attrs += ` id="` + id + `"`
		}
		insertChild(h, 0, htmlSpan(`<a class="anchor" `+attrs+` aria-hidden="true"></a>`))
	}
}

// taskListItems turns list items starting with "[ ]" or "[x]" into disabled checkboxes.
func taskListItems(doc *Document) {
	ast.WalkFunc(doc.Root, func(node ast.Node, entering bool) ast.WalkStatus {
		item, ok := node.(*ast.ListItem)
		if !ok || !entering || item.RefLink != nil {
			return ast.GoToNext
		}
		text := firstText(item)
		if text == nil || len(text.Literal) < 3 {
			return ast.GoToNext
		}
		var box string
		switch strings.ToLower(string(text.Literal[:3])) {
		case "[ ]":
			box = `<input type="checkbox" class="task-list-item-checkbox" disabled="disabled">`
		case "[x]":
			box = `<input type="checkbox" class="task-list-item-checkbox" disabled="disabled" checked="checked">`
		default:
			return ast.GoToNext
		}
		rest := text.Literal[3:]
		if len(rest) > 0 && rest[0] != ' ' && rest[0] != '\t' {
			return ast.GoToNext
		}
		text.Literal = append([]byte(" "), bytes.TrimLeft(rest, " \t")...)
		parent := text.GetParent()
		for i, c := range parent.GetChildren() {
			if c == ast.Node(text) {
				insertChild(parent, i, htmlSpan(box))
				break
			}
		}
		return ast.GoToNext
	})
}

func firstText(node ast.Node) *ast.Text {
	for {
		children := node.GetChildren()
		if len(children) == 0 {
			return nil
		}
		node = children[0]
		if text, ok := node.(*ast.Text); ok {
			return text
		}
	}
}

const tocMarker = "[TOC]"

// tableOfContents replaces a paragraph consisting only of [TOC] with nested links to the headings.
func tableOfContents(doc *Document) {
	var markers []ast.Node
	ast.WalkFunc(doc.Root, func(node ast.Node, entering bool) ast.WalkStatus {
		if p, ok := node.(*ast.Paragraph); ok && entering {
			if isTOCMarker(p) {
				markers = append(markers, p)
			}
			return ast.SkipChildren
		}
		return ast.GoToNext
	})
	if len(markers) == 0 {
		return
	}
	nav := tocHTML(doc.Headings)
	for _, m := range markers {
		block := &ast.HTMLBlock{}
		block.Literal = []byte(nav)
		replaceNode(m, block)
	}
}

func isTOCMarker(p *ast.Paragraph) bool {
	var b strings.Builder
	for _, c := range p.GetChildren() {
		text, ok := c.(*ast.Text)
		if !ok {
			return false
		}
		b.Write(text.Literal)
	}
	return strings.TrimSpace(b.String()) == tocMarker
}

func tocHTML(headings []*ast.Heading) string {
	var b strings.Builder
	b.WriteString(`<nav class="toc">`)
	var levels []int
	for _, h := range headings {
		for len(levels) > 0 && levels[len(levels)-1] > h.Level {
			b.WriteString("</li></ul>")
			levels = levels[:len(levels)-1]
		}
		if len(levels) > 0 && levels[len(levels)-1] == h.Level {
			b.WriteString("</li>")
		} else {
			b.WriteString("<ul>")
			levels = append(levels, h.Level)
		}
		b.WriteString(`<li><a href="#`)
		b.WriteString(template.HTMLEscapeString(h.HeadingID))
		b.WriteString(`">`)
		b.WriteString(template.HTMLEscapeString(headingText(h)))
		b.WriteString("</a>")
	}
	for range levels {
		b.WriteString("</li></ul>")
	}
	b.WriteString("</nav>")
	return b.String()
}
