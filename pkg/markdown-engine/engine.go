package markdown

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Options control heading ids.
type Options struct {
	// Derive an id from the heading text when none is given explicitly.
	GenerateHeaderID bool
	// Put the id on the heading element.
	RenderHeaderID bool
	// Put the id on the anchor link when it is not on the heading.
	AnchorLinkSetID bool
}

func DefaultOptions() Options {
	return Options{
		GenerateHeaderID: true,
		RenderHeaderID:   true,
		AnchorLinkSetID:  true,
	}
}

const baseParserFlags = parser.NoIntraEmphasis | parser.FencedCode | parser.SpaceHeadings | parser.HeadingIDs

// Engine converts Markdown to an HTML fragment.
// It holds no per-document state and is safe for concurrent use.
type Engine struct {
	options    Options
	names      []string
	parser     parser.Extensions
	html       html.Flags
	transforms []Transform
}

// New builds an engine from the given extensions, applied in order.
func New(extensions []Extension, options Options) *Engine {
	setup := Setup{Parser: baseParserFlags, HTML: html.FlagsNone}
	names := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext.Extend(&setup)
		names = append(names, ext.Name())
	}
	return &Engine{
		options:    options,
		names:      names,
		parser:     setup.Parser,
		html:       setup.HTML,
		transforms: setup.Transforms,
	}
}

// Extensions returns the names of the enabled extensions.
func (e *Engine) Extensions() []string {
	return append([]string(nil), e.names...)
}

// Render converts source to HTML.
// Equal input always produces equal output.
func (e *Engine) Render(source []byte) []byte {
	// parser and renderer keep state between documents, so each render gets its own
	p := parser.NewWithExtensions(e.parser)
	root := p.Parse(normalizeNewlines(source))

	doc := &Document{Root: root, Options: e.options}
	doc.Headings = assignHeadingIDs(root, e.options.GenerateHeaderID)
	for _, transform := range e.transforms {
		transform(doc)
	}
	if !e.options.RenderHeaderID {
		for _, h := range doc.Headings {
			h.HeadingID = ""
		}
	}

	renderer := html.NewRenderer(html.RendererOptions{Flags: e.html})
	return gomarkdown.Render(root, renderer)
}

func normalizeNewlines(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
}

// assignHeadingIDs collects the document headings and gives each a unique id.
// Repeated ids get a numeric suffix in document order: test, test-1, test-2.
func assignHeadingIDs(root ast.Node, generate bool) []*ast.Heading {
	var headings []*ast.Heading
	used := map[string]bool{}
	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		h, ok := node.(*ast.Heading)
		if !ok || !entering || h.IsTitleblock {
			return ast.GoToNext
		}
		if h.HeadingID == "" && generate {
			h.HeadingID = slugify(headingText(h))
		}
		if h.HeadingID != "" {
			id := h.HeadingID
			for n := 1; used[id]; n++ {
				id = h.HeadingID + "-" + strconv.Itoa(n)
			}
			used[id] = true
			h.HeadingID = id
		}
		headings = append(headings, h)
		return ast.GoToNext
	})
	return headings
}

// headingText returns the plain text content of a heading.
func headingText(h *ast.Heading) string {
	var b strings.Builder
	ast.WalkFunc(h, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		}
		return ast.GoToNext
	})
	return b.String()
}

// slugify lowercases letters and digits and joins runs of anything else with a single dash.
func slugify(text string) string {
	var b strings.Builder
	dash := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}
