package pagetemplate

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// OverrideName is the template file looked up in the resource root.
const OverrideName = "template.html"

// Features are the site-wide page options.
type Features struct {
	EnableMermaid    bool
	EnableHlJs       bool
	GoogleTrackingID string
	CopyrightFooter  string
}

// Model is the data a page template is executed with.
type Model struct {
	// Rendered Markdown fragment.
	HTML template.HTML
	// Path of the source relative to the resource root.
	Title                     string
	UseMermaid                bool
	UseHlJs                   bool
	UseGoogleAnalytics        bool
	GoogleAnalyticsTrackingID string
	CopyrightFooter           string
	// URI prefix the pages are served under, used for links to the stylesheet.
	URIPath string
}

func NewModel(html, title, uriPath string, f Features) Model {
	return Model{
		HTML:                      template.HTML(html),
		Title:                     title,
		UseMermaid:                f.EnableMermaid,
		UseHlJs:                   f.EnableHlJs,
		UseGoogleAnalytics:        f.GoogleTrackingID != "",
		GoogleAnalyticsTrackingID: f.GoogleTrackingID,
		CopyrightFooter:           f.CopyrightFooter,
		URIPath:                   uriPath,
	}
}

// Loader finds the page template: template.html in the resource root if it exists,
// the bundled template otherwise.
type Loader struct {
	override string
	fallback *template.Template
}

// NewLoader parses the bundled template name from fsys.
// A bundled template that does not parse is an error.
func NewLoader(root string, fsys fs.FS, name string) (*Loader, error) {
	fallback, err := template.ParseFS(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("bundled page template %s: %w", name, err)
	}
	return &Loader{
		override: filepath.Join(root, OverrideName),
		fallback: fallback,
	}, nil
}

// OverridePath is where an override template is looked up.
func (l *Loader) OverridePath() string {
	return l.override
}

// Lookup returns the template to use for the next page.
// The override is parsed on every call, so edits apply to the next render.
func (l *Loader) Lookup() (*template.Template, error) {
	b, err := os.ReadFile(l.override)
	if errors.Is(err, fs.ErrNotExist) {
		return l.fallback, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := template.New(OverrideName).Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("page template %s: %w", l.override, err)
	}
	return t, nil
}

// Execute renders m with the current template.
func (l *Loader) Execute(w io.Writer, m Model) error {
	t, err := l.Lookup()
	if err != nil {
		return err
	}
	return t.Execute(w, m)
}
