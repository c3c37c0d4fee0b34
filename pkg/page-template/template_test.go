package pagetemplate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/always-cache/markdown-assets/assets"
)

func execute(t *testing.T, l *Loader, m Model) string {
	t.Helper()
	var b strings.Builder
	if err := l.Execute(&b, m); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return b.String()
}

func bundledLoader(t *testing.T, root string) *Loader {
	t.Helper()
	l, err := NewLoader(root, assets.FS, assets.TemplateName)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBundledTemplateFeatures(t *testing.T) {
	l := bundledLoader(t, t.TempDir())
	all := execute(t, l, NewModel("<h1>x</h1>", "index.md", "/docs", Features{
		EnableMermaid:    true,
		EnableHlJs:       true,
		GoogleTrackingID: "UA-123",
		CopyrightFooter:  "© Someone",
	}))
	for _, want := range []string{"mermaid.init", "hljs.initHighlightingOnLoad", "GoogleAnalyticsObject", `"UA-123"`, "© Someone", "<h1>x</h1>", "<title>index.md</title>", `href="/docs/markdown-assets.css"`} {
		if !strings.Contains(all, want) {
			t.Fatalf("Page does not contain %s:\n%s", want, all)
		}
	}

	none := execute(t, l, NewModel("<h1>x</h1>", "index.md", "/docs", Features{}))
	for _, unwanted := range []string{"mermaid.init", "hljs.initHighlightingOnLoad", "GoogleAnalyticsObject", "copyright"} {
		if strings.Contains(none, unwanted) {
			t.Fatalf("Page contains %s:\n%s", unwanted, none)
		}
	}
}

func TestTitleIsEscaped(t *testing.T) {
	l := bundledLoader(t, t.TempDir())
	out := execute(t, l, NewModel("", "<script>.md", "/docs", Features{}))
	if strings.Contains(out, "<title><script>") {
		t.Fatal("Title was not escaped")
	}
}

func TestOverrideTemplate(t *testing.T) {
	root := t.TempDir()
	l := bundledLoader(t, root)
	if err := os.WriteFile(filepath.Join(root, OverrideName), []byte("custom {{.Title}}: {{.HTML}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if out := execute(t, l, NewModel("<p>x</p>", "a.md", "/docs", Features{})); out != "custom a.md: <p>x</p>" {
		t.Fatalf("Output is %q", out)
	}

	// edits are picked up
	os.WriteFile(filepath.Join(root, OverrideName), []byte("v2 {{.Title}}"), 0o644)
	if out := execute(t, l, NewModel("", "a.md", "/docs", Features{})); out != "v2 a.md" {
		t.Fatalf("Output is %q", out)
	}
}

func TestBrokenOverrideFails(t *testing.T) {
	root := t.TempDir()
	l := bundledLoader(t, root)
	os.WriteFile(filepath.Join(root, OverrideName), []byte("{{.Title"), 0o644)
	var b strings.Builder
	if err := l.Execute(&b, Model{}); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestBrokenBundledTemplate(t *testing.T) {
	fsys := fstest.MapFS{"broken.html": {Data: []byte("{{if}}")}}
	if _, err := NewLoader(t.TempDir(), fsys, "broken.html"); err == nil {
		t.Fatal("Expected error for broken bundled template")
	}
	if _, err := NewLoader(t.TempDir(), fsys, "missing.html"); err == nil {
		t.Fatal("Expected error for missing bundled template")
	}
}
