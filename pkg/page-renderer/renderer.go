package renderer

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/always-cache/markdown-assets/cache"
	markdown "github.com/always-cache/markdown-assets/pkg/markdown-engine"
	pagetemplate "github.com/always-cache/markdown-assets/pkg/page-template"
	locator "github.com/always-cache/markdown-assets/pkg/resource-locator"
)

var ErrRender = errors.New("render failed")

const (
	HTMLMimeType = "text/html; charset=utf-8"
	CSSMimeType  = "text/css; charset=utf-8"
)

type Config struct {
	Resolver  *locator.Resolver
	Engine    *markdown.Engine
	Templates *pagetemplate.Loader
	// Bundled assets, addressed by bundle locators.
	Bundle   fs.FS
	Features pagetemplate.Features
	// URI prefix the pages are served under.
	URIPath string
	// Character set of the Markdown sources. Defaults to UTF-8.
	Charset string
	// Minify rendered pages and stylesheets.
	Minify bool
	// Last modification time reported for bundled assets. Defaults to now.
	StartedAt time.Time
	Logger    *zerolog.Logger
}

// Renderer loads pages for the cache.
// Markdown sources are rendered into the page template, other sources are passed as is.
type Renderer struct {
	resolver  *locator.Resolver
	engine    *markdown.Engine
	templates *pagetemplate.Loader
	bundle    fs.FS
	features  pagetemplate.Features
	uriPath   string
	charset   encoding.Encoding
	minifier  *minify.M
	startedAt time.Time
	log       zerolog.Logger
	now       func() time.Time
}

func New(config Config) (*Renderer, error) {
	charset := config.Charset
	if charset == "" {
		charset = "UTF-8"
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("charset %s: %w", charset, err)
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	r := &Renderer{
		resolver:  config.Resolver,
		engine:    config.Engine,
		templates: config.Templates,
		bundle:    config.Bundle,
		features:  config.Features,
		uriPath:   config.URIPath,
		charset:   enc,
		startedAt: config.StartedAt,
		log:       logger,
		now:       time.Now,
	}
	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}
	if config.Minify {
		r.minifier = minify.New()
		r.minifier.AddFunc("text/css", css.Minify)
		r.minifier.Add("text/html", &html.Minifier{
			KeepDefaultAttrVals: true,
			KeepDocumentTags:    true,
			KeepEndTags:         true,
			KeepQuotes:          true,
		})
	}
	return r, nil
}

// Load produces the page for a locator, dispatching on the source name.
func (r *Renderer) Load(key string) (cache.Page, error) {
	l := locator.Locator(key)
	if strings.HasSuffix(l.Name(), ".md") {
		return r.Markdown(l)
	}
	return r.Asset(l)
}

// Markdown renders the Markdown source at l into a page.
// The page is stamped with the render time.
func (r *Renderer) Markdown(l locator.Locator) (cache.Page, error) {
	raw, _, err := r.read(l)
	if err != nil {
		r.log.Error().Err(err).Str("source", l.String()).Msg("Markdown source could not be loaded")
		return cache.Page{}, fmt.Errorf("%w: read %s: %w", ErrRender, l, err)
	}
	out, err := r.Page(raw, r.resolver.Relative(l))
	if err != nil {
		return cache.Page{}, err
	}
	return cache.NewPage(out, r.now(), HTMLMimeType), nil
}

// Page renders raw Markdown bytes into a complete page with the given title.
func (r *Renderer) Page(raw []byte, title string) ([]byte, error) {
	source, err := r.charset.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrRender, err)
	}
	fragment := r.engine.Render(source)

	var b bytes.Buffer
	model := pagetemplate.NewModel(string(fragment), title, r.uriPath, r.features)
	if err := r.templates.Execute(&b, model); err != nil {
		return nil, fmt.Errorf("%w: template: %w", ErrRender, err)
	}
	return r.minify("text/html", b.Bytes())
}

// Asset loads a non-Markdown source, currently only stylesheets.
func (r *Renderer) Asset(l locator.Locator) (cache.Page, error) {
	raw, modified, err := r.read(l)
	if err != nil {
		r.log.Error().Err(err).Str("source", l.String()).Msg("Asset could not be loaded")
		return cache.Page{}, fmt.Errorf("%w: read %s: %w", ErrRender, l, err)
	}
	out, err := r.minify("text/css", raw)
	if err != nil {
		return cache.Page{}, err
	}
	return cache.NewPage(out, modified, CSSMimeType), nil
}

func (r *Renderer) read(l locator.Locator) ([]byte, time.Time, error) {
	if l.IsBundled() {
		if r.bundle == nil {
			return nil, time.Time{}, fs.ErrNotExist
		}
		b, err := fs.ReadFile(r.bundle, l.Name())
		return b, r.startedAt, err
	}
	info, err := os.Stat(l.Name())
	if err != nil {
		return nil, time.Time{}, err
	}
	b, err := os.ReadFile(l.Name())
	return b, info.ModTime(), err
}

func (r *Renderer) minify(mediaType string, b []byte) ([]byte, error) {
	if r.minifier == nil {
		return b, nil
	}
	out, err := r.minifier.Bytes(mediaType, b)
	if err != nil {
		return nil, fmt.Errorf("%w: minify: %w", ErrRender, err)
	}
	return out, nil
}
