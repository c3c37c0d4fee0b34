package mdassets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/markdown-assets/assets"
	"github.com/always-cache/markdown-assets/cache"
	markdown "github.com/always-cache/markdown-assets/pkg/markdown-engine"
	renderer "github.com/always-cache/markdown-assets/pkg/page-renderer"
	pagetemplate "github.com/always-cache/markdown-assets/pkg/page-template"
	locator "github.com/always-cache/markdown-assets/pkg/resource-locator"
	static "github.com/always-cache/markdown-assets/pkg/static-passthrough"
	"github.com/always-cache/markdown-assets/rfc9110"
	"github.com/always-cache/markdown-assets/rfc9211"
)

// ThemeStylesheet is the stylesheet name served from the resource root,
// or from the bundled default when the root has none.
const ThemeStylesheet = "markdown-assets.css"

const cacheName = "MarkdownAssets"

type Config struct {
	Settings Settings
	// Responder for everything that is not Markdown or the stylesheet.
	// A file server on the resource root is used if nil.
	Static http.Handler
	// Store for rendered pages. A memory store is used if nil.
	PageStore cache.Provider
	// Store for stylesheets. A memory store is used if nil.
	AssetStore cache.Provider
	// Markdown extensions, markdown.DefaultExtensions() if nil.
	Extensions []markdown.Extension
	// Markdown options, markdown.DefaultOptions() if nil.
	MarkdownOptions *markdown.Options
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Server renders Markdown under a URI prefix into HTML pages and serves them
// from a cache, passing every other request to a static responder.
type Server struct {
	settings  Settings
	prefix    string
	resolver  *locator.Resolver
	renderer  *renderer.Renderer
	pages     *cache.Loading
	assets    *cache.Loading
	static    http.Handler
	templates *pagetemplate.Loader
	log       zerolog.Logger
}

// CreateServer initializes the server.
// Invalid settings, a missing resource root and an unusable bundled template
// are reported as ErrConfiguration.
func CreateServer(config Config) (*Server, error) {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	settings := config.Settings
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("prefix", settings.Server.URIPrefix).
		Logger()

	assetSpec := cache.MustParseSpec(settings.CacheSpec)
	pageSpec := cache.MustParseSpec(settings.RenderCacheSpec)

	resolver, err := locator.NewResolver(settings.Server.ResourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	templates, err := pagetemplate.NewLoader(resolver.Root(), assets.FS, assets.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	extensions := config.Extensions
	if extensions == nil {
		extensions = markdown.DefaultExtensions()
	}
	options := markdown.DefaultOptions()
	if config.MarkdownOptions != nil {
		options = *config.MarkdownOptions
	}
	engine := markdown.New(extensions, options)

	r, err := renderer.New(renderer.Config{
		Resolver:  resolver,
		Engine:    engine,
		Templates: templates,
		Bundle:    assets.FS,
		Features: pagetemplate.Features{
			EnableMermaid:    settings.EnableMermaid,
			EnableHlJs:       settings.EnableHlJs,
			GoogleTrackingID: settings.GoogleTrackingID,
			CopyrightFooter:  settings.CopyrightFooter,
		},
		URIPath: settings.Server.pathPrefix(),
		Charset: settings.Server.Charset,
		Minify:  settings.Minify,
		Logger:  &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	pageStore := config.PageStore
	if pageStore == nil {
		pageStore = cache.NewMemCache(pageSpec.MaximumSize)
	}
	assetStore := config.AssetStore
	if assetStore == nil {
		assetStore = cache.NewMemCache(assetSpec.MaximumSize)
	}

	s := &Server{
		settings:  settings,
		prefix:    settings.Server.pathPrefix(),
		resolver:  resolver,
		renderer:  r,
		pages:     cache.NewLoading(pageStore, pageSpec, r.Load, logger.With().Str("cache", "pages").Logger()),
		assets:    cache.NewLoading(assetStore, assetSpec, r.Load, logger.With().Str("cache", "assets").Logger()),
		static:    config.Static,
		templates: templates,
		log:       logger,
	}
	if s.static == nil {
		s.static = static.NewFileServer(static.Config{
			Root:      resolver.Root(),
			URIPrefix: s.prefix,
			IndexFile: settings.Server.IndexFile,
			Charset:   settings.Server.Charset,
			Logger:    &logger,
		})
	}

	logger.Info().
		Str("root", resolver.Root()).
		Strs("extensions", engine.Extensions()).
		Str("renderCacheSpec", pageSpec.String()).
		Str("cacheSpec", assetSpec.String()).
		Msg("Serving Markdown assets")
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel, ok := strings.CutPrefix(r.URL.Path, s.prefix)
	if !ok || (rel != "" && !strings.HasPrefix(rel, "/")) {
		http.NotFound(w, r)
		return
	}
	if rel == "" || rel == "/" {
		rel = "/" + s.settings.Server.IndexFile
	}

	switch {
	case strings.HasSuffix(rel, ".md"):
		if !s.allowMethod(w, r) {
			return
		}
		l, err := s.resolver.Resolve(rel)
		if err != nil {
			var traversal *locator.TraversalError
			if errors.As(err, &traversal) {
				s.log.Warn().
					Str("resolved", traversal.Resolved).
					Str("root", traversal.Root).
					Msg("Resolved asset path was outside of resource root - possible path traversal attempt?")
			} else {
				s.log.Trace().Err(err).Msg("No such Markdown source")
			}
			http.NotFound(w, r)
			return
		}
		s.serveCached(w, r, s.pages, l)

	case strings.HasSuffix(rel, ThemeStylesheet):
		if !s.allowMethod(w, r) {
			return
		}
		l, ok := s.resolver.Lookup(rel)
		if !ok {
			// no override provided - use default
			l = locator.Bundled(assets.StylesheetName)
		}
		s.serveCached(w, r, s.assets, l)

	default:
		s.static.ServeHTTP(w, r)
	}
}

func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return false
}

func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, c *cache.Loading, l locator.Locator) {
	page, outcome, err := c.Get(string(l))
	if err != nil {
		s.log.Error().Err(err).Str("source", l.String()).Msg("Error when fetching cached/fresh rendered content")
		http.NotFound(w, r)
		return
	}

	cs := rfc9211.CacheStatus{Cache: cacheName}
	if outcome.Hit {
		cs.Hit()
	} else {
		cs.Forward(rfc9211.FwdReasonUriMiss)
		cs.Stored = outcome.Stored
		cs.Collapsed = outcome.Collapsed
	}
	w.Header().Set(rfc9211.Header, cs.String())

	// the client already has the latest version
	if rfc9110.NotModified(r, page.ETag, page.LastModified) {
		rfc9110.WriteNotModified(w, page.ETag, page.LastModified)
		s.logRequest(r, http.StatusNotModified, cs)
		return
	}

	h := w.Header()
	rfc9110.SetValidators(h, page.ETag, page.LastModified)
	h.Set("Content-Type", page.MimeType)
	rfc9110.SetContentLength(h, len(page.Bytes))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := w.Write(page.Bytes); err != nil {
			s.log.Error().Err(err).Msg("Could not write response body to client")
		}
	}
	s.logRequest(r, http.StatusOK, cs)
}

// Invalidate drops cached output for the file at path, absolute or relative to the resource root.
// A changed page template drops every rendered page.
func (s *Server) Invalidate(path string) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.resolver.Root(), path)
	}
	path = filepath.Clean(path)
	s.log.Trace().Str("path", path).Msg("Invalidating")
	s.pages.Purge(path)
	s.assets.Purge(path)
	if path == s.templates.OverridePath() {
		s.pages.PurgeFunc(func(key string) bool {
			return strings.HasSuffix(key, ".md")
		})
	}
}

// InvalidateTree drops cached output for every file below dir,
// absolute or relative to the resource root.
func (s *Server) InvalidateTree(dir string) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.resolver.Root(), dir)
	}
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	s.log.Trace().Str("dir", dir).Msg("Invalidating tree")
	below := func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}
	s.pages.PurgeFunc(below)
	s.assets.PurgeFunc(below)
}

// Sweep removes expired entries from both caches until ctx is done.
func (s *Server) Sweep(ctx context.Context, interval time.Duration) {
	go s.assets.Sweep(ctx, interval)
	s.pages.Sweep(ctx, interval)
}

// Render renders the Markdown source at the request-relative path without caching.
func (s *Server) Render(requestPath string) (cache.Page, error) {
	l, err := s.resolver.Resolve(requestPath)
	if err != nil {
		return cache.Page{}, err
	}
	return s.renderer.Markdown(l)
}

// Root returns the canonical resource root.
func (s *Server) Root() string {
	return s.resolver.Root()
}

func (s *Server) logRequest(r *http.Request, status int, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.Status == rfc9211.StatusHit {
		isHit = 1
	}
	s.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("status", status).
		Str("cache", cs.String()).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
