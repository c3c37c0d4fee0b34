package static

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	tee "github.com/always-cache/markdown-assets/pkg/response-writer-tee"
)

type Config struct {
	// Directory the files are served from.
	Root string
	// URI prefix stripped from request paths.
	URIPrefix string
	// File a directory request is redirected to, if it exists in the directory.
	IndexFile string
	// Charset added to textual content types without one.
	Charset string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// FileServer serves files under a URI prefix using http.FileServer,
// which handles range requests, MIME types and modification times.
type FileServer struct {
	root    string
	prefix  string
	index   string
	charset string
	files   http.Handler
	log     zerolog.Logger
}

func NewFileServer(config Config) *FileServer {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	return &FileServer{
		root:    config.Root,
		prefix:  strings.TrimSuffix(config.URIPrefix, "/"),
		index:   config.IndexFile,
		charset: strings.ToLower(config.Charset),
		files:   http.FileServer(http.Dir(config.Root)),
		log:     logger,
	}
}

// ServeHTTP implements the http.Handler interface.
func (f *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel, ok := strings.CutPrefix(r.URL.Path, f.prefix)
	if !ok || (rel != "" && !strings.HasPrefix(rel, "/")) {
		http.NotFound(w, r)
		return
	}
	if rel == "" {
		rel = "/"
	}
	if containsDotDot(rel) {
		f.log.Warn().
			Str("path", r.URL.Path).
			Str("root", f.root).
			Msg("Request path contains parent segments - possible path traversal attempt?")
		http.NotFound(w, r)
		return
	}

	if f.index != "" && strings.HasSuffix(rel, "/") {
		if info, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(rel), f.index)); err == nil && info.Mode().IsRegular() {
			http.Redirect(w, r, path.Join(r.URL.Path, f.index), http.StatusFound)
			return
		}
	}

	rr := tee.NewResponseRecorder(w, f.addCharset)
	req := r.Clone(r.Context())
	req.URL.Path = rel
	req.URL.RawPath = ""
	f.files.ServeHTTP(rr, req)

	f.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Int("status", rr.StatusCode()).
		Int64("bytes", rr.BytesWritten()).
		Msg("Static passthrough")
}

func (f *FileServer) addCharset(h http.Header, _ int) {
	if f.charset == "" {
		return
	}
	contentType := h.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] != "" {
		return
	}
	if strings.HasPrefix(mediaType, "text/") || mediaType == "application/javascript" || mediaType == "application/json" {
		params["charset"] = f.charset
		h.Set("Content-Type", mime.FormatMediaType(mediaType, params))
	}
}

func containsDotDot(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, segment := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return false
}
