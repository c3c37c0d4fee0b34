package mdassets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"

	"github.com/always-cache/markdown-assets/cache"
)

var ErrConfiguration = errors.New("invalid configuration")

// Settings configure a markdown assets server.
// They are read once at startup and never change afterwards.
type Settings struct {
	// Cache spec for the stylesheet, e.g. "expireAfterWrite=5s".
	CacheSpec string `yaml:"cacheSpec"`
	// Cache spec for rendered Markdown pages.
	RenderCacheSpec  string `yaml:"renderCacheSpec"`
	EnableMermaid    bool   `yaml:"enableMermaid"`
	EnableHlJs       bool   `yaml:"enableHlJs"`
	GoogleTrackingID string `yaml:"googleTrackingId"`
	CopyrightFooter  string `yaml:"copyrightFooter"`
	Minify           bool   `yaml:"minify"`

	Server  ServerSettings  `yaml:"server"`
	Storage StorageSettings `yaml:"storage"`
	// Purge cached pages as soon as their source changes.
	Watch bool `yaml:"watch"`
}

type ServerSettings struct {
	Port int `yaml:"port"`
	// URI prefix the resource root is served under, e.g. "/docs".
	URIPrefix    string `yaml:"uriPrefix"`
	ResourceRoot string `yaml:"resourceRoot"`
	// Markdown file served for a request to the prefix itself.
	IndexFile string `yaml:"indexFile"`
	// Character set of the Markdown sources.
	Charset string `yaml:"charset"`
}

type StorageSettings struct {
	// One of memory, sqlite or leveldb.
	Provider string `yaml:"provider"`
	// Database file (sqlite) or directory (leveldb).
	Path string `yaml:"path"`
}

const (
	ProviderMemory  = "memory"
	ProviderSQLite  = "sqlite"
	ProviderLevelDB = "leveldb"
)

func DefaultSettings() Settings {
	return Settings{
		CacheSpec:       "expireAfterWrite=5s",
		RenderCacheSpec: "expireAfterWrite=60s",
		EnableMermaid:   true,
		EnableHlJs:      true,
		Server: ServerSettings{
			Port:         8080,
			URIPrefix:    "/docs",
			ResourceRoot: "./docs",
			IndexFile:    "index.md",
			Charset:      "UTF-8",
		},
		Storage: StorageSettings{
			Provider: ProviderMemory,
			Path:     "cache.db",
		},
	}
}

// LoadSettings reads a YAML settings file.
// Keys missing from the file keep their default values.
func LoadSettings(filename string) (Settings, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return ParseSettings(b)
}

// ParseSettings decodes YAML over the defaults and validates the result.
func ParseSettings(b []byte) (Settings, error) {
	settings := DefaultSettings()
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return settings, settings.Validate()
}

// Validate checks that the settings can be used to create a server.
func (s Settings) Validate() error {
	var errs []error
	if _, err := cache.ParseSpec(s.CacheSpec); err != nil {
		errs = append(errs, fmt.Errorf("cacheSpec: %w", err))
	}
	if _, err := cache.ParseSpec(s.RenderCacheSpec); err != nil {
		errs = append(errs, fmt.Errorf("renderCacheSpec: %w", err))
	}
	prefix := s.Server.URIPrefix
	if !strings.HasPrefix(prefix, "/") || (len(prefix) > 1 && strings.HasSuffix(prefix, "/")) {
		errs = append(errs, fmt.Errorf("server.uriPrefix %q must start and must not end with /", prefix))
	}
	if !strings.HasSuffix(s.Server.IndexFile, ".md") || strings.Contains(s.Server.IndexFile, "/") {
		errs = append(errs, fmt.Errorf("server.indexFile %q must be a Markdown file name", s.Server.IndexFile))
	}
	if s.Server.ResourceRoot == "" {
		errs = append(errs, errors.New("server.resourceRoot is empty"))
	}
	if _, err := htmlindex.Get(s.Server.Charset); err != nil {
		errs = append(errs, fmt.Errorf("server.charset %q is unknown", s.Server.Charset))
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", s.Server.Port))
	}
	switch s.Storage.Provider {
	case ProviderMemory:
	case ProviderSQLite, ProviderLevelDB:
		if s.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is needed for provider %s", s.Storage.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q is not one of memory, sqlite, leveldb", s.Storage.Provider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// pathPrefix returns the URI prefix as matched against request paths.
// A root prefix matches everything.
func (s ServerSettings) pathPrefix() string {
	return strings.TrimSuffix(s.URIPrefix, "/")
}
