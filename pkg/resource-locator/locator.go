package locator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrTraversal = errors.New("resource outside of resource root")
)

// TraversalError is returned when a request path resolves outside of the resource root.
type TraversalError struct {
	Resolved string
	Root     string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("resolved path %s is outside of resource root %s", e.Resolved, e.Root)
}

func (e *TraversalError) Unwrap() error {
	return ErrTraversal
}

const bundleScheme = "bundle:"

// Locator identifies a resource source: the canonical absolute path of a file
// under the resource root, or a bundled default asset.
// It is used as cache key, so equal files always have equal locators.
type Locator string

// Bundled returns the locator of the named bundled asset.
func Bundled(name string) Locator {
	return Locator(bundleScheme + name)
}

// IsBundled reports whether l names a bundled asset.
func (l Locator) IsBundled() bool {
	return strings.HasPrefix(string(l), bundleScheme)
}

// Name returns the bundled asset name, or the file path.
func (l Locator) Name() string {
	return strings.TrimPrefix(string(l), bundleScheme)
}

func (l Locator) String() string {
	return string(l)
}

// Resolver maps request paths to locators under a fixed root directory.
type Resolver struct {
	root string
}

// NewResolver canonicalizes root, which must be an existing directory.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resource root %s: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("resource root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("resource root %s is not a directory", root)
	}
	return &Resolver{root: canonical}, nil
}

// Root returns the canonical resource root.
func (r *Resolver) Root() string {
	return r.root
}

func (r *Resolver) join(requestPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(requestPath))
}

func (r *Resolver) contains(path string) bool {
	if path == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Resolve returns the locator for a slash separated path relative to the root.
// Paths resolving outside the root, also through symlinks, fail with a *TraversalError.
// Paths without a regular file behind them fail with ErrNotFound.
func (r *Resolver) Resolve(requestPath string) (Locator, error) {
	candidate := r.join(requestPath)
	if !r.contains(candidate) {
		return "", &TraversalError{Resolved: candidate, Root: r.root}
	}
	canonical, ok := regularFile(candidate)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, requestPath)
	}
	if !r.contains(canonical) {
		return "", &TraversalError{Resolved: canonical, Root: r.root}
	}
	return Locator(canonical), nil
}

// Lookup returns the locator for requestPath if a regular file exists there.
// The result is not checked against the root.
func (r *Resolver) Lookup(requestPath string) (Locator, bool) {
	canonical, ok := regularFile(r.join(requestPath))
	if !ok {
		return "", false
	}
	return Locator(canonical), true
}

// Relative returns the slash separated path of l relative to the root.
// Bundled locators return their name.
func (r *Resolver) Relative(l Locator) string {
	if l.IsBundled() {
		return l.Name()
	}
	rel, err := filepath.Rel(r.root, string(l))
	if err != nil {
		return filepath.Base(string(l))
	}
	return filepath.ToSlash(rel)
}

func regularFile(path string) (string, bool) {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return canonical, true
}
