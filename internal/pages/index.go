// Package pages keeps the set of page paths the build layer knows how to
// render. The set is read from a YAML manifest written by the build and is
// reloaded whenever that manifest changes.
package pages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/watcher"
)

// Page is one renderable page.
type Page struct {
	Path      string `yaml:"path"`
	Component string `yaml:"component,omitempty"`
}

// Manifest is the on-disk page list.
type Manifest struct {
	Pages []Page `yaml:"pages"`
}

// Index is a concurrency-safe set of known page paths. Lookups tolerate the
// set changing between requests.
type Index struct {
	pages    map[string]Page
	mutex    sync.RWMutex
	manifest string
	loadedAt time.Time
	logger   logging.Logger
}

// NewIndex creates an empty index backed by the manifest at manifestPath.
func NewIndex(manifestPath string, logger logging.Logger) *Index {
	return &Index{
		pages:    make(map[string]Page),
		manifest: manifestPath,
		logger:   logger.WithComponent("pages"),
	}
}

// Normalize canonicalises a request path for lookups: a leading slash and no
// trailing slash (except for the root).
func Normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Has reports whether path is a known page.
func (i *Index) Has(path string) bool {
	_, ok := i.Lookup(path)
	return ok
}

// Lookup returns the page registered for path.
func (i *Index) Lookup(path string) (Page, bool) {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	page, ok := i.pages[Normalize(path)]
	return page, ok
}

// Add registers or replaces a page.
func (i *Index) Add(page Page) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	page.Path = Normalize(page.Path)
	i.pages[page.Path] = page
}

// Remove drops a page.
func (i *Index) Remove(path string) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	delete(i.pages, Normalize(path))
}

// Replace swaps the whole set atomically.
func (i *Index) Replace(pages []Page) {
	next := make(map[string]Page, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Path) == "" {
			continue
		}
		page.Path = Normalize(page.Path)
		next[page.Path] = page
	}

	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.pages = next
	i.loadedAt = time.Now()
}

// Len returns the number of known pages.
func (i *Index) Len() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return len(i.pages)
}

// Paths returns the known page paths, sorted.
func (i *Index) Paths() []string {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	paths := make([]string, 0, len(i.pages))
	for path := range i.pages {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// LoadedAt is the time of the last successful manifest load.
func (i *Index) LoadedAt() time.Time {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.loadedAt
}

// Load replaces the set with the manifest's contents. A missing manifest
// yields an empty set; the build may not have written it yet.
func (i *Index) Load() error {
	data, err := os.ReadFile(i.manifest)
	if os.IsNotExist(err) {
		i.Replace(nil)
		return nil
	}
	if err != nil {
		return errors.NewIOError(errors.ErrCodeManifestRead, "reading page manifest", err).
			WithContext("path", i.manifest)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return errors.NewIOError(errors.ErrCodeManifestRead, "parsing page manifest", err).
			WithContext("path", i.manifest)
	}

	i.Replace(manifest.Pages)
	return nil
}

// Reload loads the manifest and logs the outcome.
func (i *Index) Reload(ctx context.Context) error {
	if err := i.Load(); err != nil {
		i.logger.Warn(ctx, err, "page manifest reload failed", "manifest", i.manifest)
		return err
	}
	i.logger.Info(ctx, "page manifest loaded", "pages", i.Len())
	return nil
}

// Watch reloads the index whenever the manifest file changes, until ctx is
// cancelled. The manifest's directory must exist.
func (i *Index) Watch(ctx context.Context, delay time.Duration) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(delay, i.logger)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(i.manifest)
	if err := fw.AddPath(dir); err != nil {
		_ = fw.Stop()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	fw.AddFilter(watcher.PathFilter(i.manifest))
	fw.AddHandler(func([]watcher.ChangeEvent) error {
		return i.Reload(ctx)
	})
	fw.Start(ctx)

	return fw, nil
}
