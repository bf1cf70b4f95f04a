// Package watcher turns drop folders into an ingest source: files created or
// rewritten under a watched root are handed to a callback once they settle.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/pkg/utils"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches drop folders and calls onFile for every settled file that
// matches one of its glob patterns.
type Watcher struct {
	roots     []string
	patterns  []string
	recursive bool
	onFile    func(path string)
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	pending   map[string]*time.Timer
	treeDirs map[string][]string // root -> directories added for it
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before onFile runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPatterns restricts onFile to paths matching any of the doublestar globs,
// evaluated case-insensitively against the slash-separated path relative to its root.
// No patterns means every file.
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) {
		for _, p := range patterns {
			w.patterns = append(w.patterns, strings.ToLower(p))
		}
	}
}

// WithRecursive controls whether subdirectories are watched. Default true.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// New creates a watcher over roots. Missing roots are created on Start.
func New(roots []string, onFile func(path string), opts ...Option) (*Watcher, error) {
	w := &Watcher{
		onFile:    onFile,
		recursive: true,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		treeDirs: make(map[string][]string),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		w.roots = append(w.roots, filepath.Clean(abs))
	}
	for _, o := range opts {
		o(w)
	}
	for _, p := range w.patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}
	w.logger = utils.OrNop(w.logger)
	return w, nil
}

// ExtensionPattern builds one glob matching any of exts (".jpg" or "jpg") at any depth.
func ExtensionPattern(exts []string) string {
	clean := make([]string, 0, len(exts))
	for _, e := range exts {
		if e = strings.TrimPrefix(strings.ToLower(e), "."); e != "" {
			clean = append(clean, e)
		}
	}
	if len(clean) == 1 {
		return "**/*." + clean[0]
	}
	return "**/*.{" + strings.Join(clean, ",") + "}"
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	for _, root := range w.roots {
		if err := w.watchTreeLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	events, errs := fsw.Events, fsw.Errors
	w.mu.Unlock()

	w.logger.Info("Watching drop folders",
		zap.Strings("roots", w.roots),
		zap.Strings("patterns", w.patterns),
		zap.Bool("recursive", w.recursive))
	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	root, ok := w.rootOf(path)
	if !ok {
		return
	}
	w.logger.Debug("Watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				w.watchNewDir(path)
			}
			return
		}
		if w.matches(root, path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
	}
}

// watchNewDir watches a directory moved or created under a root and
// picks up the files already inside it.
func (w *Watcher) watchNewDir(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil || !w.recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("Failed to watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.ingestExisting(dir)
}

func (w *Watcher) rootOf(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if root == path || within(root, path) {
			return root, true
		}
	}
	return "", false
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matches(root, path string) bool {
	return matchPath(root, path, w.patterns)
}

// matchPath skips dot files (editor swap files, partial downloads) and applies patterns.
func matchPath(root, path string, patterns []string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if len(patterns) == 0 {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// schedule (re)starts the quiet timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.logger.Debug("File settled", zap.String("path", path))
		if w.onFile != nil {
			w.onFile(path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory adds a root while running, optionally handing its existing files to onFile.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return fmt.Errorf("watcher not started")
	}
	for _, r := range w.roots {
		if r == abs {
			return nil
		}
	}
	if err := w.watchTreeLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Info("Drop folder added", zap.String("path", abs))
	if syncExisting {
		go w.ingestExisting(abs)
	}
	return nil
}

func (w *Watcher) watchTreeLocked(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	dirs := []string{root}
	if w.recursive {
		dirs = dirs[:0]
		walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				dirs = append(dirs, p)
			}
			return err
		})
		if walkErr != nil {
			return walkErr
		}
	}
	for i, dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			for _, added := range dirs[:i] {
				_ = w.fsw.Remove(added)
			}
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.treeDirs[root] = dirs
	return nil
}

func (w *Watcher) ingestExisting(dir string) {
	root, ok := w.rootOf(filepath.Clean(dir))
	if !ok {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(root, path) && w.onFile != nil {
			w.onFile(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Assets already ingested from it stay.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, r := range w.roots {
		if r == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.fsw != nil {
		for _, p := range w.treeDirs[abs] {
			_ = w.fsw.Remove(p)
		}
	}
	delete(w.treeDirs, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Info("Drop folder removed", zap.String("path", abs))
	return nil
}

// Directories returns the current roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles hands every matching file already present under the roots to
// onFile. Call it after Start to pick up files dropped while the service was down.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.ingestExisting(root)
	}
}

// Stop stops the watcher and cancels pending callbacks.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
