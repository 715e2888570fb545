package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached tables when their rule file in a directory is
// written, so edits show up before the TTL runs out.
type Watcher struct {
	watcher *fsnotify.Watcher
	cache   *RuleCache
	dir     string
	ext     string
	logger  *slog.Logger
}

// NewWatcher watches dir for files named <table><ext>.
func NewWatcher(c *RuleCache, dir, ext string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher: fw,
		cache:   c,
		dir:     dir,
		ext:     ext,
		logger:  logger,
	}, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Rule file watcher started", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	tableID, ok := w.tableFor(event.Name)
	if !ok {
		return
	}

	if w.cache.Invalidate(tableID) {
		w.logger.Info("Rule file changed, table marked stale",
			slog.String("file", event.Name),
			slog.String("table", tableID))
	}
}

// tableFor maps a file path to its table id. Unmatched log files that live
// next to the rule files are ignored.
func (w *Watcher) tableFor(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, w.ext) {
		return "", false
	}
	tableID := strings.TrimSuffix(base, w.ext)
	if tableID == "" || strings.Contains(tableID, ".") {
		return "", false
	}
	return tableID, true
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
