package hotwords

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/voicetyped/streamasr/internal/speech/symbols"
)

// Target receives each loaded hotword set.
type Target interface {
	SetHotwords(phrases [][]int, score float32)
}

// Watcher reloads a hotword file into a Target whenever it changes.
type Watcher struct {
	path   string
	table  *symbols.Table
	target Target

	// Notify, if set, is called after every successful load.
	Notify func(ctx context.Context, list *List)
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, table *symbols.Table, target Target) *Watcher {
	return &Watcher{path: filepath.Clean(path), table: table, target: target}
}

// Load reads the file once and applies it.
func (w *Watcher) Load(ctx context.Context) error {
	list, err := LoadFile(ctx, w.path, w.table)
	if err != nil {
		return err
	}
	w.target.SetHotwords(list.Phrases, list.Score)
	if w.Notify != nil {
		w.Notify(ctx, list)
	}
	slog.InfoContext(ctx, "hotwords loaded",
		slog.String("path", w.path),
		slog.Int("phrases", len(list.Phrases)))
	return nil
}

// Run watches the file's directory and reloads on every write, create or
// rename of the file. Editors that replace the file atomically are covered
// by watching the directory. Run blocks until ctx is done. A failed reload
// keeps the previous set.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := w.Load(ctx); err != nil {
				slog.WarnContext(ctx, "hotwords reload failed",
					slog.String("path", w.path),
					slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
