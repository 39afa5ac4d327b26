// Package inbox turns text files dropped into a directory into extraction
// results written next to them.
package inbox

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher reports files with a watched extension once they stop changing
// for the debounce period.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	log        *logger.Logger
}

func NewWatcher(extensions []string, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".txt", ".md"}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:    w,
		extensions: extensions,
		debounce:   debounce,
		log:        logger.OrNop(log).With("component", "inbox_watcher"),
	}, nil
}

// Watch starts monitoring dir. The returned channel closes when ctx ends or
// the watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}
	out := make(chan string, 100)

	go func() {
		defer close(out)
		pending := map[string]struct{}{}
		timer := time.NewTimer(w.debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.watched(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				pending[ev.Name] = struct{}{}
				timer.Reset(w.debounce)
			case <-timer.C:
				for p := range pending {
					select {
					case out <- p:
					case <-ctx.Done():
						return
					}
					delete(pending, p)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", "dir", dir, "error", err)
			}
		}
	}()
	return out, nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watched(path string) bool {
	return hasExtension(path, w.extensions)
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
