// Package media keeps the catalogue of finished recordings in the output
// directory.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const VideoExt = ".mp4"

type Recording struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Index mirrors the video files of one directory. The recorder feeds it
// through Scan; Watch also picks up files added or removed by anything else.
type Index struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	items    map[string]Recording
	handlers []func([]Recording)
}

func NewIndex(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dir:      dir,
		debounce: 500 * time.Millisecond,
		logger:   logger.With("module", "media"),
		items:    make(map[string]Recording),
	}
}

func (i *Index) Dir() string { return i.dir }

// OnChange registers fn to receive the full listing after every change.
func (i *Index) OnChange(fn func([]Recording)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, fn)
}

// Scan adds or refreshes one file. A path that no longer exists is removed.
func (i *Index) Scan(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isVideo(path) {
		return fmt.Errorf("not a video file: %s", path)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		i.remove(path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	i.mu.Lock()
	i.items[path] = Recording{Path: path, Name: filepath.Base(path), Size: info.Size(), ModTime: info.ModTime()}
	i.mu.Unlock()

	i.logger.Debug("Indexed recording", "path", path, "size", info.Size())
	i.notify()
	return nil
}

// Refresh rebuilds the index from the directory contents.
func (i *Index) Refresh(ctx context.Context) error {
	entries, err := os.ReadDir(i.dir)
	if errors.Is(err, fs.ErrNotExist) {
		entries = nil
	} else if err != nil {
		return fmt.Errorf("error reading output directory: %w", err)
	}

	items := make(map[string]Recording, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !isVideo(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(i.dir, e.Name())
		items[path] = Recording{Path: path, Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()}
	}

	i.mu.Lock()
	i.items = items
	i.mu.Unlock()
	i.notify()
	return nil
}

// List returns the recordings, newest first.
func (i *Index) List() []Recording {
	i.mu.RLock()
	list := make([]Recording, 0, len(i.items))
	for _, r := range i.items {
		list = append(list, r)
	}
	i.mu.RUnlock()

	sort.Slice(list, func(a, b int) bool {
		if list[a].ModTime.Equal(list[b].ModTime) {
			return list[a].Name > list[b].Name
		}
		return list[a].ModTime.After(list[b].ModTime)
	})
	return list
}

// Watch follows the directory until ctx is done. Events for a path are
// debounced so a file still being written is scanned once it settles.
func (i *Index) Watch(ctx context.Context) error {
	if err := os.MkdirAll(i.dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("error watching %s: %w", i.dir, err)
	}
	if err := i.Refresh(ctx); err != nil {
		return err
	}
	i.logger.Info("Media watcher started", "dir", i.dir)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isVideo(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(i.debounce)
			timerC = timer.C

		case <-timerC:
			for path := range pending {
				if err := i.Scan(ctx, path); err != nil {
					i.logger.Warn("Failed to index recording", "path", path, "error", err)
				}
			}
			clear(pending)
			timerC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn("Media watcher error", "error", err)
		}
	}
}

func (i *Index) remove(path string) {
	i.mu.Lock()
	_, ok := i.items[path]
	delete(i.items, path)
	i.mu.Unlock()
	if ok {
		i.logger.Debug("Removed recording", "path", path)
		i.notify()
	}
}

func (i *Index) notify() {
	i.mu.RLock()
	handlers := append([](func([]Recording))(nil), i.handlers...)
	i.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}
	list := i.List()
	for _, h := range handlers {
		h(list)
	}
}

func isVideo(path string) bool {
	return strings.EqualFold(filepath.Ext(path), VideoExt)
}
