package monitor

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher could not be set up.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// sourceWatcher reports writes to a fixed set of files. It watches their
// parent directories so files that are created, truncated or replaced by
// rename are still seen.
type sourceWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]struct{}
}

func newSourceWatcher(paths []string) (*sourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	sw := &sourceWatcher{watcher: w, files: make(map[string]struct{}, len(paths))}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		sw.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, dir, err)
		}
	}
	return sw, nil
}

// run forwards relevant events until the watcher is closed.
func (sw *sourceWatcher) run(onChange func(path string), onError func(error)) {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, ok := sw.files[name]; ok {
				onChange(name)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			onError(err)
		}
	}
}

func (sw *sourceWatcher) close() error {
	return sw.watcher.Close()
}
