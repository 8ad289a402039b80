package watcher

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Loader is notified with the path of every changed file. For a watched
// directory the path is the file inside it.
type Loader interface {
	Load(path string) error
}

type Watcher struct {
	stop chan struct{}
	done chan error
}

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// LoadAndWatch loads path once and then reloads on every change until Close.
// path may be a file or a directory.
func LoadAndWatch(path string, loader Loader, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	err := loader.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	err = watcher.Add(path)
	if err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to add file to watcher")
	}
	stop := make(chan struct{})
	done := make(chan error)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					done <- nil
					return
				}
				if event.Op&reloadOps == 0 {
					continue
				}
				if err := loader.Load(event.Name); err != nil {
					log.Warn("failed to reload", "path", event.Name, "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					continue
				}
				log.Warn("watch failed", "path", path, "err", err)
			case <-stop:
				done <- watcher.Close()
				return
			}
		}
	}()
	return &Watcher{stop: stop, done: done}, nil
}

func (w *Watcher) Close() error {
	close(w.stop)
	return <-w.done
}
