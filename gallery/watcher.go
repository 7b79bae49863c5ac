package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher follows out-of-band changes to a local storage root. Files
// dropped into the directory are announced as created; removed or renamed
// files lose their catalog record and are announced as deleted.
type Watcher struct {
	dir     string
	service *Service
	fsw     *fsnotify.Watcher
}

// NewWatcher starts watching dir, creating it when missing. Events are
// delivered once Run is called.
func NewWatcher(dir string, service *Service) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{dir: filepath.Clean(dir), service: service, fsw: fsw}, nil
}

// Run handles events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.service.logger.Warn("upload watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Dir(event.Name) != w.dir {
		return
	}
	name := filepath.Base(event.Name)
	if !w.service.policy.AllowsName(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.service.logger.Debug("image appeared", "file", name)
		w.service.publish(EventCreated, name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.service.logger.Debug("image removed", "file", name)
		w.service.forget(name)
		w.service.publish(EventDeleted, name)
	}
}
