package host

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/pslog"
)

// DefaultWatchDebounce coalesces editor save bursts.
const DefaultWatchDebounce = 100 * time.Millisecond

// watcher watches the document's directory, since many editors replace files
// by rename, and calls onChange after a quiet period.
type watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	log      pslog.Logger

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

func newWatcher(path string, debounce time.Duration, onChange func(), logger pslog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w := &watcher{
		fs:       fsw,
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		log:      logger,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Trace("host watch event", "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("host watch error", "err", err)
		}
	}
}

func (w *watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}
