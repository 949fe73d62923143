package memory

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher reports changes to a single file, debounced.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	logger   zerolog.Logger
	onChange func()
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool

	// callbacks tracks onChange runs so Stop can wait for them.
	callbacks sync.WaitGroup
}

// NewFileWatcher watches path and calls onChange once writes to it settle.
// The parent directory is watched so the file may be created later.
func NewFileWatcher(path string, logger zerolog.Logger, onChange func()) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		path:     filepath.Clean(path),
		logger:   logger.With().Str("component", "watcher").Logger(),
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

// Stop stops the file watcher and waits for a running onChange to return.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	if fw.timer != nil && fw.timer.Stop() {
		// The pending callback will never run.
		fw.callbacks.Done()
	}
	fw.mu.Unlock()

	close(fw.stopCh)
	err := fw.watcher.Close()
	fw.callbacks.Wait()
	return err
}

// run processes file system events
func (fw *FileWatcher) run() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != fw.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Store change detected")

				fw.scheduleChange()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

// scheduleChange debounces the change callback
func (fw *FileWatcher) scheduleChange() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.stopped {
		return
	}
	if fw.timer != nil && fw.timer.Stop() {
		fw.callbacks.Done()
	}

	fw.callbacks.Add(1)
	fw.timer = time.AfterFunc(fw.debounce, func() {
		defer fw.callbacks.Done()
		fw.onChange()
	})
}
