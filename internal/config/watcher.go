package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounceWindow coalesces the editor's write-then-rename bursts into one
// reload.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the configuration when the file changes and hands the
// validated result to the callback. Invalid edits are logged and skipped;
// the running config stays as it was.
type Watcher struct {
	path     string
	onChange func(*Config)
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := NewLoader(w.path).Load()
	if err != nil {
		log.Warn().Err(err).Msg("Config reload failed, keeping current config")
		return
	}
	if err := Validate(cfg); err != nil {
		log.Warn().Err(err).Msg("Config reload rejected, keeping current config")
		return
	}

	log.Info().Str("path", w.path).Msg("Config reloaded")
	w.onChange(cfg)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}
