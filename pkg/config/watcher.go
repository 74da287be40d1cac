package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/korvid-labs/wsbridge/pkg/logger"
)

// Watcher reloads the config file when it changes on disk and hands the
// result to a callback. The bridge uses it to pick up destination alias
// edits without a restart.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	onChange func(*Config)
	done     chan struct{}
}

func NewWatcher(path string, onChange func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself, since editors replace files on save.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.fw = fw

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(w.path)
			if err != nil {
				logger.WarnCF("config", "Reload failed, keeping previous config",
					map[string]any{"error": err.Error()})
				continue
			}
			logger.InfoCF("config", "Config reloaded",
				map[string]any{"destinations": len(cfg.Destinations)})
			w.onChange(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.WarnCF("config", "Watcher error", map[string]any{"error": err.Error()})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.fw != nil {
		w.fw.Close()
	}
}
