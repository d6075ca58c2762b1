// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transcript

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses bursts of fsnotify events (a streaming session
// appends many lines per second) into a single invalidation.
const watchDebounce = 500 * time.Millisecond

// Watcher marks the transcript index dirty when any file under the agent
// roots changes. It watches directories recursively and picks up new
// project directories as they appear.
type Watcher struct {
	fw       *fsnotify.Watcher
	onChange func()
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching the given roots. Roots that do not exist yet
// are skipped; they are picked up on the next Reader construction.
func NewWatcher(roots []string, onChange func(), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}

	for _, root := range roots {
		w.addRecursive(root)
	}

	go w.run()
	return w, nil
}

// Close stops the watcher goroutine and releases the inotify handles.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

func (w *Watcher) addRecursive(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if werr := w.fw.Add(path); werr != nil {
				w.logger.Debug("watch add failed", "path", path, "error", werr)
			}
		}
		return nil
	})
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRecursive(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("transcript watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.onChange()
		}
	}
}
