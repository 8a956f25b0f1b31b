package loop

import (
	"github.com/fsnotify/fsnotify"
)

// signalWatcher wakes the Agent Loop's pause-wait promptly when a signal
// file changes in the project directory, instead of waiting out the full
// tick interval. It degrades to a no-op (callers fall back to pure
// time.Ticker polling) if the underlying watch can't be established, e.g.
// on an overlay filesystem that doesn't support inotify (spec SPEC_FULL.md
// DOMAIN STACK fsnotify entry).
type signalWatcher struct {
	w *fsnotify.Watcher
}

// newSignalWatcher watches dir non-recursively for signal-file
// creation/writes. ok is false if the watch couldn't be established; the
// caller should fall back to ticker-only polling in that case.
func newSignalWatcher(dir string) (*signalWatcher, bool) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, false
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, false
	}
	return &signalWatcher{w: w}, true
}

// Events exposes the raw fsnotify event channel; any event is treated as
// "something may have changed, re-check signals now."
func (s *signalWatcher) Events() <-chan fsnotify.Event {
	if s == nil {
		return nil
	}
	return s.w.Events
}

func (s *signalWatcher) Close() {
	if s != nil {
		s.w.Close()
	}
}
