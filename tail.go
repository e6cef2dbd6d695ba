package eventfold

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitOutcome tags the result of WaitForEvents.
type WaitOutcome int

const (
	// WaitTimeout means no new data appeared before the deadline.
	WaitTimeout WaitOutcome = iota
	// WaitNewData means the active log grew past the watched offset.
	WaitNewData
)

// WaitResult is the outcome of WaitForEvents: which of WaitTimeout or
// WaitNewData occurred, and — for WaitNewData — the active log size
// observed at wake time.
type WaitResult struct {
	Outcome WaitOutcome
	Size    uint64
}

// WaitForEvents blocks until the active log grows past offset, or
// timeout elapses. It checks immediately before subscribing to
// filesystem events, to avoid missing data that arrived between the
// caller's last read and this call (and to avoid blocking at all when
// data is already waiting). It watches the log's parent directory
// rather than the log file itself, non-recursively, so that a write
// is seen regardless of whether the file was replaced or rewritten in
// place; events for entries other than the active log are ignored.
// fsnotify write events on the log file are treated as wake triggers
// but re-verified against the actual size — a write event with no
// observable growth (a spurious wakeup, or a write that raced with a
// concurrent rotation) goes back to waiting rather than returning
// early.
func (r *EventReader) WaitForEvents(offset uint64, timeout time.Duration) (WaitResult, error) {
	if has, size, err := r.checkGrown(offset); err != nil {
		return WaitResult{}, err
	} else if has {
		return WaitResult{Outcome: WaitNewData, Size: size}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WaitResult{}, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.logPath)); err != nil {
		return WaitResult{}, fmt.Errorf("watch active log directory: %w", err)
	}

	// TOCTOU: data may have arrived between the first check and the
	// watch being installed.
	if has, size, err := r.checkGrown(offset); err != nil {
		return WaitResult{}, err
	} else if has {
		return WaitResult{Outcome: WaitNewData, Size: size}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return WaitResult{Outcome: WaitTimeout}, nil
		}

		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return WaitResult{Outcome: WaitTimeout}, nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.logPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			has, size, err := r.checkGrown(offset)
			if err != nil {
				return WaitResult{}, err
			}
			if has {
				return WaitResult{Outcome: WaitNewData, Size: size}, nil
			}
			// Spurious: event fired but size didn't grow past offset
			// (e.g. a rotation's truncate-then-append). Keep waiting.
		case err, ok := <-watcher.Errors:
			if !ok {
				return WaitResult{Outcome: WaitTimeout}, nil
			}
			return WaitResult{}, fmt.Errorf("watch active log: %w", err)
		case <-time.After(remaining):
			return WaitResult{Outcome: WaitTimeout}, nil
		}
	}
}

func (r *EventReader) checkGrown(offset uint64) (bool, uint64, error) {
	size, err := r.ActiveLogSize()
	if err != nil {
		return false, 0, fmt.Errorf("stat active log: %w", err)
	}
	return size > offset, size, nil
}
