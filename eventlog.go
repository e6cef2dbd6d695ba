package eventfold

import (
	"fmt"
	"sync"
	"time"
)

// viewSpec is a deferred view registration captured by the builder
// before the log directory is known.
type viewSpec func(viewsDir string) (string, ViewOps)

// EventLogBuilder configures and opens an EventLog.
type EventLogBuilder struct {
	dir        string
	lockMode   LockMode
	maxLogSize uint64
	views      []viewSpec
}

// NewBuilder starts a builder for an event log rooted at dir.
func NewBuilder(dir string) *EventLogBuilder {
	return &EventLogBuilder{dir: dir, lockMode: LockFlock}
}

// MaxLogSize sets the auto-rotation threshold in bytes. Zero (the
// default) disables auto-rotation.
func (b *EventLogBuilder) MaxLogSize(bytes uint64) *EventLogBuilder {
	b.maxLogSize = bytes
	return b
}

// LockMode sets the writer's lock acquisition mode.
func (b *EventLogBuilder) LockMode(mode LockMode) *EventLogBuilder {
	b.lockMode = mode
	return b
}

// AddView registers a named view with its reducer. The view's
// snapshot is refreshed lazily on first use and by RefreshAll.
func AddView[S any](b *EventLogBuilder, name string, reducer ReduceFn[S]) *EventLogBuilder {
	b.views = append(b.views, func(viewsDir string) (string, ViewOps) {
		return name, newView(name, reducer, viewsDir)
	})
	return b
}

// Open opens the writer, registers configured views, and returns a
// ready-to-use EventLog.
func (b *EventLogBuilder) Open() (*EventLog, error) {
	writer, err := OpenWriterWithLock(b.dir, b.lockMode)
	if err != nil {
		return nil, err
	}
	writer.SetMaxLogSize(b.maxLogSize)

	views := make(map[string]ViewOps, len(b.views))
	for _, spec := range b.views {
		name, ops := spec(writer.ViewsDir())
		if _, exists := views[name]; exists {
			writer.Close()
			return nil, fmt.Errorf("eventfold: duplicate view name %q", name)
		}
		views[name] = ops
	}

	log := &EventLog{
		writer: writer,
		reader: writer.Reader(),
		views:  views,
	}

	if b.maxLogSize > 0 {
		size, err := writer.ActiveLogSize()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("stat active log: %w", err)
		}
		if size >= b.maxLogSize {
			if err := log.Rotate(); err != nil {
				writer.Close()
				return nil, fmt.Errorf("rotate oversized active log on open: %w", err)
			}
		}
	}

	return log, nil
}

// EventLog is the top-level handle combining a writer, a reader, and
// the registered view set. It is safe for one writer goroutine and any
// number of concurrent readers; the writer itself is not safe for
// concurrent use from multiple goroutines without external
// synchronization, mirroring the single-writer-process model.
type EventLog struct {
	mu     sync.Mutex
	writer *EventWriter
	reader *EventReader
	views  map[string]ViewOps
}

// Append writes event to the log and, if the configured max log size
// has been reached, rotates (which refreshes every view first).
// Otherwise views are not refreshed as part of Append — call
// RefreshAll or read through ViewState, which refreshes lazily.
func (l *EventLog) Append(event *Event) (AppendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, needsRotate, err := l.writer.appendRaw(event)
	if err != nil {
		return result, err
	}
	if needsRotate {
		if err := l.writer.Rotate(l.reader, l.views); err != nil {
			return result, fmt.Errorf("auto-rotate: %w", err)
		}
	}
	return result, nil
}

// AppendIf conditionally appends event; see EventWriter.AppendIf.
func (l *EventLog) AppendIf(event *Event, expectedOffset uint64, expectedHash string) (AppendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.AppendIf(event, expectedOffset, expectedHash)
}

// RefreshAll refreshes every registered view against the current log.
func (l *EventLog) RefreshAll() error {
	for _, v := range l.views {
		if err := v.refreshBoxed(l.reader); err != nil {
			return err
		}
	}
	return nil
}

// Rotate compresses the active log into the archive and resets every
// view's snapshot offset. See EventWriter.Rotate.
func (l *EventLog) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Rotate(l.reader, l.views)
}

// Reader returns a cloneable reader over the log.
func (l *EventLog) Reader() *EventReader { return l.reader }

// Dir returns the log directory.
func (l *EventLog) Dir() string { return l.writer.Dir() }

// LogPath returns the path to the active log file.
func (l *EventLog) LogPath() string { return l.writer.LogPath() }

// ArchivePath returns the path to the archive file.
func (l *EventLog) ArchivePath() string { return l.writer.ArchivePath() }

// HasNewEvents reports whether the active log has grown past offset.
func (l *EventLog) HasNewEvents(offset uint64) (bool, error) {
	return l.reader.HasNewEvents(offset)
}

// WaitForEvents blocks until the active log grows past offset or
// timeout elapses.
func (l *EventLog) WaitForEvents(offset uint64, timeout time.Duration) (WaitResult, error) {
	return l.reader.WaitForEvents(offset, timeout)
}

// Close releases the writer's lock and file handle.
func (l *EventLog) Close() error {
	return l.writer.Close()
}

// ViewState returns the current state of the named view, refreshing it
// against the log first. S must match the type the view was
// registered with; a mismatch returns a *ViewTypeMismatchError. An
// unregistered name returns an *UnknownViewError.
func ViewState[S any](l *EventLog, name string) (S, error) {
	var zero S

	l.mu.Lock()
	ops, ok := l.views[name]
	l.mu.Unlock()
	if !ok {
		return zero, &UnknownViewError{Name: name}
	}

	view, ok := ops.(*View[S])
	if !ok {
		return zero, &ViewTypeMismatchError{Name: name, Expected: fmt.Sprintf("%T", zero), Actual: actualViewType(ops)}
	}

	return view.Refresh(l.reader)
}

// RebuildView deletes the named view's snapshot and replays the full
// history to reconstruct it.
func RebuildView[S any](l *EventLog, name string) (S, error) {
	var zero S

	l.mu.Lock()
	ops, ok := l.views[name]
	l.mu.Unlock()
	if !ok {
		return zero, &UnknownViewError{Name: name}
	}

	view, ok := ops.(*View[S])
	if !ok {
		return zero, &ViewTypeMismatchError{Name: name, Expected: fmt.Sprintf("%T", zero), Actual: actualViewType(ops)}
	}

	return view.Rebuild(l.reader)
}

func actualViewType(ops ViewOps) string {
	return fmt.Sprintf("%T", ops)
}
