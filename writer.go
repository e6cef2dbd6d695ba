package eventfold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
)

const (
	activeLogName = "app.jsonl"
	archiveName   = "archive.jsonl.zst"
	viewsDirName  = "views"
)

// LockMode controls file locking behavior for an EventWriter.
type LockMode int

const (
	// LockFlock acquires an exclusive advisory lock on app.jsonl. This
	// is the default.
	LockFlock LockMode = iota
	// LockNone acquires no lock. Use when only one process is known to
	// access the log, or in tests that deliberately use multiple
	// writers.
	LockNone
)

// LineHash computes the xxh64 hash of raw line bytes (without the
// trailing newline), hex-encoded as 16 lowercase digits.
func LineHash(line []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(line))
}

// AppendResult is returned by a successful append.
type AppendResult struct {
	// StartOffset is the byte offset where the event line starts.
	StartOffset uint64
	// EndOffset is the byte offset after the trailing newline — the
	// position where the next event would begin.
	EndOffset uint64
	// LineHash is the xxh64 hash of the serialized event line,
	// hex-encoded, excluding the trailing newline.
	LineHash string
}

// EventWriter exclusively owns the active log file for a log
// directory. It performs atomic appends, computes per-line hashes,
// holds the advisory lock, and drives rotation. For reading, use an
// EventReader obtained via Reader.
type EventWriter struct {
	file        *os.File
	lock        *flock.Flock
	dir         string
	logPath     string
	archivePath string
	viewsDir    string
	maxLogSize  uint64
}

// OpenWriter opens or creates an event log directory for writing with
// the default lock mode (LockFlock).
func OpenWriter(dir string) (*EventWriter, error) {
	return OpenWriterWithLock(dir, LockFlock)
}

// OpenWriterWithLock opens or creates an event log directory for
// writing with an explicit lock mode.
//
// Creates dir, dir/views, and dir/app.jsonl if they don't exist, then
// opens app.jsonl in append mode. With LockFlock, acquires an
// exclusive non-blocking advisory lock; if another writer already
// holds it, returns a *LockHeldError immediately.
func OpenWriterWithLock(dir string, mode LockMode) (*EventWriter, error) {
	viewsDir := filepath.Join(dir, viewsDirName)
	logPath := filepath.Join(dir, activeLogName)
	archivePath := filepath.Join(dir, archiveName)

	if err := os.MkdirAll(viewsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create views dir: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open active log: %w", err)
	}

	var lock *flock.Flock
	if mode == LockFlock {
		lock = flock.New(logPath)
		locked, err := lock.TryLock()
		if err != nil {
			file.Close()
			return nil, &LockHeldError{Path: logPath, Err: err}
		}
		if !locked {
			file.Close()
			return nil, &LockHeldError{Path: logPath, Err: fmt.Errorf("lock held by another process")}
		}
	}

	return &EventWriter{
		file:        file,
		lock:        lock,
		dir:         dir,
		logPath:     logPath,
		archivePath: archivePath,
		viewsDir:    viewsDir,
	}, nil
}

// Append appends an event to the log, returning the start offset, end
// offset, and line hash. Does not trigger auto-rotation — use EventLog
// for auto-rotation support.
func (w *EventWriter) Append(event *Event) (AppendResult, error) {
	result, _, err := w.appendRaw(event)
	return result, err
}

// appendRaw appends event and reports whether auto-rotation should run
// (active log size has reached maxLogSize).
func (w *EventWriter) appendRaw(event *Event) (AppendResult, bool, error) {
	startOffset, err := w.ActiveLogSize()
	if err != nil {
		return AppendResult{}, false, fmt.Errorf("stat active log: %w", err)
	}

	line, err := event.encode()
	if err != nil {
		return AppendResult{}, false, err
	}
	hash := LineHash(line)

	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		return AppendResult{}, false, fmt.Errorf("write event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return AppendResult{}, false, fmt.Errorf("fsync active log: %w", err)
	}

	endOffset := startOffset + uint64(len(line))
	needsRotate := w.maxLogSize > 0 && endOffset >= w.maxLogSize

	return AppendResult{
		StartOffset: startOffset,
		EndOffset:   endOffset,
		LineHash:    hash,
	}, needsRotate, nil
}

// AppendIf appends event only if the log's current state matches
// expectations: the active log's size must equal expectedOffset, and
// — if expectedOffset is non-zero — the hash of the line ending at
// expectedOffset must equal expectedHash. On mismatch, returns an
// *AppendConflict without writing. For an empty log, pass
// (expectedOffset: 0, expectedHash: "").
func (w *EventWriter) AppendIf(event *Event, expectedOffset uint64, expectedHash string) (AppendResult, error) {
	currentSize, err := w.ActiveLogSize()
	if err != nil {
		return AppendResult{}, fmt.Errorf("stat active log: %w", err)
	}

	if currentSize != expectedOffset {
		return AppendResult{}, &AppendConflict{
			ExpectedOffset: expectedOffset,
			ActualOffset:   currentSize,
			ExpectedHash:   expectedHash,
		}
	}

	if expectedOffset > 0 {
		reader := w.Reader()
		actualHash, err := reader.ReadLineHashBefore(expectedOffset)
		if err != nil {
			return AppendResult{}, fmt.Errorf("read line hash before %d: %w", expectedOffset, err)
		}
		actual := ""
		if actualHash != nil {
			actual = *actualHash
		}
		if actual != expectedHash {
			return AppendResult{}, &AppendConflict{
				ExpectedOffset: expectedOffset,
				ActualOffset:   currentSize,
				ExpectedHash:   expectedHash,
				ActualHash:     actual,
				HasActualHash:  true,
			}
		}
	}

	return w.Append(event)
}

// Rotate refreshes every view against reader (so every snapshot's
// offset equals the current active log size), compresses the active
// log as a frame appended to the archive, truncates the active log,
// and resets every view's offset and hash. No-op if the active log is
// empty. The lock survives truncation — it is tied to the file
// descriptor, not its contents.
func (w *EventWriter) Rotate(reader *EventReader, views map[string]ViewOps) error {
	for _, v := range views {
		if err := v.refreshBoxed(reader); err != nil {
			return fmt.Errorf("refresh view %q before rotate: %w", v.Name(), err)
		}
	}

	contents, err := os.ReadFile(w.logPath)
	if err != nil {
		return fmt.Errorf("read active log: %w", err)
	}
	if len(contents) == 0 {
		return nil
	}

	if err := appendCompressedFrame(w.archivePath, contents); err != nil {
		return fmt.Errorf("append archive frame: %w", err)
	}

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate active log: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync truncated active log: %w", err)
	}

	for _, v := range views {
		if err := v.resetOffset(); err != nil {
			return fmt.Errorf("reset view %q offset: %w", v.Name(), err)
		}
	}

	return nil
}

// Reader returns a cloneable reader pointing at the same log paths.
func (w *EventWriter) Reader() *EventReader {
	return &EventReader{logPath: w.logPath, archivePath: w.archivePath}
}

// Dir returns the log directory.
func (w *EventWriter) Dir() string { return w.dir }

// LogPath returns the path to the active log file.
func (w *EventWriter) LogPath() string { return w.logPath }

// ArchivePath returns the path to the archive file.
func (w *EventWriter) ArchivePath() string { return w.archivePath }

// ViewsDir returns the path to the views directory.
func (w *EventWriter) ViewsDir() string { return w.viewsDir }

// ActiveLogSize returns the current size of app.jsonl in bytes.
func (w *EventWriter) ActiveLogSize() (uint64, error) {
	info, err := os.Stat(w.logPath)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// SetMaxLogSize sets the auto-rotation threshold in bytes. Zero
// disables auto-rotation. Intended for use by EventLogBuilder.
func (w *EventWriter) SetMaxLogSize(bytes uint64) {
	w.maxLogSize = bytes
}

// Close releases the advisory lock (if held) and closes the active
// log file handle.
func (w *EventWriter) Close() error {
	var lockErr error
	if w.lock != nil {
		lockErr = w.lock.Unlock()
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return lockErr
}
