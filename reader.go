package eventfold

import (
	"bufio"
	"io"
	"iter"
	"os"
)

// LogEntry is one complete event read from the active log via
// ReadFrom, paired with the byte offset immediately after it and the
// hash of its line.
type LogEntry struct {
	Event      Event
	NextOffset uint64
	LineHash   string
}

// FullEntry is one event read from a full-history replay via
// ReadFull, paired with the hash of its line. No offset is tracked
// during the archive segment, so ReadFull reports hash only.
type FullEntry struct {
	Event    Event
	LineHash string
}

// EventReader is a cheap, cloneable, lock-free read handle for an
// event log. It owns only path strings — every method opens fresh
// file handles — so it is safe to share across goroutines.
type EventReader struct {
	logPath     string
	archivePath string
}

// NewReader creates a reader pointing at the given log directory.
func NewReader(dir string) *EventReader {
	return &EventReader{
		logPath:     dir + string(os.PathSeparator) + activeLogName,
		archivePath: dir + string(os.PathSeparator) + archiveName,
	}
}

// ActiveLogSize returns the current size of app.jsonl in bytes. A
// lightweight stat-only check.
func (r *EventReader) ActiveLogSize() (uint64, error) {
	info, err := os.Stat(r.logPath)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// HasNewEvents reports whether the active log contains data beyond
// offset. A non-blocking metadata check suitable for poll-based
// tailing.
func (r *EventReader) HasNewEvents(offset uint64) (bool, error) {
	size, err := r.ActiveLogSize()
	if err != nil {
		return false, err
	}
	return size > offset, nil
}

// ReadFrom reads events from the active log starting at offset. The
// returned sequence yields one (LogEntry, nil) per complete line;
// empty lines are skipped silently, and a trailing partial line
// (missing its terminating newline — the signature of a crash
// mid-write) is dropped without error. A malformed line surfaces a
// *DecodeError and ends iteration.
func (r *EventReader) ReadFrom(offset uint64) iter.Seq2[LogEntry, error] {
	return func(yield func(LogEntry, error) bool) {
		file, err := os.Open(r.logPath)
		if err != nil {
			yield(LogEntry{}, err)
			return
		}
		defer file.Close()

		if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
			yield(LogEntry{}, err)
			return
		}

		br := bufio.NewReader(file)
		pos := offset

		for {
			line, readErr := br.ReadBytes('\n')
			if readErr != nil && readErr != io.EOF {
				yield(LogEntry{}, readErr)
				return
			}

			hasNewline := len(line) > 0 && line[len(line)-1] == '\n'
			if !hasNewline {
				// No terminating newline: either genuinely out of
				// data (len(line) == 0, EOF) or a partial trailing
				// line from a crash mid-write. Either way, nothing
				// more to yield.
				return
			}

			content := line[:len(line)-1]
			nextPos := pos + uint64(len(line))

			if len(content) == 0 {
				pos = nextPos
				continue
			}

			event, err := decodeEvent(content)
			if err != nil {
				yield(LogEntry{}, err)
				return
			}

			hash := LineHash(content)
			pos = nextPos
			if !yield(LogEntry{Event: event, NextOffset: nextPos, LineHash: hash}, nil) {
				return
			}
		}
	}
}

// ReadFull replays the full event history: the archive (if any)
// followed by the active log, in order. No offset tracking occurs
// during the archive segment.
func (r *EventReader) ReadFull() iter.Seq2[FullEntry, error] {
	return func(yield func(FullEntry, error) bool) {
		archiveReader, err := openArchiveStream(r.archivePath)
		if err != nil {
			yield(FullEntry{}, err)
			return
		}
		if archiveReader != nil {
			defer archiveReader.Close()
			if !streamLines(bufio.NewReader(archiveReader), yield) {
				return
			}
		}

		file, err := os.Open(r.logPath)
		if err != nil {
			yield(FullEntry{}, err)
			return
		}
		defer file.Close()
		streamLines(bufio.NewReader(file), yield)
	}
}

// streamLines reads complete lines from br, decoding and yielding each
// as a FullEntry. Returns false if the consumer stopped early or an
// error was yielded, so the caller ends iteration there too.
func streamLines(br *bufio.Reader, yield func(FullEntry, error) bool) bool {
	for {
		line, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			yield(FullEntry{}, readErr)
			return false
		}

		hasNewline := len(line) > 0 && line[len(line)-1] == '\n'
		if !hasNewline {
			return true
		}

		content := line[:len(line)-1]
		if len(content) == 0 {
			continue
		}

		event, err := decodeEvent(content)
		if err != nil {
			yield(FullEntry{}, err)
			return false
		}

		hash := LineHash(content)
		if !yield(FullEntry{Event: event, LineHash: hash}, nil) {
			return false
		}
	}
}

// ReadLineHashBefore returns the hash of the line ending at byte
// offset-1, or nil if offset is 0 or lies outside the file. offset
// should point to the byte immediately after the newline of the last
// consumed line — the convention used by Snapshot.Offset.
func (r *EventReader) ReadLineHashBefore(offset uint64) (*string, error) {
	if offset == 0 {
		return nil, nil
	}

	file, err := os.Open(r.logPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	fileLen := uint64(info.Size())
	if offset > fileLen {
		return nil, nil
	}

	newlinePos := offset - 1
	var start uint64

	if newlinePos > 0 {
		const scanWindow = 8192
		scanStart := uint64(0)
		if newlinePos > scanWindow {
			scanStart = newlinePos - scanWindow
		}
		if _, err := file.Seek(int64(scanStart), io.SeekStart); err != nil {
			return nil, err
		}
		buf := make([]byte, newlinePos-scanStart)
		if _, err := io.ReadFull(file, buf); err != nil {
			return nil, err
		}
		start = scanStart
		for i := len(buf) - 1; i >= 0; i-- {
			if buf[i] == '\n' {
				start = scanStart + uint64(i) + 1
				break
			}
		}
	}

	if _, err := file.Seek(int64(start), io.SeekStart); err != nil {
		return nil, err
	}
	lineBuf := make([]byte, newlinePos-start)
	if _, err := io.ReadFull(file, lineBuf); err != nil {
		return nil, err
	}

	hash := LineHash(lineBuf)
	return &hash, nil
}

// LogPath returns the path to the active log file.
func (r *EventReader) LogPath() string { return r.logPath }

// ArchivePath returns the path to the archive file.
func (r *EventReader) ArchivePath() string { return r.archivePath }
