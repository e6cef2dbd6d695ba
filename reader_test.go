package eventfold

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFromYieldsAppendedEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if _, err := w.Append(NewEvent("tick", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reader := w.Reader()
	var got []int
	for entry, err := range reader.ReadFrom(0) {
		if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		n, _ := entry.Event.Data.(float64)
		got = append(got, int(n))
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("unexpected events read: %v", got)
	}
}

func TestReadFromSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, activeLogName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "\n" + `{"type":"a","data":1,"ts":1}` + "\n\n" + `{"type":"b","data":2,"ts":2}` + "\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	reader := NewReader(dir)
	var types []string
	for entry, err := range reader.ReadFrom(0) {
		if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		types = append(types, entry.Event.Type)
	}
	if len(types) != 2 || types[0] != "a" || types[1] != "b" {
		t.Fatalf("unexpected types: %v", types)
	}
}

func TestReadFromIgnoresTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, activeLogName)
	content := `{"type":"a","data":1,"ts":1}` + "\n" + `{"type":"b","data":2` // no trailing newline
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	reader := NewReader(dir)
	var types []string
	for entry, err := range reader.ReadFrom(0) {
		if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		types = append(types, entry.Event.Type)
	}
	if len(types) != 1 || types[0] != "a" {
		t.Fatalf("expected only the complete line to be read, got %v", types)
	}
}

func TestReadFromDecodeErrorStopsIteration(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, activeLogName)
	content := `{"type":"a","data":1,"ts":1}` + "\n" + `not json at all` + "\n" + `{"type":"c","data":3,"ts":3}` + "\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	reader := NewReader(dir)
	var types []string
	var gotErr error
	for entry, err := range reader.ReadFrom(0) {
		if err != nil {
			gotErr = err
			continue
		}
		types = append(types, entry.Event.Type)
	}
	if gotErr == nil {
		t.Fatalf("expected a decode error")
	}
	if len(types) != 1 || types[0] != "a" {
		t.Fatalf("iteration should stop at the bad line, got %v", types)
	}
}

func TestHasNewEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	reader := w.Reader()
	has, err := reader.HasNewEvents(0)
	if err != nil {
		t.Fatalf("HasNewEvents: %v", err)
	}
	if has {
		t.Fatalf("empty log should report no new events at offset 0")
	}

	if _, err := w.Append(NewEvent("a", nil)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	has, err = reader.HasNewEvents(0)
	if err != nil {
		t.Fatalf("HasNewEvents: %v", err)
	}
	if !has {
		t.Fatalf("expected new events after append")
	}
}

func TestReadFullSpansArchiveAndActiveLog(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	for i := 0; i < 2; i++ {
		if _, err := w.Append(NewEvent("old", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Rotate(w.Reader(), nil); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := w.Append(NewEvent("new", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reader := w.Reader()
	var types []string
	for entry, err := range reader.ReadFull() {
		if err != nil {
			t.Fatalf("ReadFull: %v", err)
		}
		types = append(types, entry.Event.Type)
	}
	want := []string{"old", "old", "new", "new"}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("got %v, want %v", types, want)
		}
	}
}

func TestReadLineHashBeforeMatchesAppendResult(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	first, err := w.Append(NewEvent("a", nil))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := w.Append(NewEvent("b", nil))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	reader := w.Reader()
	hash, err := reader.ReadLineHashBefore(first.EndOffset)
	if err != nil {
		t.Fatalf("ReadLineHashBefore: %v", err)
	}
	if hash == nil || *hash != first.LineHash {
		t.Fatalf("got %v, want %q", hash, first.LineHash)
	}

	hash, err = reader.ReadLineHashBefore(second.EndOffset)
	if err != nil {
		t.Fatalf("ReadLineHashBefore: %v", err)
	}
	if hash == nil || *hash != second.LineHash {
		t.Fatalf("got %v, want %q", hash, second.LineHash)
	}
}

func TestReadLineHashBeforeOffsetZero(t *testing.T) {
	dir := t.TempDir()
	reader := NewReader(dir)
	hash, err := reader.ReadLineHashBefore(0)
	if err != nil {
		t.Fatalf("ReadLineHashBefore: %v", err)
	}
	if hash != nil {
		t.Fatalf("expected nil hash at offset 0, got %v", *hash)
	}
}
