package eventfold

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendWritesLineWithHash(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	result, err := w.Append(NewEvent("created", map[string]any{"n": 1}))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if result.StartOffset != 0 {
		t.Fatalf("StartOffset = %d, want 0", result.StartOffset)
	}
	if result.EndOffset == 0 {
		t.Fatalf("EndOffset should be > 0")
	}
	if result.LineHash == "" {
		t.Fatalf("LineHash should be non-empty")
	}

	data, err := os.ReadFile(w.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatalf("log file should end with a newline")
	}
}

func TestAppendIfHappyPath(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	first, err := w.AppendIf(NewEvent("a", nil), 0, "")
	if err != nil {
		t.Fatalf("first AppendIf: %v", err)
	}

	if _, err := w.AppendIf(NewEvent("b", nil), first.EndOffset, first.LineHash); err != nil {
		t.Fatalf("second AppendIf: %v", err)
	}
}

func TestAppendIfConflict(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	if _, err := w.Append(NewEvent("a", nil)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, err = w.AppendIf(NewEvent("b", nil), 0, "")
	if err == nil {
		t.Fatalf("expected AppendConflict")
	}
	conflict, ok := err.(*AppendConflict)
	if !ok {
		t.Fatalf("expected *AppendConflict, got %T", err)
	}
	if conflict.ExpectedOffset != 0 || conflict.ActualOffset == 0 {
		t.Fatalf("unexpected conflict details: %+v", conflict)
	}
}

func TestAppendIfHashMismatch(t *testing.T) {
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

	_, err = w.AppendIf(NewEvent("b", nil), first.EndOffset, "0000000000000000")
	if err == nil {
		t.Fatalf("expected AppendConflict for wrong hash")
	}
	conflict, ok := err.(*AppendConflict)
	if !ok || !conflict.HasActualHash {
		t.Fatalf("expected hash-bearing AppendConflict, got %+v", err)
	}
}

func TestOpenWriterWithLockRejectsSecondWriter(t *testing.T) {
	dir := t.TempDir()
	w1, err := OpenWriterWithLock(dir, LockFlock)
	if err != nil {
		t.Fatalf("first OpenWriterWithLock: %v", err)
	}
	defer w1.Close()

	_, err = OpenWriterWithLock(dir, LockFlock)
	if err == nil {
		t.Fatalf("expected second writer to fail to acquire the lock")
	}
	if _, ok := err.(*LockHeldError); !ok {
		t.Fatalf("expected *LockHeldError, got %T", err)
	}
}

func TestRotateArchivesAndTruncates(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if _, err := w.Append(NewEvent("tick", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	view := newView[int]("count", func(s int, _ *Event) int { return s + 1 }, w.ViewsDir())
	views := map[string]ViewOps{"count": view}

	if err := w.Rotate(w.Reader(), views); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if view.offset != 0 {
		t.Fatalf("view offset should reset to 0 after rotate, got %d", view.offset)
	}
	if view.state != 5 {
		t.Fatalf("view should have folded all 5 events before rotate, got %d", view.state)
	}

	size, err := w.ActiveLogSize()
	if err != nil {
		t.Fatalf("ActiveLogSize: %v", err)
	}
	if size != 0 {
		t.Fatalf("active log should be empty after rotate, got size %d", size)
	}

	if _, err := os.Stat(filepath.Join(dir, archiveName)); err != nil {
		t.Fatalf("archive file should exist: %v", err)
	}
}

func TestRotateNoOpOnEmptyLog(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriterWithLock(dir, LockNone)
	if err != nil {
		t.Fatalf("OpenWriterWithLock: %v", err)
	}
	defer w.Close()

	if err := w.Rotate(w.Reader(), nil); err != nil {
		t.Fatalf("Rotate on empty log: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, archiveName)); !os.IsNotExist(err) {
		t.Fatalf("archive file should not be created by a no-op rotate")
	}
}
