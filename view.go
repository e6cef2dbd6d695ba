package eventfold

import (
	"fmt"
	"log"
	"path/filepath"
)

// ReduceFn is a pure function that folds an event into state. Reducers
// must be deterministic, perform no I/O, consult no time source or
// randomness, and tolerate unknown event types by leaving state
// unchanged.
type ReduceFn[S any] func(state S, event *Event) S

// snapshotValidity is the outcome of verifying a loaded snapshot
// against the current log — a tagged result rather than a bool so
// logging can distinguish the two failure cases.
type snapshotValidity int

const (
	validSnapshot snapshotValidity = iota
	offsetBeyondEOF
	hashMismatch
)

// ViewOps is the type-erased interface the view registry holds views
// behind, so views with different state types can share a single
// map[string]ViewOps. Typed access is recovered via ViewState, which
// type-asserts back down to *View[S].
type ViewOps interface {
	Name() string
	refreshBoxed(reader *EventReader) error
	resetOffset() error
}

// View is a derived view over an event log: a reducer, its in-memory
// state, and the on-disk snapshot that caches it.
type View[S any] struct {
	name         string
	reducer      ReduceFn[S]
	snapshotPath string

	state           S
	offset          uint64
	hash            string
	loaded          bool
	needsFullReplay bool
}

// newView constructs a view. name identifies it and names its
// snapshot file; reducer folds events into state; viewsDir is the
// directory snapshots live under.
func newView[S any](name string, reducer ReduceFn[S], viewsDir string) *View[S] {
	return &View[S]{
		name:         name,
		reducer:      reducer,
		snapshotPath: filepath.Join(viewsDir, name+".snapshot.json"),
	}
}

// Name returns the view's name.
func (v *View[S]) Name() string { return v.name }

// State returns the current in-memory state with no I/O. If Refresh
// has never been called, this is the zero value of S.
func (v *View[S]) State() S { return v.state }

// Refresh brings the view up to date with reader: lazily loading and
// integrity-checking any on-disk snapshot, then folding every event
// since the snapshot's offset (or, on first load with no usable
// snapshot, every event in the full history).
func (v *View[S]) Refresh(reader *EventReader) (S, error) {
	if !v.loaded {
		snap, ok, err := loadSnapshot[S](v.snapshotPath)
		if err != nil {
			return v.state, fmt.Errorf("load snapshot for view %q: %w", v.name, err)
		}
		if ok {
			v.state = snap.State
			v.offset = snap.Offset
			v.hash = snap.Hash
		} else {
			v.needsFullReplay = true
		}
		v.loaded = true

		if v.offset > 0 {
			validity, err := v.verifySnapshot(reader)
			if err != nil {
				return v.state, fmt.Errorf("verify snapshot for view %q: %w", v.name, err)
			}
			switch validity {
			case offsetBeyondEOF:
				log.Printf("eventfold: view %q: snapshot offset %d is beyond log EOF, rebuilding", v.name, v.offset)
				v.resetState()
			case hashMismatch:
				log.Printf("eventfold: view %q: snapshot hash mismatch, rebuilding", v.name)
				v.resetState()
			}
		}
	}

	newOffset := v.offset
	newHash := v.hash
	processed := false

	if v.needsFullReplay {
		v.needsFullReplay = false
		for entry, err := range reader.ReadFull() {
			if err != nil {
				return v.state, fmt.Errorf("full replay for view %q: %w", v.name, err)
			}
			v.state = v.reducer(v.state, &entry.Event)
			newHash = entry.LineHash
			processed = true
		}
		if processed {
			size, err := reader.ActiveLogSize()
			if err != nil {
				return v.state, fmt.Errorf("stat active log for view %q: %w", v.name, err)
			}
			newOffset = size
			if newOffset == 0 {
				// Only archived events were folded; no active-log
				// line ends before offset 0.
				newHash = ""
			}
		}
	} else {
		for entry, err := range reader.ReadFrom(v.offset) {
			if err != nil {
				return v.state, fmt.Errorf("incremental read for view %q: %w", v.name, err)
			}
			v.state = v.reducer(v.state, &entry.Event)
			newOffset = entry.NextOffset
			newHash = entry.LineHash
			processed = true
		}
	}

	if processed {
		v.offset = newOffset
		v.hash = newHash
		if err := saveSnapshot(v.snapshotPath, Snapshot[S]{State: v.state, Offset: v.offset, Hash: v.hash}); err != nil {
			return v.state, fmt.Errorf("save snapshot for view %q: %w", v.name, err)
		}
	}

	return v.state, nil
}

// Rebuild deletes the view's snapshot, resets state to the zero value
// of S, and replays the full history.
func (v *View[S]) Rebuild(reader *EventReader) (S, error) {
	if err := deleteSnapshot(v.snapshotPath); err != nil {
		return v.state, fmt.Errorf("delete snapshot for view %q: %w", v.name, err)
	}
	v.resetState()
	v.loaded = true
	v.needsFullReplay = true
	return v.Refresh(reader)
}

func (v *View[S]) resetState() {
	var zero S
	v.state = zero
	v.offset = 0
	v.hash = ""
	v.needsFullReplay = true
}

func (v *View[S]) verifySnapshot(reader *EventReader) (snapshotValidity, error) {
	size, err := reader.ActiveLogSize()
	if err != nil {
		return validSnapshot, err
	}
	if v.offset > size {
		return offsetBeyondEOF, nil
	}
	if v.offset == 0 {
		return validSnapshot, nil
	}

	hash, err := reader.ReadLineHashBefore(v.offset)
	if err != nil {
		return validSnapshot, err
	}
	if hash == nil {
		return validSnapshot, nil
	}
	if *hash != v.hash {
		return hashMismatch, nil
	}
	return validSnapshot, nil
}

// refreshBoxed satisfies ViewOps for use by the registry during
// rotation and RefreshAll, discarding the returned state.
func (v *View[S]) refreshBoxed(reader *EventReader) error {
	_, err := v.Refresh(reader)
	return err
}

// resetOffset resets the offset and hash to zero values and persists
// the snapshot. Called by Rotate after every view has been refreshed
// against the about-to-be-truncated active log.
func (v *View[S]) resetOffset() error {
	v.offset = 0
	v.hash = ""
	return saveSnapshot(v.snapshotPath, Snapshot[S]{State: v.state, Offset: v.offset, Hash: v.hash})
}

var _ ViewOps = (*View[struct{}])(nil)
