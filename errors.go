package eventfold

import "fmt"

// EncodeError indicates an event could not be serialized — its data
// is structurally unable to be marshaled to JSON.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode error: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError indicates a log line could not be parsed during
// iteration. Surfaced as an iteration-step error; iteration stops at
// the first malformed line rather than skipping past it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// AppendConflict carries the expected-vs-actual offset and hash for a
// failed conditional append.
type AppendConflict struct {
	ExpectedOffset uint64
	ActualOffset   uint64
	ExpectedHash   string
	ActualHash     string // empty when the offset check failed first
	HasActualHash  bool
}

func (c *AppendConflict) Error() string {
	if c.HasActualHash {
		return fmt.Sprintf(
			"append conflict: expected offset %d (hash %q), actual offset %d (hash %q)",
			c.ExpectedOffset, c.ExpectedHash, c.ActualOffset, c.ActualHash,
		)
	}
	return fmt.Sprintf(
		"append conflict: expected offset %d, actual offset %d",
		c.ExpectedOffset, c.ActualOffset,
	)
}

// LockHeldError indicates another writer already holds the exclusive
// advisory lock on the active log.
type LockHeldError struct {
	Path string
	Err  error
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("another writer holds the lock on %s: %v", e.Path, e.Err)
}
func (e *LockHeldError) Unwrap() error { return e.Err }

// UnknownViewError indicates a typed view lookup by a name that was
// never registered.
type UnknownViewError struct {
	Name string
}

func (e *UnknownViewError) Error() string {
	return fmt.Sprintf("eventfold: view %q not found", e.Name)
}

// ViewTypeMismatchError indicates a typed view lookup whose requested
// state type does not match the type the view was registered with.
type ViewTypeMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *ViewTypeMismatchError) Error() string {
	return fmt.Sprintf(
		"eventfold: view %q type mismatch: requested %s, registered as %s",
		e.Name, e.Expected, e.Actual,
	)
}
