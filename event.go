package eventfold

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a single append-only record in the log.
//
// Type and Data are domain-defined; Ts is populated automatically at
// construction. Id, Actor, and Meta are optional and omitted from the
// encoded JSON when unset.
type Event struct {
	Type  string          `json:"type"`
	Data  any             `json:"data"`
	Ts    uint64          `json:"ts"`
	ID    string          `json:"id,omitempty"`
	Actor string          `json:"actor,omitempty"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

// NewEvent creates an event of the given type carrying data, with Ts
// set to the current wall-clock time in seconds since the epoch.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type: eventType,
		Data: data,
		Ts:   uint64(time.Now().Unix()),
	}
}

// WithID sets the event's id and returns the event for chaining.
func (e *Event) WithID(id string) *Event {
	e.ID = id
	return e
}

// WithGeneratedID sets the event's id to a freshly generated UUID and
// returns the event for chaining. A convenience for callers that want
// a unique id without managing one themselves.
func (e *Event) WithGeneratedID() *Event {
	e.ID = uuid.NewString()
	return e
}

// WithActor sets the event's actor and returns the event for chaining.
func (e *Event) WithActor(actor string) *Event {
	e.Actor = actor
	return e
}

// WithMeta sets the event's meta field and returns the event for
// chaining. meta is marshaled to JSON immediately so later mutation of
// the passed value has no effect.
func (e *Event) WithMeta(meta any) *Event {
	b, err := json.Marshal(meta)
	if err != nil {
		// Meta is best-effort decoration; a value that can't be
		// marshaled is dropped rather than surfaced here, since
		// builder methods don't return errors. encode() below will
		// fail loudly if Data itself is unencodable.
		return e
	}
	e.Meta = b
	return e
}

// encode serializes the event as compact, single-line JSON (no
// embedded raw newlines survive — json.Marshal escapes them).
func (e *Event) encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", &EncodeError{Err: err})
	}
	return b, nil
}

// decodeEvent parses one encoded event line. Missing optional fields
// (legacy format) are tolerated and left at their zero value; a
// missing or empty Type is rejected as a structural error, since
// reducers dispatch on it. Beyond that, further validation of Data's
// shape is left to reducers.
func decodeEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if e.Type == "" {
		return Event{}, &DecodeError{Err: fmt.Errorf("missing required field %q", "type")}
	}
	return e, nil
}
