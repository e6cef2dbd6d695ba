// Package eventfold is a lightweight, embedded, single-writer event log
// with derived views for Go.
//
// Your application's state is the fold of a pure reducer over an
// append-only log of events. Define events as JSON, write reducer
// functions that fold them into state, and let eventfold handle
// persistence, snapshots, and log rotation. No database, no
// infrastructure — just files in a directory.
//
// # Quick start
//
//	type Counter struct {
//		Count uint64 `json:"count"`
//	}
//
//	func countReducer(state Counter, _ *eventfold.Event) Counter {
//		state.Count++
//		return state
//	}
//
//	builder := eventfold.AddView(eventfold.NewBuilder(dir), "counter", countReducer)
//	log, err := builder.Open()
//	if err != nil {
//		// handle err
//	}
//	defer log.Close()
//
//	log.Append(eventfold.NewEvent("click", map[string]any{"x": 10}))
//	log.RefreshAll()
//
//	state, err := eventfold.ViewState[Counter](log, "counter")
//
// # Core concepts
//
//   - Events are immutable JSON records appended to a log file (app.jsonl).
//   - Reducers are pure functions func(S, *Event) S that fold events into
//     application state.
//   - Views are derived state computed by applying a reducer to the event
//     log, with snapshots on disk for incremental performance.
package eventfold
