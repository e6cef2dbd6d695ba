// Command eventfold is a CLI demo for the eventfold library: a
// persistent todo list backed by an event log.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"eventfold"
)

type todoItem struct {
	ID   uint64 `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type todoState struct {
	Items  []todoItem `json:"items"`
	NextID uint64     `json:"next_id"`
}

func todoReducer(state todoState, event *eventfold.Event) todoState {
	data, _ := event.Data.(map[string]any)
	switch event.Type {
	case "todo_added":
		text, _ := data["text"].(string)
		state.Items = append(state.Items, todoItem{ID: state.NextID, Text: text})
		state.NextID++
	case "todo_completed":
		id := uint64(asFloat(data["id"]))
		for i := range state.Items {
			if state.Items[i].ID == id {
				state.Items[i].Done = true
			}
		}
	}
	return state
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	dir := os.Getenv("EVENTFOLD_DIR")
	if dir == "" {
		dir = "./eventfold-data"
	}

	builder := eventfold.AddView(eventfold.NewBuilder(dir), "todos", todoReducer)
	log, err := builder.Open()
	if err != nil {
		fatal("open log: %v", err)
	}
	defer log.Close()

	switch os.Args[1] {
	case "add":
		handleAdd(log, os.Args[2:])
	case "complete":
		handleComplete(log, os.Args[2:])
	case "list":
		handleList(log)
	case "rebuild":
		handleRebuild(log)
	case "rotate":
		handleRotate(log)
	default:
		usage()
		os.Exit(1)
	}
}

func handleAdd(log *eventfold.EventLog, args []string) {
	if len(args) == 0 {
		fatal("Usage: eventfold add <text>")
	}
	text := strings.Join(args, " ")
	if _, err := log.Append(eventfold.NewEvent("todo_added", map[string]any{"text": text})); err != nil {
		fatal("add todo: %v", err)
	}
	fmt.Printf("added: %s\n", text)
}

func handleComplete(log *eventfold.EventLog, args []string) {
	if len(args) == 0 {
		fatal("Usage: eventfold complete <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fatal("invalid id %q: %v", args[0], err)
	}
	if _, err := log.Append(eventfold.NewEvent("todo_completed", map[string]any{"id": id})); err != nil {
		fatal("complete todo: %v", err)
	}
	fmt.Printf("completed: %d\n", id)
}

func handleList(log *eventfold.EventLog) {
	state, err := eventfold.ViewState[todoState](log, "todos")
	if err != nil {
		fatal("refresh todos: %v", err)
	}
	for _, item := range state.Items {
		check := " "
		if item.Done {
			check = "x"
		}
		fmt.Printf("[%s] %d: %s\n", check, item.ID, item.Text)
	}
}

func handleRebuild(log *eventfold.EventLog) {
	state, err := eventfold.RebuildView[todoState](log, "todos")
	if err != nil {
		fatal("rebuild todos: %v", err)
	}
	printJSON(state)
}

func handleRotate(log *eventfold.EventLog) {
	if err := log.Rotate(); err != nil {
		fatal("rotate: %v", err)
	}
	fmt.Println(`{"status":"ok","message":"rotated"}`)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode JSON: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "eventfold: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: eventfold <command>

Commands:
  add <text>       Add a todo item
  complete <id>    Mark a todo item done
  list             Show all todo items
  rebuild          Discard the view snapshot and replay from scratch
  rotate           Compress the active log into the archive

Set EVENTFOLD_DIR to choose the log directory (default ./eventfold-data).`)
}
