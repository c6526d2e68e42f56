package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EventType enumerates the outbound streaming frame types.
type EventType string

const (
	EventStatus EventType = "status"
	EventToken  EventType = "token"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is one outbound frame of the public streaming protocol.
type Event struct {
	Type     EventType
	Phase    string
	Message  string
	Content  string
	Error    string
	Metadata map[string]any
}

// statusPhrases are the human-readable messages attached to status frames.
var statusPhrases = map[string]string{
	PhaseRouting:           "Deciding how to answer",
	PhaseTextbookRetrieval: "Looking through the textbook",
	PhaseWebSearch:         "Searching the web",
	PhaseHeavyReasoning:    "Working through the problem",
	PhaseSynthesis:         "Writing the answer",
}

// Translate converts one step event into its outbound frame. Step kinds
// outside the protocol return false.
func Translate(ev StepEvent) (Event, bool) {
	switch ev.Kind {
	case KindStart:
		msg := statusPhrases[ev.Phase]
		if msg == "" {
			msg = ev.Phase
		}
		return Event{Type: EventStatus, Phase: ev.Phase, Message: msg}, true
	case KindOutput:
		// only reasoning and synthesis text reaches the client as tokens
		if ev.Phase != PhaseHeavyReasoning && ev.Phase != PhaseSynthesis {
			return Event{}, false
		}
		if ev.Content == "" {
			return Event{}, false
		}
		return Event{Type: EventToken, Content: ev.Content}, true
	default:
		return Event{}, false
	}
}

// Pump drains step events into the writer as SSE frames until the emitter
// closes. It returns the first write error; translation itself cannot fail.
func Pump(events <-chan StepEvent, w io.Writer) error {
	for ev := range events {
		frame, ok := Translate(ev)
		if !ok {
			continue
		}
		if err := WriteFrame(w, frame); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame renders one newline-delimited SSE frame and flushes when the
// writer supports it. Already-written frames are never retracted.
func WriteFrame(w io.Writer, ev Event) error {
	data, err := json.Marshal(frameData(ev))
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func frameData(ev Event) map[string]any {
	switch ev.Type {
	case EventStatus:
		return map[string]any{"phase": ev.Phase, "message": ev.Message}
	case EventToken:
		return map[string]any{"content": ev.Content}
	case EventError:
		return map[string]any{"error": ev.Error}
	default:
		if ev.Metadata == nil {
			return map[string]any{}
		}
		return map[string]any{"metadata": ev.Metadata}
	}
}
