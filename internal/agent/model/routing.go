package model

import "time"

// Intent is the router's classification of the latest learner turn. The
// mapping from intent to workflow behavior is this explicit enumeration,
// consumed directly by the branch condition and the synthesis step.
type Intent string

const (
	IntentTextbook       Intent = "textbook"
	IntentWebSearch      Intent = "web_search"
	IntentHeavyReasoning Intent = "heavy_reasoning"
	IntentFollowUp       Intent = "follow_up"
	IntentGreeting       Intent = "greeting"
	IntentOffTopic       Intent = "off_topic"

	// IntentUnrouted is the pre-routing sentinel. It never leaves the route
	// step; a run that skips routing is a programming error.
	IntentUnrouted Intent = "unrouted"
)

// ParseIntent normalises a raw intent label. Unknown labels fall back to
// textbook, the default acquisition strategy absent a clear signal.
func ParseIntent(v string) (Intent, bool) {
	switch Intent(v) {
	case IntentTextbook, IntentWebSearch, IntentHeavyReasoning,
		IntentFollowUp, IntentGreeting, IntentOffTopic:
		return Intent(v), true
	default:
		return IntentTextbook, false
	}
}

// IsAcquisition reports whether the intent dispatches to one of the three
// knowledge-acquisition steps. Every other intent skips straight to
// synthesis with empty context payloads.
func (i Intent) IsAcquisition() bool {
	switch i {
	case IntentTextbook, IntentWebSearch, IntentHeavyReasoning:
		return true
	default:
		return false
	}
}

// RoutingDecision is the router step's output, kept in state as routing
// metadata for the synthesis step's persona selection.
type RoutingDecision struct {
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Query      string    `json:"query"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// UnroutedDecision is the routing metadata default before the route step runs.
func UnroutedDecision() RoutingDecision {
	return RoutingDecision{Intent: IntentUnrouted, Reason: "not yet routed"}
}
