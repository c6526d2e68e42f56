package model

import (
	"github.com/cloudwego/eino/schema"
)

// UserContext carries the learner attributes that scope retrieval and cache
// partitioning. Empty fields mean "not known", never "match nothing".
type UserContext struct {
	UserID  string `json:"user_id"`
	Grade   string `json:"grade"`
	Subject string `json:"subject"`
	Chapter string `json:"chapter"`
}

// Scope returns the cache-partitioning component for this learner: the
// chapter when known, otherwise the global partition.
func (u UserContext) Scope() string {
	if u.Chapter != "" {
		return u.Chapter
	}
	return "global"
}

// OrchState is the per-run orchestration state, registered as Eino graph
// local state.
//
// Concurrency model:
//   - This struct is registered via compose.WithGenLocalState, one instance
//     per workflow run.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//     Eino serializes access within these handlers, so no mutex is needed.
//   - Mutation goes through Apply so every field keeps its merge rule.
type OrchState struct {
	ConversationID string
	RunID          string

	Messages               []*schema.Message // append-only
	UserContext            UserContext       // shallow-merged
	RequiresHeavyReasoning bool              // last-write-wins
	Routing                RoutingDecision   // last-write-wins, defaults to unrouted

	// Exactly one of the three payloads is populated per run; the branch
	// dispatches to a single acquisition step.
	RetrievedContext string
	WebSearchContext string
	ReasoningResult  string

	// Accumulated LLM cost (USD) across model invocations for this run.
	TotalCostUSD float64
}

// NewOrchState builds a fresh state with the unrouted sentinel in place.
func NewOrchState() *OrchState {
	return &OrchState{Routing: UnroutedDecision()}
}

// Delta is a partial state update. Nil pointer fields leave the target field
// untouched; Apply implements the per-field reducers.
type Delta struct {
	AppendMessages         []*schema.Message
	UserContext            *UserContext
	RequiresHeavyReasoning *bool
	Routing                *RoutingDecision
	RetrievedContext       *string
	WebSearchContext       *string
	ReasoningResult        *string
	AddCostUSD             float64
}

// Apply folds a delta into the state: messages concatenate, user context
// shallow-merges, everything else overwrites.
func Apply(s *OrchState, d Delta) {
	s.Messages = append(s.Messages, d.AppendMessages...)
	if d.UserContext != nil {
		mergeUserContext(&s.UserContext, *d.UserContext)
	}
	if d.RequiresHeavyReasoning != nil {
		s.RequiresHeavyReasoning = *d.RequiresHeavyReasoning
	}
	if d.Routing != nil {
		s.Routing = *d.Routing
	}
	if d.RetrievedContext != nil {
		s.RetrievedContext = *d.RetrievedContext
	}
	if d.WebSearchContext != nil {
		s.WebSearchContext = *d.WebSearchContext
	}
	if d.ReasoningResult != nil {
		s.ReasoningResult = *d.ReasoningResult
	}
	s.TotalCostUSD += d.AddCostUSD
}

// mergeUserContext overwrites only the fields the incoming context sets.
func mergeUserContext(dst *UserContext, src UserContext) {
	if src.UserID != "" {
		dst.UserID = src.UserID
	}
	if src.Grade != "" {
		dst.Grade = src.Grade
	}
	if src.Subject != "" {
		dst.Subject = src.Subject
	}
	if src.Chapter != "" {
		dst.Chapter = src.Chapter
	}
}

// QueryInput represents one learner turn entering the workflow.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Grade          string `json:"grade"`
	Subject        string `json:"subject"`
	Chapter        string `json:"chapter"`
	Query          string `json:"query"`
}

// Context extracts the learner attributes from the input.
func (q QueryInput) Context() UserContext {
	return UserContext{
		UserID:  q.UserID,
		Grade:   q.Grade,
		Subject: q.Subject,
		Chapter: q.Chapter,
	}
}
