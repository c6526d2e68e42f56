package stream

import "context"

// Phase names exposed on the streaming protocol, one per workflow step.
const (
	PhaseRouting           = "routing"
	PhaseTextbookRetrieval = "textbook_retrieval"
	PhaseWebSearch         = "web_search"
	PhaseHeavyReasoning    = "heavy_reasoning"
	PhaseSynthesis         = "synthesis"
)

// StepKind distinguishes a step beginning from a step producing payload text.
type StepKind int8

const (
	KindStart StepKind = iota
	KindOutput
)

// StepEvent is one observation of the workflow graph: a step began, or a
// step produced content worth forwarding to the client.
type StepEvent struct {
	Phase   string
	Kind    StepKind
	Content string
}

// Emitter collects step events from graph nodes for one run. Nodes reach it
// through the run context; when no emitter is installed (plain Invoke) the
// Emit helpers are no-ops.
type Emitter struct {
	ch chan StepEvent
}

func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{ch: make(chan StepEvent, buffer)}
}

// Events exposes the receive side for the translator.
func (e *Emitter) Events() <-chan StepEvent {
	return e.ch
}

// Close signals that the run produced its last step event.
func (e *Emitter) Close() {
	close(e.ch)
}

func (e *Emitter) emit(ev StepEvent) {
	e.ch <- ev
}

type emitterKey struct{}

// WithEmitter installs the emitter on the run context.
func WithEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

func fromContext(ctx context.Context) *Emitter {
	e, _ := ctx.Value(emitterKey{}).(*Emitter)
	return e
}

// EmitStart records that the named phase began.
func EmitStart(ctx context.Context, phase string) {
	if e := fromContext(ctx); e != nil {
		e.emit(StepEvent{Phase: phase, Kind: KindStart})
	}
}

// EmitOutput records payload text produced by a phase.
func EmitOutput(ctx context.Context, phase, content string) {
	if e := fromContext(ctx); e != nil {
		e.emit(StepEvent{Phase: phase, Kind: KindOutput, Content: content})
	}
}
