package graph

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/graph/conversations"
	"github.com/studyloop-core/server/internal/agent/graph/nodes"
	"github.com/studyloop-core/server/internal/agent/graph/observers"
	"github.com/studyloop-core/server/internal/agent/guard"
	"github.com/studyloop-core/server/internal/agent/model"
	"github.com/studyloop-core/server/internal/agent/search"
	"github.com/studyloop-core/server/internal/agent/stream"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// Runner executes the compiled tutoring workflow for one learner turn.
type Runner interface {
	// Invoke runs the workflow and returns the final assistant answer.
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
	// Stream runs the workflow while emitting the phase/token protocol as
	// SSE frames to w.
	Stream(ctx context.Context, in model.QueryInput, w io.Writer) error
}

// Config holds everything needed to compose the full tutoring workflow
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs the chat models and the protected invoker.
type Config struct {
	APIKey  string
	BaseURL string

	RouterModel    model.RouterModelConfig
	ReasonerModel  model.ReasonerModelConfig
	SynthesisModel model.SynthesisModelConfig

	Gate         model.GateConfig
	Breaker      model.BreakerConfig
	Cache        model.CacheConfig
	Conversation model.ConversationConfig
	WebSearch    model.WebSearchConfig

	ConversationRepo model.ConversationRepository
	Searcher         model.ChunkSearcher

	// ResponseCache and CostTracker default to the in-process
	// implementations when nil.
	ResponseCache guard.Cache
	CostTracker   model.CostTracker
}

// GraphConfig holds the already-constructed collaborators the graph wires
// together. Tests build it directly with fakes.
type GraphConfig struct {
	Invoker         *guard.Invoker
	MessagesManager *conversations.MessagesManager
	Searcher        model.ChunkSearcher
	WebClient       *search.Client
	CacheTTLs       model.CacheConfig
}

// GraphBuilder handles the construction of the workflow graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

// BuildTutorGraph composes chat models, resilience layer and messages
// manager, builds the graph, and returns a Runner.
func BuildTutorGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("chunk searcher is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		RouterConfig:    &cfg.RouterModel,
		ReasonerConfig:  &cfg.ReasonerModel,
		SynthesisConfig: &cfg.SynthesisModel,
	})
	if err != nil {
		return nil, err
	}

	invoker := guard.NewInvoker(guard.InvokerConfig{
		Models:   cms.Callers,
		Names:    cms.Names,
		Gate:     guard.NewGate(cfg.Gate),
		Breakers: guard.NewBreakerSet(cfg.Breaker),
		Cache:    cfg.ResponseCache,
		Costs:    cfg.CostTracker,
	})

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Invoker:         invoker,
		MessagesManager: mm,
		Searcher:        cfg.Searcher,
		WebClient:       search.NewClient(cfg.WebSearch),
		CacheTTLs:       cfg.Cache,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Tutor graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled workflow graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Invoker == nil {
		return nil, fmt.Errorf("protected invoker is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Searcher == nil {
		return nil, fmt.Errorf("chunk searcher is nil")
	}
	if config.WebClient == nil {
		return nil, fmt.Errorf("web search client is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.OrchState {
				return model.NewOrchState()
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranch(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeRoute,
		nodes.NewRouteNode(b.config.MessagesManager, b.config.Invoker, b.config.CacheTTLs),
		compose.WithStatePreHandler(nodes.NewRoutePreHandler()),
		compose.WithStatePostHandler(nodes.NewRoutePostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeTextbookRetrieval,
		nodes.NewTextbookRetrievalNode(b.config.Searcher),
	)

	b.graph.AddLambdaNode(nodes.NodeWebSearch,
		nodes.NewWebSearchNode(b.config.WebClient),
	)

	b.graph.AddLambdaNode(nodes.NodeHeavyReasoning,
		nodes.NewHeavyReasoningNode(b.config.Invoker, b.config.CacheTTLs),
	)

	b.graph.AddLambdaNode(nodes.NodeSynthesize,
		nodes.NewSynthesizeNode(b.config.MessagesManager, b.config.Invoker, b.config.CacheTTLs),
		compose.WithStatePostHandler(nodes.NewSynthesizePostHandler()),
	)
}

// addEdges creates the unconditional flow connections: every acquisition
// step funnels into synthesize.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRoute},
		{nodes.NodeTextbookRetrieval, nodes.NodeSynthesize},
		{nodes.NodeWebSearch, nodes.NodeSynthesize},
		{nodes.NodeHeavyReasoning, nodes.NodeSynthesize},
		{nodes.NodeSynthesize, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranch creates the conditional dispatch after routing.
func (b *GraphBuilder) addBranch() error {
	acquisitionBranch := compose.NewGraphBranch(
		nodes.NewAcquisitionCondition(),
		map[string]bool{
			nodes.NodeTextbookRetrieval: true,
			nodes.NodeWebSearch:         true,
			nodes.NodeHeavyReasoning:    true,
			nodes.NodeSynthesize:        true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRoute, acquisitionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding acquisition branch")
		return fmt.Errorf("error adding acquisition branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// route + one acquisition + synthesize, with headroom
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

// Stream runs the workflow with a step emitter installed and translates the
// observed step events into the outbound SSE protocol. Frames already
// written are never retracted; a failing run still ends with an error frame
// followed by a done frame, and the error is returned for the transport to
// close the connection.
func (r *graphRunner) Stream(ctx context.Context, in model.QueryInput, w io.Writer) error {
	em := stream.NewEmitter(64)
	runCtx := stream.WithEmitter(ctx, em)

	type runResult struct {
		out *schema.Message
		err error
	}
	resCh := make(chan runResult, 1)

	go func() {
		out, err := r.runnable.Invoke(runCtx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
		em.Close()
		resCh <- runResult{out: out, err: err}
	}()

	pumpErr := stream.Pump(em.Events(), w)
	res := <-resCh

	if res.err != nil {
		// best effort: the connection may already be gone
		_ = stream.WriteFrame(w, stream.Event{Type: stream.EventError, Error: res.err.Error()})
		_ = stream.WriteFrame(w, stream.Event{Type: stream.EventDone, Metadata: map[string]any{"error": res.err.Error()}})
		return res.err
	}
	if pumpErr != nil {
		return pumpErr
	}

	var meta map[string]any
	if res.out != nil && len(res.out.Extra) > 0 {
		meta = res.out.Extra
	}
	return stream.WriteFrame(w, stream.Event{Type: stream.EventDone, Metadata: meta})
}
