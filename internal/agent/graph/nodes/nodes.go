package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/studyloop-core/server/internal/agent/graph/conversations"
	"github.com/studyloop-core/server/internal/agent/graph/parsers"
	"github.com/studyloop-core/server/internal/agent/graph/prompts"
	"github.com/studyloop-core/server/internal/agent/guard"
	"github.com/studyloop-core/server/internal/agent/model"
	"github.com/studyloop-core/server/internal/agent/search"
	"github.com/studyloop-core/server/internal/agent/stream"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// Graph node keys.
const (
	NodeRoute             = "route"
	NodeTextbookRetrieval = "textbook_retrieval"
	NodeWebSearch         = "web_search"
	NodeHeavyReasoning    = "heavy_reasoning"
	NodeSynthesize        = "synthesize"
)

// Extra keys stamped on the final message for the transport layer.
const (
	ExtraRunID        = "run_id"
	ExtraTotalCostUSD = "total_cost_usd"
	ExtraIntent       = "intent"
)

// NewRoutePreHandler seeds the run state from the incoming query: identity,
// learner context merge and the append of the new user turn.
func NewRoutePreHandler() func(context.Context, model.QueryInput, *model.OrchState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.OrchState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		if s.RunID == "" {
			s.RunID = uuid.NewString()
		}
		uc := in.Context()
		model.Apply(s, model.Delta{
			AppendMessages: []*schema.Message{schema.UserMessage(in.Query)},
			UserContext:    &uc,
		})
		return in, nil
	}
}

// NewRouteNode classifies the latest turn into an intent with an extracted
// sub-query. The router call goes through the protected invoker; its
// irrecoverable failures abort the run.
func NewRouteNode(
	mm *conversations.MessagesManager,
	invoker *guard.Invoker,
	cacheCfg model.CacheConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) (model.RoutingDecision, error) {
		stream.EmitStart(ctx, stream.PhaseRouting)

		routerContext, err := mm.ProcessRouterMessage(ctx, input.ConversationID, input.Query)
		if err != nil {
			return model.RoutingDecision{}, fmt.Errorf("build router context: %w", err)
		}

		var uc model.UserContext
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			uc = s.UserContext
			return nil
		}); err != nil {
			return model.RoutingDecision{}, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderRouterSystem(ctx, uc)
		if err != nil {
			return model.RoutingDecision{}, fmt.Errorf("render router system prompt: %w", err)
		}

		out, err := invoker.Invoke(ctx, model.RoleRouter,
			[]*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(routerContext),
			},
			guard.CallOpts{
				Scope:          uc.Scope(),
				Query:          input.Query,
				TTL:            cacheCfg.TTLFor(model.RoleRouter),
				UserID:         uc.UserID,
				ConversationID: input.ConversationID,
				ChapterID:      uc.Chapter,
			})
		if err != nil {
			return model.RoutingDecision{}, err
		}

		decision := parsers.ParseRoutingDecision(out.Content)

		if cost := costOf(out, invoker.ModelName(model.RoleRouter)); cost > 0 {
			compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
				model.Apply(s, model.Delta{AddCostUSD: cost})
				return nil
			})
		}

		logx.Debug().
			Str("conversation_id", input.ConversationID).
			Str("intent", string(decision.Intent)).
			Float64("confidence", decision.Confidence).
			Str("reason", decision.Reason).
			Msg("routing decision")

		return decision, nil
	})
}

// NewRoutePostHandler folds the routing decision into state. Heavy reasoning
// is the only intent that raises the flag; skip intents leave both context
// payloads empty for synthesis to handle.
func NewRoutePostHandler() func(context.Context, model.RoutingDecision, *model.OrchState) (model.RoutingDecision, error) {
	return func(ctx context.Context, out model.RoutingDecision, s *model.OrchState) (model.RoutingDecision, error) {
		decision := out
		model.Apply(s, model.Delta{
			Routing:                &decision,
			RequiresHeavyReasoning: boolPtr(out.Intent == model.IntentHeavyReasoning),
		})
		return out, nil
	}
}

// NewAcquisitionCondition routes each intent to its acquisition step. The
// skip intents (greeting, follow_up, off_topic) go straight to synthesize:
// the intent enum, not graph topology, decides their handling.
func NewAcquisitionCondition() func(context.Context, model.RoutingDecision) (string, error) {
	return func(ctx context.Context, decision model.RoutingDecision) (string, error) {
		var next string
		switch decision.Intent {
		case model.IntentWebSearch:
			next = NodeWebSearch
		case model.IntentHeavyReasoning:
			next = NodeHeavyReasoning
		case model.IntentTextbook:
			next = NodeTextbookRetrieval
		default:
			next = NodeSynthesize
		}
		logx.Debug().
			Str("intent", string(decision.Intent)).
			Str("next_node", next).
			Msg("dispatching acquisition step")
		return next, nil
	}
}

// NewTextbookRetrievalNode queries the similarity collaborator scoped by the
// learner's curriculum position. Collaborator failures degrade to sentinel
// text; retrieval never aborts the workflow.
func NewTextbookRetrievalNode(searcher model.ChunkSearcher) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, decision model.RoutingDecision) (model.RoutingDecision, error) {
		stream.EmitStart(ctx, stream.PhaseTextbookRetrieval)

		var uc model.UserContext
		query := decision.Query
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			uc = s.UserContext
			if query == "" {
				query = lastUserContent(s.Messages)
			}
			return nil
		}); err != nil {
			return decision, fmt.Errorf("failed to access state: %w", err)
		}

		payload := ""
		chunks, err := searcher.Search(ctx, query, retrievalTopK, model.ChunkFilter{
			Subject: uc.Subject,
			Grade:   uc.Grade,
			Chapter: uc.Chapter,
		})
		switch {
		case err != nil:
			logx.Error().Err(err).Str("query", query).Msg("similarity search failed, degrading to sentinel")
			payload = SentinelRetrievalDegraded
		case len(chunks) == 0:
			payload = SentinelNoContent
		default:
			payload = FormatChunks(chunks)
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			model.Apply(s, model.Delta{RetrievedContext: strPtr(payload)})
			return nil
		}); err != nil {
			return decision, fmt.Errorf("failed to access state: %w", err)
		}
		return decision, nil
	})
}

// NewWebSearchNode fetches current-events context. An unconfigured endpoint
// is a handled state, not a failure: the workflow proceeds on a labeled
// placeholder.
func NewWebSearchNode(client *search.Client) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, decision model.RoutingDecision) (model.RoutingDecision, error) {
		stream.EmitStart(ctx, stream.PhaseWebSearch)

		query := decision.Query
		if query == "" {
			compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
				query = lastUserContent(s.Messages)
				return nil
			})
		}

		payload := ""
		if !client.Configured() {
			payload = WebSearchPlaceholder(query)
		} else if results, err := client.Search(ctx, query); err != nil {
			logx.Error().Err(err).Str("query", query).Msg("web search failed, degrading to sentinel")
			payload = SentinelSearchFailed
		} else if len(results) == 0 {
			payload = SentinelSearchFailed
		} else {
			payload = FormatResults(results)
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			model.Apply(s, model.Delta{WebSearchContext: strPtr(payload)})
			return nil
		}); err != nil {
			return decision, fmt.Errorf("failed to access state: %w", err)
		}
		return decision, nil
	})
}

// NewHeavyReasoningNode dispatches the full conversation to the reasoner
// role. Protected-invocation failures here are not collaborator failures;
// they propagate to the workflow caller.
func NewHeavyReasoningNode(invoker *guard.Invoker, cacheCfg model.CacheConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, decision model.RoutingDecision) (model.RoutingDecision, error) {
		stream.EmitStart(ctx, stream.PhaseHeavyReasoning)

		var uc model.UserContext
		var convID string
		msgs := []*schema.Message{schema.SystemMessage(prompts.ReasoningSystem())}
		query := decision.Query
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			uc = s.UserContext
			convID = s.ConversationID
			msgs = append(msgs, s.Messages...)
			if query == "" {
				query = lastUserContent(s.Messages)
			}
			return nil
		}); err != nil {
			return decision, fmt.Errorf("failed to access state: %w", err)
		}

		out, err := invoker.Invoke(ctx, model.RoleReasoner, msgs, guard.CallOpts{
			Scope:          uc.Scope(),
			Query:          query,
			TTL:            cacheCfg.TTLFor(model.RoleReasoner),
			UserID:         uc.UserID,
			ConversationID: convID,
			ChapterID:      uc.Chapter,
		})
		if err != nil {
			return decision, err
		}

		stream.EmitOutput(ctx, stream.PhaseHeavyReasoning, out.Content)

		cost := costOf(out, invoker.ModelName(model.RoleReasoner))
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			model.Apply(s, model.Delta{
				ReasoningResult: strPtr(out.Content),
				AddCostUSD:      cost,
			})
			return nil
		}); err != nil {
			return decision, fmt.Errorf("failed to access state: %w", err)
		}
		return decision, nil
	})
}

// NewSynthesizeNode always runs last: it folds the knowledge payload into
// the persona selected by the routed intent and issues the final protected
// synthesis call. The answer becomes the appended assistant turn.
func NewSynthesizeNode(
	mm *conversations.MessagesManager,
	invoker *guard.Invoker,
	cacheCfg model.CacheConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, decision model.RoutingDecision) (*schema.Message, error) {
		stream.EmitStart(ctx, stream.PhaseSynthesis)

		var uc model.UserContext
		var convID, knowledge, question string
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			uc = s.UserContext
			convID = s.ConversationID
			knowledge = KnowledgePayload(s.ReasoningResult, s.RetrievedContext, s.WebSearchContext)
			question = lastUserContent(s.Messages)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderSynthesisSystem(ctx, decision.Intent, knowledge, uc)
		if err != nil {
			return nil, fmt.Errorf("render synthesis prompt: %w", err)
		}

		msgs, err := mm.BuildSynthesisContext(ctx, convID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build synthesis context: %w", err)
		}

		out, err := invoker.Invoke(ctx, model.RoleSynthesis, msgs, guard.CallOpts{
			Scope:          uc.Scope(),
			Query:          question,
			TTL:            cacheCfg.TTLFor(model.RoleSynthesis),
			UserID:         uc.UserID,
			ConversationID: convID,
			ChapterID:      uc.Chapter,
		})
		if err != nil {
			return nil, err
		}

		stream.EmitOutput(ctx, stream.PhaseSynthesis, out.Content)

		cost := costOf(out, invoker.ModelName(model.RoleSynthesis))
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.OrchState) error {
			model.Apply(s, model.Delta{
				AppendMessages: []*schema.Message{out},
				AddCostUSD:     cost,
			})
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := mm.SaveResponse(ctx, convID, out.Content); err != nil {
			logx.Error().
				Str("conversation_id", convID).
				Err(err).
				Msg("error saving assistant response")
		}

		return out, nil
	})
}

// NewSynthesizePostHandler stamps run metadata on the final message so the
// transport layer can emit it with the done frame.
func NewSynthesizePostHandler() func(context.Context, *schema.Message, *model.OrchState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.OrchState) (*schema.Message, error) {
		if out == nil {
			return out, nil
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[ExtraRunID] = s.RunID
		out.Extra[ExtraTotalCostUSD] = s.TotalCostUSD
		out.Extra[ExtraIntent] = string(s.Routing.Intent)

		logx.Debug().
			Str("run_id", s.RunID).
			Str("conversation_id", s.ConversationID).
			Float64("total_cost_usd", s.TotalCostUSD).
			Msg("workflow run complete")
		return out, nil
	}
}
