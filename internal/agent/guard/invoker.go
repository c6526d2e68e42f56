package guard

import (
	"context"
	"net/http"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
	errx "github.com/studyloop-core/server/internal/core/error"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// ModelCaller is the narrow surface the invoker needs from a chat model.
// eino chat models (components/model.BaseChatModel) satisfy it directly.
type ModelCaller interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// CallOpts parameterizes one protected call: cache partitioning, TTL and
// cost attribution.
type CallOpts struct {
	Scope          string
	Query          string
	TTL            time.Duration
	UserID         string
	ConversationID string
	ChapterID      string
}

// Invoker composes the concurrency gate, the per-role breakers and the
// response cache around every outbound model call, and attributes usage cost
// on the side. All graph steps call models exclusively through it.
type Invoker struct {
	models   map[model.Role]ModelCaller
	names    map[model.Role]string
	gate     *Gate
	breakers *BreakerSet
	cache    Cache
	costs    model.CostTracker
}

// InvokerConfig wires the invoker's collaborators. Cache and CostTracker
// default to the in-process implementations when nil.
type InvokerConfig struct {
	Models   map[model.Role]ModelCaller
	Names    map[model.Role]string
	Gate     *Gate
	Breakers *BreakerSet
	Cache    Cache
	Costs    model.CostTracker
}

func NewInvoker(cfg InvokerConfig) *Invoker {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	costs := cfg.Costs
	if costs == nil {
		costs = NewLogCostTracker()
	}
	return &Invoker{
		models:   cfg.Models,
		names:    cfg.Names,
		gate:     cfg.Gate,
		breakers: cfg.Breakers,
		cache:    cache,
		costs:    costs,
	}
}

// ModelName reports the configured model identifier for a role.
func (iv *Invoker) ModelName(role model.Role) string {
	return iv.names[role]
}

// Invoke runs one protected model call for the role:
//
//  1. cache hit short-circuits everything else,
//  2. open breaker falls back to cache or fails service-unavailable,
//  3. gate admission (bounded wait) falls back to cache on timeout,
//  4. the underlying call records breaker outcome, fills the cache on
//     success, and masks a failure with a cached fallback when one exists.
//
// The gate slot is released on every path once acquired.
func (iv *Invoker) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message, opts CallOpts) (*schema.Message, error) {
	key := Key(role, opts.Scope, opts.Query)

	if v, ok := iv.cache.Get(ctx, key); ok {
		logx.Debug().Str("role", role.String()).Str("scope", opts.Scope).Msg("response cache hit")
		iv.trackAsync(ctx, role, opts, v, nil, true)
		return schema.AssistantMessage(v, nil), nil
	}

	if iv.breakers.IsOpen(role) {
		if v, ok := iv.cache.Get(ctx, key); ok {
			logx.Warn().Str("role", role.String()).Msg("breaker open, serving cached fallback")
			return schema.AssistantMessage(v, nil), nil
		}
		return nil, errx.NewServiceUnavailable(role.String())
	}

	if err := iv.gate.Acquire(ctx); err != nil {
		// an entry may have appeared while we waited
		if v, ok := iv.cache.Get(ctx, key); ok {
			logx.Warn().Str("role", role.String()).Msg("gate timeout, serving cached fallback")
			return schema.AssistantMessage(v, nil), nil
		}
		return nil, err
	}
	defer iv.gate.Release()

	caller := iv.models[role]
	if caller == nil {
		return nil, errx.New(nil, http.StatusInternalServerError, "no model configured for role "+role.String())
	}

	out, err := caller.Generate(ctx, msgs)
	if err != nil {
		iv.breakers.RecordFailure(role, err)
		if v, ok := iv.cache.Get(ctx, key); ok {
			logx.Warn().Str("role", role.String()).Err(err).Msg("model call failed, masking with cached fallback")
			return schema.AssistantMessage(v, nil), nil
		}
		return nil, err
	}

	iv.breakers.RecordSuccess(role)

	var usage *schema.TokenUsage
	if out != nil && out.ResponseMeta != nil {
		usage = out.ResponseMeta.Usage
	}
	content := ""
	if out != nil {
		content = out.Content
	}
	iv.trackAsync(ctx, role, opts, content, usage, false)

	if content != "" {
		iv.cache.Set(ctx, key, content, opts.TTL)
	}

	return out, nil
}

// trackAsync hands the call off to the cost tracker on a detached goroutine.
// Tracking failures are logged and never reach the response path.
func (iv *Invoker) trackAsync(ctx context.Context, role model.Role, opts CallOpts, response string, usage *schema.TokenUsage, cached bool) {
	rec := model.CostRecord{
		Query:          opts.Query,
		Response:       response,
		ModelName:      iv.names[role],
		UserID:         opts.UserID,
		ConversationID: opts.ConversationID,
		ChapterID:      opts.ChapterID,
		Cached:         cached,
		Usage:          usage,
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Any("panic", r).Msg("cost tracking panicked")
			}
		}()
		iv.costs.TrackCost(bg, rec)
	}()
}
