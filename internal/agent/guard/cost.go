package guard

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// LogCostTracker is the default CostTracker: it prices the call and emits a
// structured log line. Swap in a persisting implementation for real
// attribution.
type LogCostTracker struct{}

func NewLogCostTracker() *LogCostTracker {
	return &LogCostTracker{}
}

func (t *LogCostTracker) TrackCost(_ context.Context, rec model.CostRecord) {
	if !model.CostEnabled() {
		return
	}
	usage := rec.Usage
	if rec.Cached || usage == nil {
		// cached responses and usage-less providers get a rough estimate so
		// attribution still sees the call
		usage = estimateUsage(rec.Query, rec.Response)
	}
	pricing := model.ResolvePricing(rec.ModelName)
	inC, outC, totalC := model.ComputeCost(usage, pricing)
	logx.Debug().
		Str("model", rec.ModelName).
		Str("user_id", rec.UserID).
		Str("conversation_id", rec.ConversationID).
		Str("chapter_id", rec.ChapterID).
		Bool("cached", rec.Cached).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

// estimateUsage approximates token counts at four characters per token when
// the provider reported none.
func estimateUsage(query, response string) *schema.TokenUsage {
	return &schema.TokenUsage{
		PromptTokens:     len(query) / 4,
		CompletionTokens: len(response) / 4,
		TotalTokens:      (len(query) + len(response)) / 4,
	}
}
