package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
	"github.com/studyloop-core/server/internal/agent/search"
)

// Sentinel payloads substituted when an acquisition collaborator degrades.
// They are stable strings so retries against a failing collaborator always
// produce identical state.
const (
	SentinelNoContent         = "[no relevant textbook content found]"
	SentinelRetrievalDegraded = "[textbook retrieval temporarily degraded]"
	SentinelSearchFailed      = "[web search failed]"
)

// retrievalTopK is how many chunks the similarity collaborator is asked for.
const retrievalTopK = 5

// WebSearchPlaceholder labels the degraded result used when no search
// endpoint is configured. The original query is kept so synthesis can still
// acknowledge what the learner asked.
func WebSearchPlaceholder(query string) string {
	return fmt.Sprintf("[web search unavailable: no endpoint configured; query was %q]", query)
}

// FormatChunks renders ranked chunks with their heading hierarchy as a
// prefix, so synthesis sees where each passage came from.
func FormatChunks(chunks []model.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if len(c.HeadingHierarchy) > 0 {
			b.WriteString("## " + strings.Join(c.HeadingHierarchy, " > ") + "\n")
		}
		b.WriteString(c.Content)
	}
	return b.String()
}

// FormatResults renders web search hits for the knowledge payload.
func FormatResults(results []search.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.Title != "" {
			b.WriteString("### " + r.Title + "\n")
		}
		b.WriteString(r.Content)
	}
	return b.String()
}

// KnowledgePayload concatenates whichever acquisition outputs are non-empty.
// Exactly one is populated per run, but the join is order-stable regardless.
func KnowledgePayload(reasoningResult, retrievedContext, webSearchContext string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{reasoningResult, retrievedContext, webSearchContext} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// lastUserContent returns the most recent user turn, the raw-query fallback
// when the router extracted no sub-query.
func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// costOf prices a model reply for per-run accumulation; zero when the
// provider reported no usage.
func costOf(out *schema.Message, modelName string) float64 {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return 0
	}
	_, _, total := model.ComputeCost(out.ResponseMeta.Usage, model.ResolvePricing(modelName))
	return total
}

// boolPtr and strPtr keep Delta construction readable.
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
