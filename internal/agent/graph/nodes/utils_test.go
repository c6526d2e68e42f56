package nodes

import (
	"strings"
	"testing"

	"github.com/studyloop-core/server/internal/agent/model"
	"github.com/studyloop-core/server/internal/agent/search"
)

func TestFormatChunksWithHeadings(t *testing.T) {
	got := FormatChunks([]model.Chunk{
		{Content: "Chlorophyll absorbs light.", HeadingHierarchy: []string{"Biology", "Photosynthesis"}},
		{Content: "The Calvin cycle fixes carbon."},
	})

	want := "## Biology > Photosynthesis\nChlorophyll absorbs light.\n\nThe Calvin cycle fixes carbon."
	if got != want {
		t.Fatalf("unexpected rendering:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormatChunksEmpty(t *testing.T) {
	if got := FormatChunks(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults([]search.Result{
		{Title: "Mars rover update", Content: "Perseverance found new samples."},
		{Content: "untitled result"},
	})

	want := "### Mars rover update\nPerseverance found new samples.\n\nuntitled result"
	if got != want {
		t.Fatalf("unexpected rendering:\n%q\nwant:\n%q", got, want)
	}
}

func TestKnowledgePayloadJoinsNonEmpty(t *testing.T) {
	if got := KnowledgePayload("", "textbook text", ""); got != "textbook text" {
		t.Fatalf("unexpected payload %q", got)
	}
	if got := KnowledgePayload("reasoned", "", "searched"); got != "reasoned\n\nsearched" {
		t.Fatalf("unexpected payload %q", got)
	}
	if got := KnowledgePayload("", "  ", ""); got != "" {
		t.Fatalf("whitespace-only parts must be dropped, got %q", got)
	}
}

func TestWebSearchPlaceholderKeepsQuery(t *testing.T) {
	got := WebSearchPlaceholder("latest eclipse dates")
	if !strings.Contains(got, `"latest eclipse dates"`) {
		t.Fatalf("placeholder must carry the query, got %q", got)
	}
	if !strings.HasPrefix(got, "[web search unavailable") {
		t.Fatalf("placeholder must be labeled, got %q", got)
	}
}

func TestSentinelsAreStable(t *testing.T) {
	// retries against a failing collaborator must produce identical state
	if SentinelNoContent != "[no relevant textbook content found]" {
		t.Fatalf("unexpected sentinel %q", SentinelNoContent)
	}
	if SentinelRetrievalDegraded != "[textbook retrieval temporarily degraded]" {
		t.Fatalf("unexpected sentinel %q", SentinelRetrievalDegraded)
	}
	if SentinelSearchFailed != "[web search failed]" {
		t.Fatalf("unexpected sentinel %q", SentinelSearchFailed)
	}
}
