package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
)

//go:embed template/reasoning_prompt.txt
var reasoningSystemPrompt string

//go:embed template/persona_greeting.txt
var greetingPersonaPrompt string

//go:embed template/persona_offtopic.txt
var offTopicPersonaPrompt string

//go:embed template/persona_knowledge.txt
var knowledgePersonaPrompt string

// ReasoningSystem returns the static step-by-step instruction for the
// reasoner role.
func ReasoningSystem() string {
	return reasoningSystemPrompt
}

// personaFor maps the routed intent to one of the three synthesis persona
// templates. Everything that is not a greeting or off-topic gets the
// knowledge-grounded persona, including follow-ups (which lean on the
// conversation history instead of a fresh payload).
func personaFor(intent model.Intent) string {
	switch intent {
	case model.IntentGreeting:
		return greetingPersonaPrompt
	case model.IntentOffTopic:
		return offTopicPersonaPrompt
	default:
		return knowledgePersonaPrompt
	}
}

// RenderSynthesisSystem renders the persona system prompt selected by the
// routing intent, with the knowledge payload spliced in.
func RenderSynthesisSystem(ctx context.Context, intent model.Intent, knowledgePayload string, uc model.UserContext) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(personaFor(intent)),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Grade":            orUnknown(uc.Grade),
		"Subject":          orUnknown(uc.Subject),
		"KnowledgePayload": knowledgePayload,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("synthesis prompt render: empty result")
	}
	return msgs[0].Content, nil
}
