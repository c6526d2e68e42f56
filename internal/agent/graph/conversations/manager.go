package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
)

// MessagesManager assembles conversation context for the router and the
// synthesis step, and persists turns through the conversation repository.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	routerMaxTurns   int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		routerMaxTurns:   config.Router.MaxTurns,
	}
}

// =========== Router context ===========

// ProcessRouterMessage saves the incoming user turn and returns the routing
// context: the recent turn window plus the current message to classify.
func (mm *MessagesManager) ProcessRouterMessage(ctx context.Context, conversationID string, query string) (string, error) {
	userMsg := schema.UserMessage(query)
	if err := mm.conversationRepo.AddMessage(ctx, conversationID, userMsg); err != nil {
		return "", err
	}

	history, err := mm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return "", err
	}

	var fullContext strings.Builder
	fullContext.WriteString(mm.buildRouterContext(history.Messages))
	fullContext.WriteString("\n<current_message_to_classify>\n")
	fullContext.WriteString("UserMessage(" + query + ")\n")
	fullContext.WriteString("</current_message_to_classify>")

	return fullContext.String(), nil
}

func (mm *MessagesManager) buildRouterContext(messages []*schema.Message) string {
	recentMessages := trimTail(messages, mm.routerMaxTurns)

	var contextBuilder strings.Builder
	contextBuilder.WriteString("<conversation_context>\n")

	for _, msg := range recentMessages {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			contextBuilder.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			contextBuilder.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}

	contextBuilder.WriteString("</conversation_context>")
	return contextBuilder.String()
}

// =========== Synthesis context ===========

// BuildSynthesisContext returns the persona system prompt followed by the
// full conversation history.
func (mm *MessagesManager) BuildSynthesisContext(ctx context.Context, conversationID string, systemPrompt string) ([]*schema.Message, error) {
	history, err := mm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}
	messages = append(messages, history.Messages...)

	return messages, nil
}

// SaveResponse persists the final assistant turn.
func (mm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return mm.conversationRepo.AddMessage(ctx, conversationID, assistantMsg)
}

// ====================== Helper function ======================

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
