package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/studyloop-core/server/internal/agent/guard"
	"github.com/studyloop-core/server/internal/agent/model"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey          string
	BaseURL         string
	RouterConfig    *model.RouterModelConfig
	ReasonerConfig  *model.ReasonerModelConfig
	SynthesisConfig *model.SynthesisModelConfig
}

// ChatModels holds one chat model per role, keyed for the protected invoker.
type ChatModels struct {
	Callers map[model.Role]guard.ModelCaller
	Names   map[model.Role]string
}

// NewChatModels creates the three role chat models on a shared Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	router, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterConfig.Model,
		Temperature: &config.RouterConfig.Temperature,
		MaxTokens:   &config.RouterConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	// The reasoner gets a thinking budget; it is the only role expected to
	// work multi-step problems.
	reasoner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ReasonerConfig.Model,
		Temperature: &config.ReasonerConfig.Temperature,
		MaxTokens:   &config.ReasonerConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(4000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating reasoner model")
		return nil, fmt.Errorf("error creating reasoner model: %w", err)
	}

	synthesis, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.SynthesisConfig.Model,
		Temperature: &config.SynthesisConfig.Temperature,
		MaxTokens:   &config.SynthesisConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating synthesis model")
		return nil, fmt.Errorf("error creating synthesis model: %w", err)
	}

	return &ChatModels{
		Callers: map[model.Role]guard.ModelCaller{
			model.RoleRouter:    router,
			model.RoleReasoner:  reasoner,
			model.RoleSynthesis: synthesis,
		},
		Names: map[model.Role]string{
			model.RoleRouter:    config.RouterConfig.Model,
			model.RoleReasoner:  config.ReasonerConfig.Model,
			model.RoleSynthesis: config.SynthesisConfig.Model,
		},
	}, nil
}
