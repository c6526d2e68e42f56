package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/studyloop-core/server/internal/agent/graph"
	"github.com/studyloop-core/server/internal/agent/guard"
	"github.com/studyloop-core/server/internal/agent/model"
	"github.com/studyloop-core/server/internal/agent/repo"
	"github.com/studyloop-core/server/internal/core"
	logx "github.com/studyloop-core/server/pkg/logger"
	pkgredis "github.com/studyloop-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the tutor workflow,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Workflow configs
	Router    model.RouterModelConfig
	Reasoner  model.ReasonerModelConfig
	Synthesis model.SynthesisModelConfig

	Gate         model.GateConfig
	Breaker      model.BreakerConfig
	Cache        model.CacheConfig
	Conversation model.ConversationConfig
	WebSearch    model.WebSearchConfig
}

func main() {
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	logx.Info().Msg("Connected to Redis")

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	runner, err := graph.BuildTutorGraph(ctx, graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		RouterModel:      envCfg.Router,
		ReasonerModel:    envCfg.Reasoner,
		SynthesisModel:   envCfg.Synthesis,
		Gate:             envCfg.Gate,
		Breaker:          envCfg.Breaker,
		Cache:            envCfg.Cache,
		Conversation:     envCfg.Conversation,
		WebSearch:        envCfg.WebSearch,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
		Searcher:         demoSearcher(),
		ResponseCache:    guard.NewRedisCache(rdb),
	})
	if err != nil {
		log.Fatalf("Failed to build tutor graph: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Greeting",
			query:       "hi there!",
		},
		{
			description: "Curriculum question",
			query:       "how does photosynthesis work?",
		},
		{
			description: "Multi-step problem",
			query:       "a train travels 120 km in 90 minutes, then 80 km in 40 minutes; what is its average speed?",
		},
	}

	conversationID := "demo-conversation-1"

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)
		fmt.Println("---")

		err := runner.Stream(ctx, model.QueryInput{
			ConversationID: conversationID,
			UserID:         "demo-user",
			Grade:          "8",
			Subject:        "biology",
			Chapter:        "chapter-4",
			Query:          test.query,
		}, os.Stdout)
		if err != nil {
			log.Fatalf("Failed to run workflow for test %d: %v", i+1, err)
		}
	}

	logx.Info().Msg("All workflow runs completed")
}

// demoSearcher is a tiny in-memory stand-in for the similarity search
// collaborator, enough to exercise the textbook path end to end.
func demoSearcher() model.ChunkSearcher {
	corpus := []model.Chunk{
		{
			Content:          "Photosynthesis converts light energy into chemical energy stored in glucose. It takes place in the chloroplasts of plant cells.",
			HeadingHierarchy: []string{"Biology", "Plant Processes", "Photosynthesis"},
			Similarity:       0.91,
		},
		{
			Content:          "The overall equation is 6CO2 + 6H2O + light -> C6H12O6 + 6O2. Chlorophyll absorbs mainly red and blue light.",
			HeadingHierarchy: []string{"Biology", "Plant Processes", "Photosynthesis", "Equation"},
			Similarity:       0.87,
		},
		{
			Content:          "Cellular respiration releases the energy stored in glucose and occurs in the mitochondria of both plant and animal cells.",
			HeadingHierarchy: []string{"Biology", "Cell Energy", "Respiration"},
			Similarity:       0.74,
		},
	}
	return model.SearcherFunc(func(_ context.Context, query string, topK int, _ model.ChunkFilter) ([]model.Chunk, error) {
		var hits []model.Chunk
		for _, c := range corpus {
			for _, w := range strings.Fields(strings.ToLower(query)) {
				if strings.Contains(strings.ToLower(c.Content), w) {
					hits = append(hits, c)
					break
				}
			}
			if len(hits) >= topK {
				break
			}
		}
		return hits, nil
	})
}
