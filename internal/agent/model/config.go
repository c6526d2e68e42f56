package model

import "time"

// ================ Config ================

// Role identifies one of the three logical model endpoints. Each role carries
// independent breaker state and its own cache TTL.
type Role string

const (
	RoleRouter    Role = "router"
	RoleReasoner  Role = "reasoner"
	RoleSynthesis Role = "synthesis"
)

// Roles lists every known model role, in breaker-set construction order.
func Roles() []Role {
	return []Role{RoleRouter, RoleReasoner, RoleSynthesis}
}

func (r Role) String() string {
	return string(r)
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0.1"`
}

type ReasonerModelConfig struct {
	Model       string  `envconfig:"REASONER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"REASONER_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"REASONER_TEMPERATURE" default:"0.2"`
}

type SynthesisModelConfig struct {
	Model       string  `envconfig:"SYNTHESIS_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SYNTHESIS_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SYNTHESIS_TEMPERATURE" default:"0.4"`
}

// GateConfig bounds how many model calls may be in flight process-wide.
type GateConfig struct {
	MaxConcurrent  int           `envconfig:"GATE_MAX_CONCURRENT" default:"5"`
	AcquireTimeout time.Duration `envconfig:"GATE_ACQUIRE_TIMEOUT" default:"30s"`
}

// BreakerConfig is applied to each role's breaker independently.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"3"`
	Window           time.Duration `envconfig:"BREAKER_WINDOW" default:"60s"`
	RecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"30s"`
}

// CacheConfig sets per-role response TTLs. Reasoning output is more expensive
// and more stable, so it keeps a longer TTL.
type CacheConfig struct {
	RouterTTL    time.Duration `envconfig:"CACHE_ROUTER_TTL" default:"1h"`
	ReasonerTTL  time.Duration `envconfig:"CACHE_REASONER_TTL" default:"2h"`
	SynthesisTTL time.Duration `envconfig:"CACHE_SYNTHESIS_TTL" default:"1h"`
}

// TTLFor returns the configured TTL for the given role.
func (c CacheConfig) TTLFor(role Role) time.Duration {
	switch role {
	case RoleReasoner:
		return c.ReasonerTTL
	case RoleSynthesis:
		return c.SynthesisTTL
	default:
		return c.RouterTTL
	}
}

type ConversationConfig struct {
	TTL    string `envconfig:"CONVERSATION_TTL" default:"720h"`
	Router struct {
		MaxTurns int `envconfig:"CONVERSATION_ROUTER_MAX_TURNS" default:"5"`
	}
}

type WebSearchConfig struct {
	Endpoint   string        `envconfig:"WEB_SEARCH_ENDPOINT"`
	Timeout    time.Duration `envconfig:"WEB_SEARCH_TIMEOUT" default:"10s"`
	MaxResults int           `envconfig:"WEB_SEARCH_MAX_RESULTS" default:"3"`
}
