package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/studyloop-core/server/internal/agent/model"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxQueryLen   = 4 * 1024  // 4KB extracted sub-query
	maxErrSnippet = 200       // limit error snippet size
)

// routerReply mirrors the single JSON object the router model is instructed
// to produce.
type routerReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Query      string  `json:"query"`
	Reason     string  `json:"reason"`
}

// ParseRoutingDecision converts the router model's reply into a routing
// decision. It never fails: anything unparseable falls back to the textbook
// default so the workflow always proceeds.
func ParseRoutingDecision(content string) model.RoutingDecision {
	now := time.Now().UTC()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "router_parser").
			Int("orig_len", len(content)).
			Msg("router reply truncated due to size limit")
		content = content[:maxContentLen]
	}

	raw := extractJSONObject(content)
	if raw == "" {
		logx.Warn().
			Str("component", "router_parser").
			Str("snippet", safeSnippet(content)).
			Msg("no JSON object in router reply, defaulting to textbook")
		return fallbackDecision("no JSON object in router reply", now)
	}

	var reply routerReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		logx.Warn().
			Str("component", "router_parser").
			Err(err).
			Str("snippet", safeSnippet(raw)).
			Msg("router reply not valid JSON, defaulting to textbook")
		return fallbackDecision(fmt.Sprintf("invalid router JSON: %v", err), now)
	}

	intent, known := model.ParseIntent(strings.TrimSpace(reply.Intent))
	reason := strings.TrimSpace(reply.Reason)
	if !known {
		reason = fmt.Sprintf("unknown intent %q, defaulted to textbook", safeSnippet(reply.Intent))
		logx.Debug().
			Str("component", "router_parser").
			Str("raw_intent", safeSnippet(reply.Intent)).
			Msg("unknown intent label, defaulting to textbook")
	}

	query := strings.TrimSpace(reply.Query)
	if len(query) > maxQueryLen {
		query = query[:maxQueryLen]
	}

	return model.RoutingDecision{
		Intent:     intent,
		Confidence: clampConfidence(reply.Confidence),
		Query:      query,
		Reason:     reason,
		Timestamp:  now,
	}
}

func fallbackDecision(reason string, now time.Time) model.RoutingDecision {
	return model.RoutingDecision{
		Intent:     model.IntentTextbook,
		Confidence: 0,
		Reason:     reason,
		Timestamp:  now,
	}
}

// extractJSONObject strips markdown code fences and returns the first
// top-level {...} span, or "" when none exists.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
