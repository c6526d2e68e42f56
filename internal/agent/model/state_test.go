package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestApplyAppendsMessages(t *testing.T) {
	s := NewOrchState()

	Apply(s, Delta{AppendMessages: []*schema.Message{schema.UserMessage("hi")}})
	Apply(s, Delta{AppendMessages: []*schema.Message{schema.AssistantMessage("hello", nil)}})

	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Content != "hi" || s.Messages[1].Content != "hello" {
		t.Fatalf("message order lost: %+v", s.Messages)
	}
}

func TestApplyMergesUserContextShallowly(t *testing.T) {
	s := NewOrchState()

	Apply(s, Delta{UserContext: &UserContext{UserID: "u-1", Grade: "7", Subject: "biology"}})
	Apply(s, Delta{UserContext: &UserContext{Chapter: "chapter-4"}})

	want := UserContext{UserID: "u-1", Grade: "7", Subject: "biology", Chapter: "chapter-4"}
	if s.UserContext != want {
		t.Fatalf("merge lost fields: %+v", s.UserContext)
	}

	// empty incoming fields leave existing values alone
	Apply(s, Delta{UserContext: &UserContext{Grade: "8"}})
	if s.UserContext.Subject != "biology" || s.UserContext.Grade != "8" {
		t.Fatalf("unexpected context after partial merge: %+v", s.UserContext)
	}
}

func TestApplyLastWriteWinsFields(t *testing.T) {
	s := NewOrchState()

	first := RoutingDecision{Intent: IntentWebSearch, Confidence: 0.4}
	second := RoutingDecision{Intent: IntentHeavyReasoning, Confidence: 0.9}
	Apply(s, Delta{Routing: &first, RequiresHeavyReasoning: boolP(false)})
	Apply(s, Delta{Routing: &second, RequiresHeavyReasoning: boolP(true)})

	if s.Routing.Intent != IntentHeavyReasoning {
		t.Fatalf("routing should be last-write-wins, got %s", s.Routing.Intent)
	}
	if !s.RequiresHeavyReasoning {
		t.Fatal("flag should be last-write-wins")
	}
}

func TestApplyNilPointersLeaveFieldsUntouched(t *testing.T) {
	s := NewOrchState()
	payload := "retrieved text"
	Apply(s, Delta{RetrievedContext: &payload})

	Apply(s, Delta{AddCostUSD: 0.001})

	if s.RetrievedContext != "retrieved text" {
		t.Fatalf("nil pointer must not clear the field, got %q", s.RetrievedContext)
	}
	if s.Routing.Intent != IntentUnrouted {
		t.Fatalf("untouched routing should stay unrouted, got %s", s.Routing.Intent)
	}
}

func TestApplyAccumulatesCost(t *testing.T) {
	s := NewOrchState()

	Apply(s, Delta{AddCostUSD: 0.0004})
	Apply(s, Delta{AddCostUSD: 0.0006})

	if got := s.TotalCostUSD; got < 0.00099 || got > 0.00101 {
		t.Fatalf("expected ~0.001 accumulated, got %v", got)
	}
}

func TestUserContextScope(t *testing.T) {
	if got := (UserContext{Chapter: "chapter-4"}).Scope(); got != "chapter-4" {
		t.Fatalf("expected chapter scope, got %q", got)
	}
	if got := (UserContext{}).Scope(); got != "global" {
		t.Fatalf("expected global scope, got %q", got)
	}
}

func TestParseIntent(t *testing.T) {
	if intent, ok := ParseIntent("web_search"); !ok || intent != IntentWebSearch {
		t.Fatalf("expected web_search, got %s (ok=%v)", intent, ok)
	}
	if intent, ok := ParseIntent("something_else"); ok || intent != IntentTextbook {
		t.Fatalf("unknown label must default to textbook, got %s (ok=%v)", intent, ok)
	}
	// the sentinel is not a valid router label
	if _, ok := ParseIntent("unrouted"); ok {
		t.Fatal("unrouted must not parse as a known intent")
	}
}

func TestIntentIsAcquisition(t *testing.T) {
	for _, i := range []Intent{IntentTextbook, IntentWebSearch, IntentHeavyReasoning} {
		if !i.IsAcquisition() {
			t.Errorf("%s should be an acquisition intent", i)
		}
	}
	for _, i := range []Intent{IntentGreeting, IntentFollowUp, IntentOffTopic, IntentUnrouted} {
		if i.IsAcquisition() {
			t.Errorf("%s should skip acquisition", i)
		}
	}
}

func boolP(v bool) *bool { return &v }
