package guard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/studyloop-core/server/internal/agent/model"
	errx "github.com/studyloop-core/server/internal/core/error"
)

type fakeModel struct {
	calls   atomic.Int64
	reply   string
	err     error
	latency time.Duration
}

func (f *fakeModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.calls.Add(1)
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

type testRig struct {
	invoker  *Invoker
	gate     *Gate
	breakers *BreakerSet
	cache    *MemoryCache
	reasoner *fakeModel
}

func newTestRig(t *testing.T, reasoner *fakeModel, gateCfg model.GateConfig) *testRig {
	t.Helper()
	gate := NewGate(gateCfg)
	breakers := NewBreakerSet(model.BreakerConfig{
		FailureThreshold: 3,
		Window:           time.Minute,
		RecoveryTimeout:  30 * time.Second,
	})
	cache := NewMemoryCache()
	invoker := NewInvoker(InvokerConfig{
		Models:   map[model.Role]ModelCaller{model.RoleReasoner: reasoner},
		Names:    map[model.Role]string{model.RoleReasoner: "gemini-2.5-flash"},
		Gate:     gate,
		Breakers: breakers,
		Cache:    cache,
	})
	return &testRig{invoker: invoker, gate: gate, breakers: breakers, cache: cache, reasoner: reasoner}
}

func reasonerOpts(query string) CallOpts {
	return CallOpts{Scope: "global", Query: query, TTL: time.Hour}
}

func msgs(q string) []*schema.Message {
	return []*schema.Message{schema.UserMessage(q)}
}

func TestInvokeSuccessPopulatesCache(t *testing.T) {
	rig := newTestRig(t, &fakeModel{reply: "forty-two"}, model.GateConfig{MaxConcurrent: 2, AcquireTimeout: time.Second})

	out, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out.Content != "forty-two" {
		t.Fatalf("unexpected content %q", out.Content)
	}

	// second identical call must be a cache hit
	out2, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err != nil {
		t.Fatalf("cached invoke failed: %v", err)
	}
	if out2.Content != "forty-two" {
		t.Fatalf("unexpected cached content %q", out2.Content)
	}
	if got := rig.reasoner.calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
	if rig.gate.InFlight() != 0 {
		t.Fatalf("gate slot leaked: %d in flight", rig.gate.InFlight())
	}
}

func TestInvokeBreakerOpenNoCacheNamesRole(t *testing.T) {
	rig := newTestRig(t, &fakeModel{reply: "unused"}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: time.Second})

	for i := 0; i < 3; i++ {
		rig.breakers.RecordFailure(model.RoleReasoner, errors.New("boom"))
	}

	_, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err == nil {
		t.Fatal("expected service-unavailable error")
	}
	if !errors.Is(err, errx.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "reasoner") {
		t.Fatalf("error must name the degraded role: %v", err)
	}
	if got := rig.reasoner.calls.Load(); got != 0 {
		t.Fatalf("open breaker must not dispatch, got %d calls", got)
	}
}

func TestInvokeBreakerOpenServesCachedFallback(t *testing.T) {
	rig := newTestRig(t, &fakeModel{reply: "unused"}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: time.Second})

	key := Key(model.RoleReasoner, "global", "q")
	rig.cache.Set(context.Background(), key, "stale but fine", time.Hour)
	for i := 0; i < 3; i++ {
		rig.breakers.RecordFailure(model.RoleReasoner, errors.New("boom"))
	}

	out, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if out.Content != "stale but fine" {
		t.Fatalf("unexpected fallback content %q", out.Content)
	}
}

func TestInvokeCacheHitSkipsSaturatedGate(t *testing.T) {
	rig := newTestRig(t, &fakeModel{reply: "unused"}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: 50 * time.Millisecond})

	// saturate the gate
	if err := rig.gate.Acquire(context.Background()); err != nil {
		t.Fatalf("saturating acquire failed: %v", err)
	}
	defer rig.gate.Release()

	key := Key(model.RoleReasoner, "global", "q")
	rig.cache.Set(context.Background(), key, "cached answer", time.Hour)

	start := time.Now()
	out, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out.Content != "cached answer" {
		t.Fatalf("unexpected content %q", out.Content)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Fatalf("cache hit should not wait for the gate, took %v", elapsed)
	}
}

func TestInvokeGateTimeoutWithoutCachePropagates(t *testing.T) {
	rig := newTestRig(t, &fakeModel{reply: "unused"}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: 20 * time.Millisecond})

	if err := rig.gate.Acquire(context.Background()); err != nil {
		t.Fatalf("saturating acquire failed: %v", err)
	}
	defer rig.gate.Release()

	_, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if !errors.Is(err, errx.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestInvokeFailureMaskedByCachedFallback(t *testing.T) {
	rig := newTestRig(t, &fakeModel{err: errors.New("upstream down")}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: time.Second})

	key := Key(model.RoleReasoner, "global", "q")
	rig.cache.Set(context.Background(), key, "previous answer", time.Hour)

	out, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if err != nil {
		t.Fatalf("failure should be masked by cache, got %v", err)
	}
	if out.Content != "previous answer" {
		t.Fatalf("unexpected content %q", out.Content)
	}
	// the failure still counted toward the breaker
	if got := rig.breakers.Stats(model.RoleReasoner).FailureCount; got != 1 {
		t.Fatalf("expected failure recorded, count %d", got)
	}
	if rig.gate.InFlight() != 0 {
		t.Fatalf("gate slot leaked on failure path: %d", rig.gate.InFlight())
	}
}

func TestInvokeFailurePropagatesWithoutCache(t *testing.T) {
	upstream := errors.New("upstream down")
	rig := newTestRig(t, &fakeModel{err: upstream}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: time.Second})

	_, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if rig.gate.InFlight() != 0 {
		t.Fatalf("gate slot leaked on error path: %d", rig.gate.InFlight())
	}
}

func TestInvokeRepeatedFailuresTripBreaker(t *testing.T) {
	rig := newTestRig(t, &fakeModel{err: errors.New("upstream down")}, model.GateConfig{MaxConcurrent: 1, AcquireTimeout: time.Second})

	for i := 0; i < 3; i++ {
		if _, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q")); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := rig.invoker.Invoke(context.Background(), model.RoleReasoner, msgs("q"), reasonerOpts("q"))
	if !errors.Is(err, errx.ErrServiceUnavailable) {
		t.Fatalf("expected tripped breaker, got %v", err)
	}
	if got := rig.reasoner.calls.Load(); got != 3 {
		t.Fatalf("open breaker must stop dispatching, got %d calls", got)
	}
}
