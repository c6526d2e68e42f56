package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/studyloop-core/server/internal/agent/model"
)

func newTestBreakers(t *testing.T) (*BreakerSet, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewBreakerSet(model.BreakerConfig{
		FailureThreshold: 3,
		Window:           60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
	})
	s.setClock(func() time.Time { return now })
	return s, &now
}

var errUpstream = errors.New("upstream model failed")

func TestBreakerOpensAtThresholdWithinWindow(t *testing.T) {
	s, _ := newTestBreakers(t)

	s.RecordFailure(model.RoleRouter, errUpstream)
	s.RecordFailure(model.RoleRouter, errUpstream)
	if s.IsOpen(model.RoleRouter) {
		t.Fatal("breaker open below threshold")
	}

	s.RecordFailure(model.RoleRouter, errUpstream)
	if !s.IsOpen(model.RoleRouter) {
		t.Fatal("breaker should open at threshold")
	}
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	s, now := newTestBreakers(t)

	s.RecordFailure(model.RoleRouter, errUpstream)
	s.RecordFailure(model.RoleRouter, errUpstream)

	// third failure lands outside the rolling window
	*now = now.Add(61 * time.Second)
	s.RecordFailure(model.RoleRouter, errUpstream)

	if s.IsOpen(model.RoleRouter) {
		t.Fatal("stale failures must not count toward the threshold")
	}
	if got := s.Stats(model.RoleRouter).FailureCount; got != 1 {
		t.Fatalf("expected restarted window with count 1, got %d", got)
	}
}

func TestBreakerRecoveryAdmitsSingleTrial(t *testing.T) {
	s, now := newTestBreakers(t)

	for i := 0; i < 3; i++ {
		s.RecordFailure(model.RoleReasoner, errUpstream)
	}
	if !s.IsOpen(model.RoleReasoner) {
		t.Fatal("breaker should be open")
	}

	// still inside recovery timeout
	*now = now.Add(29 * time.Second)
	if !s.IsOpen(model.RoleReasoner) {
		t.Fatal("breaker should stay open before recovery timeout")
	}

	// recovery elapsed: exactly one trial admitted
	*now = now.Add(2 * time.Second)
	if s.IsOpen(model.RoleReasoner) {
		t.Fatal("breaker should admit a trial call after recovery timeout")
	}
	if !s.IsOpen(model.RoleReasoner) {
		t.Fatal("only one trial call may be admitted while half-open")
	}

	s.RecordSuccess(model.RoleReasoner)
	if s.IsOpen(model.RoleReasoner) {
		t.Fatal("successful trial should close the breaker")
	}
	if got := s.Stats(model.RoleReasoner).FailureCount; got != 0 {
		t.Fatalf("closing should clear the failure count, got %d", got)
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	s, now := newTestBreakers(t)

	for i := 0; i < 3; i++ {
		s.RecordFailure(model.RoleSynthesis, errUpstream)
	}
	*now = now.Add(31 * time.Second)
	if s.IsOpen(model.RoleSynthesis) {
		t.Fatal("trial should be admitted")
	}

	s.RecordFailure(model.RoleSynthesis, errUpstream)
	if !s.IsOpen(model.RoleSynthesis) {
		t.Fatal("failed trial should reopen the breaker")
	}

	// the recovery timer restarted with the failed trial
	*now = now.Add(29 * time.Second)
	if !s.IsOpen(model.RoleSynthesis) {
		t.Fatal("reopened breaker should hold for a fresh recovery timeout")
	}
	*now = now.Add(2 * time.Second)
	if s.IsOpen(model.RoleSynthesis) {
		t.Fatal("next trial should be admitted after the fresh timeout")
	}
}

func TestBreakerRolesAreIndependent(t *testing.T) {
	s, _ := newTestBreakers(t)

	for i := 0; i < 3; i++ {
		s.RecordFailure(model.RoleReasoner, errUpstream)
	}

	if !s.IsOpen(model.RoleReasoner) {
		t.Fatal("reasoner breaker should be open")
	}
	if s.IsOpen(model.RoleRouter) || s.IsOpen(model.RoleSynthesis) {
		t.Fatal("unrelated role breakers must stay closed")
	}
}

func TestBreakerReset(t *testing.T) {
	s, _ := newTestBreakers(t)

	for i := 0; i < 3; i++ {
		s.RecordFailure(model.RoleRouter, errUpstream)
	}
	s.Reset(model.RoleRouter)

	if s.IsOpen(model.RoleRouter) {
		t.Fatal("reset should close the breaker")
	}
	stats := s.Stats(model.RoleRouter)
	if stats.FailureCount != 0 || stats.State != "closed" {
		t.Fatalf("unexpected stats after reset: %+v", stats)
	}
}
