package guard

import (
	"sync"
	"time"

	"github.com/studyloop-core/server/internal/agent/model"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// BreakerState is the lifecycle state of one role's circuit breaker.
type BreakerState int8

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerStats is a read-only snapshot of one breaker.
type BreakerStats struct {
	Role         model.Role
	State        string
	FailureCount int
	WindowStart  time.Time
	OpenedAt     time.Time
}

// breaker tracks rolling-window failures for a single model role. Failures
// within the window trip it open; after the recovery timeout one trial call
// is admitted, whose outcome closes or reopens the breaker.
type breaker struct {
	mu  sync.Mutex
	cfg model.BreakerConfig
	now func() time.Time

	state        BreakerState
	failureCount int
	windowStart  time.Time
	openedAt     time.Time
}

// isOpen reports whether calls should be refused. The open→half-open
// transition happens here: the first check after the recovery timeout admits
// exactly one trial call, and further checks refuse until the trial's
// outcome is recorded.
func (b *breaker) isOpen(role model.Role) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false
	case StateHalfOpen:
		// trial already in flight
		return true
	default:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			logx.Info().
				Str("role", role.String()).
				Msg("circuit breaker half-open, admitting trial call")
			return false
		}
		return true
	}
}

func (b *breaker) recordSuccess(role model.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failureCount = 0
		b.windowStart = time.Time{}
		logx.Info().
			Str("role", role.String()).
			Msg("circuit breaker closed after successful trial")
	}
}

func (b *breaker) recordFailure(role model.Role, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case StateHalfOpen:
		// failed trial reopens and restarts the recovery timer
		b.state = StateOpen
		b.openedAt = now
		logx.Warn().
			Str("role", role.String()).
			Err(err).
			Msg("circuit breaker reopened after failed trial")
	case StateClosed:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.cfg.Window {
			b.windowStart = now
			b.failureCount = 1
		} else {
			b.failureCount++
		}
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
			logx.Warn().
				Str("role", role.String()).
				Int("failure_count", b.failureCount).
				Err(err).
				Msg("circuit breaker opened")
		}
	case StateOpen:
		// call raced the transition; the timer already runs
	}
}

func (b *breaker) stats(role model.Role) BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Role:         role,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		WindowStart:  b.windowStart,
		OpenedAt:     b.openedAt,
	}
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.windowStart = time.Time{}
	b.openedAt = time.Time{}
}

// BreakerSet holds one independent breaker per model role so a misbehaving
// upstream model never blocks unrelated roles. It is injected into the
// invoker at construction; there is no package-level singleton.
type BreakerSet struct {
	breakers map[model.Role]*breaker
}

func NewBreakerSet(cfg model.BreakerConfig, roles ...model.Role) *BreakerSet {
	if len(roles) == 0 {
		roles = model.Roles()
	}
	s := &BreakerSet{breakers: make(map[model.Role]*breaker, len(roles))}
	for _, r := range roles {
		s.breakers[r] = &breaker{cfg: cfg, now: time.Now}
	}
	return s
}

func (s *BreakerSet) get(role model.Role) *breaker {
	return s.breakers[role]
}

// IsOpen reports whether calls to the role should currently be refused.
func (s *BreakerSet) IsOpen(role model.Role) bool {
	b := s.get(role)
	if b == nil {
		return false
	}
	return b.isOpen(role)
}

func (s *BreakerSet) RecordSuccess(role model.Role) {
	if b := s.get(role); b != nil {
		b.recordSuccess(role)
	}
}

func (s *BreakerSet) RecordFailure(role model.Role, err error) {
	if b := s.get(role); b != nil {
		b.recordFailure(role, err)
	}
}

func (s *BreakerSet) Stats(role model.Role) BreakerStats {
	if b := s.get(role); b != nil {
		return b.stats(role)
	}
	return BreakerStats{Role: role, State: StateClosed.String()}
}

func (s *BreakerSet) Reset(role model.Role) {
	if b := s.get(role); b != nil {
		b.reset()
	}
}

// setClock overrides the time source for every breaker. Test hook.
func (s *BreakerSet) setClock(now func() time.Time) {
	for _, b := range s.breakers {
		b.now = now
	}
}
