package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"solana-entry-gate/internal/domain"
)

// Session is the runtime state of one monitored position. It lives only for
// the supervision window and is never persisted.
type Session struct {
	ID       string
	Mint     string
	BoughtAt time.Time

	position domain.Position // snapshot taken at Start

	mu          sync.Mutex
	checkpoints []domain.CheckpointResult

	aborted       atomic.Bool
	exitTriggered atomic.Bool
	abortOnce     sync.Once
	abort         chan struct{}
	done          chan struct{}
}

func newSession(id string, p domain.Position, now time.Time) *Session {
	return &Session{
		ID:       id,
		Mint:     p.Mint,
		BoughtAt: now,
		position: p,
		abort:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Abort stops the session at its next wait. Safe to call more than once.
func (s *Session) Abort() {
	s.abortOnce.Do(func() {
		s.aborted.Store(true)
		close(s.abort)
	})
}

// Aborted reports whether Abort was called.
func (s *Session) Aborted() bool { return s.aborted.Load() }

// ExitTriggered reports whether the emergency callback fired.
func (s *Session) ExitTriggered() bool { return s.exitTriggered.Load() }

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Checkpoints returns the recorded results in order.
func (s *Session) Checkpoints() []domain.CheckpointResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CheckpointResult, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

func (s *Session) record(r domain.CheckpointResult) {
	s.mu.Lock()
	s.checkpoints = append(s.checkpoints, r)
	s.mu.Unlock()
}
