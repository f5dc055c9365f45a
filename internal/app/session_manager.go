package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// defaultSweepInterval bounds how often idle sessions are looked for.
const defaultSweepInterval = time.Minute

// SweepFunc evicts sessions idle for longer than maxIdle and returns how many
// were evicted. [api.Server.Sweep] satisfies it.
type SweepFunc func(ctx context.Context, maxIdle time.Duration) int

// SessionInfo holds metadata about the running eviction loop.
type SessionInfo struct {
	// IdleTTL is the idle time after which a session is evicted.
	IdleTTL time.Duration

	// Interval is the sweep period.
	Interval time.Duration

	// StartedAt is when the loop was started.
	StartedAt time.Time

	// Evicted counts sessions evicted since start.
	Evicted int
}

// SessionManager periodically evicts idle checklist sessions.
// Only one loop can run at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
type SessionManager struct {
	sweep    SweepFunc
	idleTTL  time.Duration
	interval time.Duration

	mu     sync.Mutex
	active bool
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionManager returns a SessionManager that calls sweep every interval
// with idleTTL. A non-positive interval selects min(idleTTL/2, 1m).
func NewSessionManager(sweep SweepFunc, idleTTL, interval time.Duration) *SessionManager {
	if interval <= 0 {
		interval = min(idleTTL/2, defaultSweepInterval)
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SessionManager{
		sweep:    sweep,
		idleTTL:  idleTTL,
		interval: interval,
	}
}

// Start launches the eviction loop. It is a no-op when idleTTL is zero and
// returns an error if the loop is already running.
func (sm *SessionManager) Start(ctx context.Context) error {
	if sm.idleTTL <= 0 {
		return nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return errors.New("session manager: already running")
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sm.active = true
	sm.cancel = cancel
	sm.done = make(chan struct{})
	sm.info = SessionInfo{
		IdleTTL:   sm.idleTTL,
		Interval:  sm.interval,
		StartedAt: time.Now().UTC(),
	}
	go sm.loop(loopCtx, sm.done)

	slog.Info("session eviction started", "idle_ttl", sm.idleTTL, "interval", sm.interval)
	return nil
}

func (sm *SessionManager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := sm.sweep(ctx, sm.idleTTL)
			if n > 0 {
				sm.mu.Lock()
				sm.info.Evicted += n
				sm.mu.Unlock()
			}
		}
	}
}

// Stop halts the eviction loop and waits for it to exit or for ctx to expire.
// Stopping an inactive manager is a no-op.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	if !sm.active {
		sm.mu.Unlock()
		return nil
	}
	sm.active = false
	cancel, done := sm.cancel, sm.done
	sm.mu.Unlock()

	cancel()
	select {
	case <-done:
		slog.Info("session eviction stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether the eviction loop is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the eviction loop. The result is only
// meaningful after Start.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
