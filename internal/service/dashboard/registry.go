package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/davidleathers/barangay-insights/internal/metrics"
)

// Registry keeps one Session per dashboard id.
type Registry struct {
	cfg     SessionConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(cfg SessionConfig, m *metrics.Registry) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		now:      now,
		logger:   logger.With("component", "sessions"),
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use. The second
// result reports whether it was created. After Close it returns nil.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	if s, ok := r.sessions[id]; ok {
		s.touch()
		return s, false
	}
	s := NewSession(id, r.cfg)
	r.sessions[id] = s
	r.metrics.SetActiveSessions(len(r.sessions))
	r.logger.Debug("session opened", "session_id", id)
	return s, true
}

// Remove tears the session down. It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	r.mu.Unlock()

	if ok {
		s.Close()
		r.logger.Debug("session closed", "session_id", id)
	}
	return ok
}

// Sweep closes sessions idle for longer than idle and returns how many it
// closed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		r.logger.Info("idle sessions closed", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every session. Get returns nil afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
