package app

import (
	"slices"
	"sync"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/gateway"
	"github.com/AichiroFunakoshi/bridge/internal/session"
)

// SessionInfo describes one connected client.
type SessionInfo struct {
	// Client is the persistent client ID.
	Client string `json:"client"`

	// ConnectedAt is when the websocket was accepted.
	ConnectedAt time.Time `json:"connected_at"`

	// Status is the coordinator's current status.
	Status session.Status `json:"status"`
}

// Sessions tracks the coordinators of all connected clients.
// All exported methods are safe for concurrent use.
type Sessions struct {
	now func() time.Time

	mu   sync.Mutex
	next uint64
	live map[uint64]trackedSession
}

type trackedSession struct {
	client string
	coord  *session.Coordinator
	since  time.Time
}

var _ gateway.Tracker = (*Sessions)(nil)

// NewSessions returns an empty tracker.
func NewSessions() *Sessions {
	return &Sessions{now: time.Now, live: make(map[uint64]trackedSession)}
}

// Track implements [gateway.Tracker].
func (s *Sessions) Track(clientID string, c *session.Coordinator) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.live[id] = trackedSession{client: clientID, coord: c, since: s.now()}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.live, id)
		})
	}
}

// Len returns the number of connected clients.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Info returns the status of every connected client, oldest first.
// Coordinators that are not running are skipped.
func (s *Sessions) Info() []SessionInfo {
	s.mu.Lock()
	tracked := make([]trackedSession, 0, len(s.live))
	for _, t := range s.live {
		tracked = append(tracked, t)
	}
	s.mu.Unlock()

	slices.SortFunc(tracked, func(a, b trackedSession) int { return a.since.Compare(b.since) })

	out := make([]SessionInfo, 0, len(tracked))
	for _, t := range tracked {
		st, err := t.coord.Status()
		if err != nil {
			continue
		}
		out = append(out, SessionInfo{Client: t.client, ConnectedAt: t.since, Status: st})
	}
	return out
}
