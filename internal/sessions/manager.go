package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/store"
)

// Manager is the registry of live intake sessions. The API and MCP servers
// share one manager; each session is independently locked so concurrent
// requests against different sessions never contend.
type Manager struct {
	mu      sync.Mutex
	client  backend.Client
	opts    []orchestrator.Option
	entries map[string]*entry
}

type entry struct {
	session  *orchestrator.Session
	created  time.Time
	lastSeen time.Time
}

// NewManager creates a manager whose sessions all talk to the given dialogue
// backend. The options are applied to every session it creates.
func NewManager(client backend.Client, opts ...orchestrator.Option) *Manager {
	return &Manager{
		client:  client,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// silentSpeaker satisfies orchestrator.Speaker for transports where audio
// playback happens on the caller's side. Snapshots carry the transcript.
type silentSpeaker struct{}

func (silentSpeaker) Enqueue(text string)          {}
func (silentSpeaker) SetPriorStatus(status string) {}

// Create starts a new session for the user and returns it. The id is
// generated; callers that need a stable id use CreateWithID.
func (m *Manager) Create(userID string) *orchestrator.Session {
	return m.CreateWithID(store.NewULID(), userID)
}

// CreateWithID starts a new session under the caller's id, replacing any
// existing session with that id.
func (m *Manager) CreateWithID(id, userID string) *orchestrator.Session {
	s := orchestrator.NewSession(id, userID, m.client, silentSpeaker{}, m.opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.entries[id] = &entry{session: s, created: now, lastSeen: now}
	return s
}

// Get returns the session with the given id, if it exists. Access refreshes
// the idle clock used by Cleanup.
func (m *Manager) Get(id string) (*orchestrator.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	e.lastSeen = time.Now()
	return e.session, nil
}

// End finishes the session and removes it from the registry. Ending an
// unknown id is not an error.
func (m *Manager) End(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		e.session.EndSession(ctx)
	}
}

// Summary is one row in a session listing.
type Summary struct {
	SessionID string       `json:"session_id"`
	Stage     models.Stage `json:"stage"`
	Created   time.Time    `json:"created_at"`
	LastSeen  time.Time    `json:"last_seen_at"`
}

// List returns summaries of all registered sessions, oldest first.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.entries))
	for id, e := range m.entries {
		out = append(out, Summary{
			SessionID: id,
			Stage:     e.session.Stage(),
			Created:   e.created,
			LastSeen:  e.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Cleanup ends and removes sessions that have already ended or have been idle
// longer than maxIdle. It returns the number removed.
func (m *Manager) Cleanup(ctx context.Context, maxIdle time.Duration) int {
	m.mu.Lock()
	var stale []*entry
	cutoff := time.Now().Add(-maxIdle)
	for id, e := range m.entries {
		if e.session.Stage().Terminal() || e.lastSeen.Before(cutoff) {
			stale = append(stale, e)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.session.EndSession(ctx)
	}
	return len(stale)
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
