package orchestrator

import (
	"sync"

	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/store"
)

// Timeline is the append-only activity log of what the internal agents are
// doing. It is purely observational: nothing reads it back into decisions.
// Entries are never removed except by a full reset; renderers show only the
// most recent few.
type Timeline struct {
	mu      sync.Mutex
	entries []models.AgentActivity
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append adds an entry and returns its id. The id is the handle for later
// status updates, so two entries from the same agent never get confused.
func (t *Timeline) Append(agentName, label string, status models.ActivityStatus) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := store.NewULID()
	t.entries = append(t.entries, models.AgentActivity{
		ID:        id,
		AgentName: agentName,
		Label:     label,
		Status:    status,
	})
	return id
}

// MarkDone sets the entry with the given id to done, replacing its label.
// Unknown ids are ignored.
func (t *Timeline) MarkDone(id, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ID == id {
			t.entries[i].Status = models.ActivityDone
			t.entries[i].Label = label
			return
		}
	}
}

// Recent returns the most recent n entries, oldest first.
func (t *Timeline) Recent(n int) []models.AgentActivity {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := len(t.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.AgentActivity, len(t.entries)-start)
	copy(out, t.entries[start:])
	return out
}

// Len returns the total number of retained entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset clears the log.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
