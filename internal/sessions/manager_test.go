package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/models"
)

type fakeClient struct {
	mu       sync.Mutex
	endedIDs []string
}

func (f *fakeClient) Intake(ctx context.Context, req backend.IntakeRequest) (*backend.IntakeResponse, error) {
	return &backend.IntakeResponse{Response: "ok", Stage: string(models.StageCheckIn)}, nil
}

func (f *fakeClient) Crisis(ctx context.Context, req backend.IntakeRequest) error { return nil }

func (f *fakeClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, nil
}

func (f *fakeClient) EndSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedIDs = append(f.endedIDs, sessionID)
	return nil
}

func (f *fakeClient) ended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.endedIDs...)
}

func TestCreateAndGet(t *testing.T) {
	m := NewManager(&fakeClient{})

	s := m.Create("user-1")
	require.NotNil(t, s)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestGet_UnknownID(t *testing.T) {
	m := NewManager(&fakeClient{})

	_, err := m.Get("01MISSING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "01MISSING")
}

func TestCreateWithID_ReplacesExisting(t *testing.T) {
	m := NewManager(&fakeClient{})

	first := m.CreateWithID("fixed", "user-1")
	second := m.CreateWithID("fixed", "user-1")
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get("fixed")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestEnd_RemovesAndFinishesSession(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client)
	s := m.Create("user-1")

	m.End(context.Background(), s.ID())

	assert.Equal(t, 0, m.Len())
	assert.True(t, s.Stage().Terminal())
	_, err := m.Get(s.ID())
	assert.Error(t, err)
}

func TestEnd_UnknownIDIsNoop(t *testing.T) {
	m := NewManager(&fakeClient{})
	assert.NotPanics(t, func() { m.End(context.Background(), "nope") })
}

func TestList_OldestFirst(t *testing.T) {
	m := NewManager(&fakeClient{})

	a := m.Create("user-1")
	time.Sleep(2 * time.Millisecond)
	b := m.Create("user-1")
	time.Sleep(2 * time.Millisecond)
	c := m.Create("user-1")

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, a.ID(), list[0].SessionID)
	assert.Equal(t, b.ID(), list[1].SessionID)
	assert.Equal(t, c.ID(), list[2].SessionID)
	assert.Equal(t, models.StageGreeting, list[0].Stage)
}

func TestCleanup_RemovesEndedSessions(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client)

	live := m.Create("user-1")
	dead := m.Create("user-1")
	dead.EndSession(context.Background())

	removed := m.Cleanup(context.Background(), time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())

	_, err := m.Get(live.ID())
	assert.NoError(t, err)
	_, err = m.Get(dead.ID())
	assert.Error(t, err)
}

func TestCleanup_RemovesIdleSessions(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client)
	s := m.Create("user-1")

	time.Sleep(2 * time.Millisecond)
	removed := m.Cleanup(context.Background(), time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, m.Len())

	// Cleanup ends the session it evicts, so the backend hears about it.
	assert.True(t, s.Stage().Terminal())
	assert.Contains(t, client.ended(), s.ID())
}

func TestCleanup_KeepsActiveSessions(t *testing.T) {
	m := NewManager(&fakeClient{})
	m.Create("user-1")

	removed := m.Cleanup(context.Background(), time.Hour)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, m.Len())
}
