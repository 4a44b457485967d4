package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayer records play order and can fail or stall per item.
type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	delays  map[string]time.Duration
	failOn  map[string]bool
	started chan string
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		delays:  make(map[string]time.Duration),
		failOn:  make(map[string]bool),
		started: make(chan string, 64),
	}
}

func (p *fakePlayer) Play(ctx context.Context, text string) error {
	p.started <- text

	p.mu.Lock()
	d := p.delays[text]
	fail := p.failOn[text]
	p.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("playback failed")
	}

	p.mu.Lock()
	p.played = append(p.played, text)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) playedItems() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueue_PlaysInOrder(t *testing.T) {
	player := newFakePlayer()
	// A is slow; B enqueued while A plays must still finish after A.
	player.delays["A"] = 50 * time.Millisecond

	q := NewQueue(player, nil, nil)
	defer q.Close()

	q.Enqueue("A")
	q.Enqueue("B")
	q.Enqueue("C")

	waitFor(t, func() bool { return len(player.playedItems()) == 3 })
	assert.Equal(t, []string{"A", "B", "C"}, player.playedItems())
}

func TestQueue_FailedItemDoesNotBlockChain(t *testing.T) {
	player := newFakePlayer()
	player.failOn["B"] = true

	q := NewQueue(player, nil, nil)
	defer q.Close()

	q.Enqueue("A")
	q.Enqueue("B")
	q.Enqueue("C")

	waitFor(t, func() bool {
		items := player.playedItems()
		return len(items) == 2
	})
	assert.Equal(t, []string{"A", "C"}, player.playedItems())
}

func TestQueue_StatusLifecycle(t *testing.T) {
	player := newFakePlayer()

	var mu sync.Mutex
	var statuses []string
	statusFn := func(s string) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}

	q := NewQueue(player, statusFn, nil)
	defer q.Close()

	q.SetPriorStatus("Ready when you are.")
	q.Enqueue("hello")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{SpeakingStatus, "Ready when you are."}, statuses)
}

func TestQueue_FailureSetsFailedStatus(t *testing.T) {
	player := newFakePlayer()
	player.failOn["bad"] = true

	var mu sync.Mutex
	var last string
	q := NewQueue(player, func(s string) {
		mu.Lock()
		last = s
		mu.Unlock()
	}, nil)
	defer q.Close()

	q.Enqueue("bad")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == PlaybackFailedStatus
	})
}

func TestQueue_EnqueueEmptyIsNoop(t *testing.T) {
	player := newFakePlayer()
	q := NewQueue(player, nil, nil)
	defer q.Close()

	q.Enqueue("")
	q.Enqueue("only")

	waitFor(t, func() bool { return len(player.playedItems()) == 1 })
	assert.Equal(t, []string{"only"}, player.playedItems())
}

func TestQueue_CloseCancelsInFlight(t *testing.T) {
	player := newFakePlayer()
	player.delays["slow"] = 10 * time.Second

	q := NewQueue(player, nil, nil)
	q.Enqueue("slow")

	// Wait until playback started, then Close must return promptly.
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Empty(t, player.playedItems())
}

func TestQueue_EnqueueAfterCloseIsNoop(t *testing.T) {
	player := newFakePlayer()
	q := NewQueue(player, nil, nil)
	q.Close()

	require.NotPanics(t, func() { q.Enqueue("late") })
}

type noopPlayer struct{}

func (noopPlayer) Play(ctx context.Context, text string) error { return nil }

func TestQueue_ConcurrentEnqueueAndCloseDoesNotPanic(t *testing.T) {
	q := NewQueue(noopPlayer{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				require.NotPanics(t, func() { q.Enqueue("item") })
			}
		}()
	}
	q.Close()
	wg.Wait()
}

func TestCaptureErrorMessage(t *testing.T) {
	tests := []struct {
		code CaptureError
		want string
	}{
		{CaptureNotAllowed, "Microphone access was denied. Please allow microphone access and try again."},
		{CaptureNoSpeech, "I didn't catch that. Tap the microphone and try again."},
		{CaptureAudioFailure, "No microphone was found. Check your audio settings and try again."},
		{CaptureOther, "Something went wrong with voice capture. Please try again."},
		{CaptureError("bogus"), "Something went wrong with voice capture. Please try again."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CaptureErrorMessage(tt.code))
	}
}
