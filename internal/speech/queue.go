package speech

import (
	"context"
	"log/slog"
	"sync"
)

// Player turns a piece of text into audible (or otherwise rendered) speech and
// blocks until playback finishes. Implementations fetch audio from the TTS
// backend; failures are reported, not retried.
type Player interface {
	Play(ctx context.Context, text string) error
}

// StatusFunc receives user-facing status text updates from the queue.
type StatusFunc func(status string)

// SpeakingStatus is shown while an item plays.
const SpeakingStatus = "Speaking..."

// PlaybackFailedStatus replaces the status text when an item fails to play.
const PlaybackFailedStatus = "Could not play audio."

// Queue serializes speech playback: items play strictly in enqueue order, one
// at a time, and a failed item never blocks the items behind it.
type Queue struct {
	player Player
	status StatusFunc
	log    *slog.Logger

	mu     sync.Mutex
	items  chan string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	// prior holds the status text to restore after a successful playback.
	prior string
}

// NewQueue starts the playback worker. status may be nil.
func NewQueue(player Player, status StatusFunc, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		player: player,
		status: status,
		log:    log,
		items:  make(chan string, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// SetPriorStatus records the status text to restore once playback finishes.
func (q *Queue) SetPriorStatus(s string) {
	q.mu.Lock()
	q.prior = s
	q.mu.Unlock()
}

// Enqueue schedules text for playback. Fire-and-forget: the caller never
// learns whether playback succeeded. A full queue drops the item rather than
// blocking the conversation.
func (q *Queue) Enqueue(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	select {
	case q.items <- text:
	default:
		q.log.Warn("speech queue full, dropping item")
	}
}

// Close stops the worker. Queued items that have not started are abandoned;
// the in-flight playback is cancelled.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// The items channel is never closed: a concurrent Enqueue that lost the
	// race against the closed flag must not panic on send. The worker exits
	// through the context instead.
	q.cancel()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		var text string
		select {
		case <-q.ctx.Done():
			return
		case text = <-q.items:
		}
		q.setStatus(SpeakingStatus)
		if err := q.player.Play(q.ctx, text); err != nil {
			// Swallowed per item: the chain always proceeds.
			q.log.Warn("speech playback failed", "error", err)
			q.setStatus(PlaybackFailedStatus)
			continue
		}
		q.mu.Lock()
		prior := q.prior
		q.mu.Unlock()
		q.setStatus(prior)
	}
}

func (q *Queue) setStatus(s string) {
	if q.status != nil {
		q.status(s)
	}
}
