package backend

import (
	"context"
	"fmt"
	"time"
)

// TTSPlayer implements speech.Player by fetching audio from the TTS backend.
// Actual audio output is delegated to a Sink; the default sink estimates a
// speaking duration from the payload so terminal sessions still pace replies.
type TTSPlayer struct {
	client Client
	sink   Sink
}

// Sink renders a fetched audio payload and blocks until done.
type Sink func(ctx context.Context, audio []byte, text string) error

// NewTTSPlayer creates a player. sink may be nil for the default pacing sink.
func NewTTSPlayer(client Client, sink Sink) *TTSPlayer {
	if sink == nil {
		sink = paceSink
	}
	return &TTSPlayer{client: client, sink: sink}
}

// Play fetches audio for text and hands it to the sink.
func (p *TTSPlayer) Play(ctx context.Context, text string) error {
	audio, err := p.client.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	if len(audio) == 0 {
		return fmt.Errorf("fetch audio: empty payload")
	}
	return p.sink(ctx, audio, text)
}

// paceSink approximates playback time at a conversational reading rate so the
// serialized queue still spaces consecutive replies.
func paceSink(ctx context.Context, _ []byte, text string) error {
	words := 1
	for _, r := range text {
		if r == ' ' {
			words++
		}
	}
	// ~150 words per minute.
	d := time.Duration(words) * 400 * time.Millisecond
	if d > 20*time.Second {
		d = 20 * time.Second
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
