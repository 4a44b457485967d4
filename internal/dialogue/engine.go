package dialogue

import (
	"context"
	"strings"
	"sync"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/models"
)

// Responder produces the agent's conversational reply for a stage. The
// default implementation calls the Anthropic API; CannedResponder works
// offline.
type Responder interface {
	Reply(ctx context.Context, stage models.Stage, history []Turn) (string, error)
}

// Turn is one exchange in a conversation.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// Keyword sets used to judge whether intake has gathered enough context.
var (
	emotionKeywords = []string{
		"stressed", "anxious", "anxiety", "overwhelmed", "lost", "hopeless",
		"sad", "down", "tired", "burned", "burnt", "exhausted", "mess",
	}
	supportKeywords = []string{
		"help", "support", "talk", "therapy", "therapist", "someone",
		"guidance", "volunteer", "counselor", "listen",
	}
	crisisKeywords = []string{
		"kill myself", "end it all", "suicide", "hurt myself", "hang myself",
		"take my life", "overdose", "can't go on", "no reason to live",
		"want to end everything",
	}
	// Matched on word boundaries: as a substring "die" would escalate on
	// "diet" or "died".
	crisisWords = []string{"die"}
)

const emergencyReply = "Thank you for trusting me with that. Your safety matters more than anything right now. " +
	"If you can, please call or text 988 (Suicide & Crisis Lifeline) or dial 911 immediately. " +
	"I'm bringing in our crisis specialist so you don't have to face this alone."

// convo is the engine's per-session state.
type convo struct {
	stage       models.Stage
	history     []Turn
	userCount   int
	forceCrisis bool
	complete    bool
}

// Engine is the local dialogue backend: it tracks each session's intake
// stage, detects crisis language, and asks the Responder for replies.
type Engine struct {
	responder Responder

	mu    sync.Mutex
	convs map[string]*convo
}

// NewEngine creates an engine backed by the given responder.
func NewEngine(r Responder) *Engine {
	return &Engine{
		responder: r,
		convs:     map[string]*convo{},
	}
}

// Process handles one user message and returns the wire response the
// orchestrator expects.
func (e *Engine) Process(ctx context.Context, sessionID, message string) (*backend.IntakeResponse, error) {
	e.mu.Lock()
	c, ok := e.convs[sessionID]
	if !ok {
		c = &convo{stage: models.StageGreeting}
		e.convs[sessionID] = c
	}
	c.history = append(c.history, Turn{Role: "user", Text: message})
	c.userCount++
	e.mu.Unlock()

	// Crisis language pre-empts the normal ladder entirely.
	lower := strings.ToLower(message)
	if containsAny(lower, crisisKeywords) || containsAnyWord(lower, crisisWords) {
		e.mu.Lock()
		c.stage = models.StageAssessment
		c.forceCrisis = true
		c.complete = true
		c.history = append(c.history, Turn{Role: "assistant", Text: emergencyReply})
		e.mu.Unlock()
		return &backend.IntakeResponse{
			Response:          emergencyReply,
			Stage:             string(models.StageAssessment),
			IntakeComplete:    true,
			ForceCrisis:       true,
			SkipPrivacyPrompt: true,
		}, nil
	}

	e.mu.Lock()
	stage := c.stage
	history := make([]Turn, len(c.history))
	copy(history, c.history)
	e.mu.Unlock()

	reply, err := e.responder.Reply(ctx, stage, history)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c.history = append(c.history, Turn{Role: "assistant", Text: reply})
	c.stage = nextStage(c.stage, c.userCount, message)
	c.complete = c.stage == models.StageAssessment && hasSufficientContext(c)

	return &backend.IntakeResponse{
		Response:       reply,
		Stage:          string(c.stage),
		IntakeComplete: c.complete,
	}, nil
}

// EndSession drops a session's state.
func (e *Engine) EndSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.convs, sessionID)
}

// SessionCount returns the number of live conversations.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.convs)
}

// nextStage walks the intake ladder. Progression is deliberately gradual:
// the user moves forward only after enough substantive exchanges.
func nextStage(current models.Stage, userCount int, lastMsg string) models.Stage {
	words := len(strings.Fields(lastMsg))

	switch current {
	case models.StageGreeting:
		if userCount >= 1 {
			return models.StageCheckIn
		}
	case models.StageCheckIn:
		if userCount >= 2 {
			return models.StageUnderstanding
		}
	case models.StageUnderstanding:
		if userCount >= 3 && words > 4 {
			return models.StageExploring
		}
	case models.StageExploring:
		if userCount >= 4 {
			return models.StageContext
		}
	case models.StageContext:
		if userCount >= 5 && words >= 6 {
			return models.StageAssessment
		}
	}
	return current
}

// hasSufficientContext confirms intake gathered enough before escalation:
// recent messages must show both emotional content and a request for support.
func hasSufficientContext(c *convo) bool {
	if c.forceCrisis {
		return true
	}

	var userMsgs []string
	for _, t := range c.history {
		if t.Role == "user" {
			userMsgs = append(userMsgs, t.Text)
		}
	}
	if len(userMsgs) < 4 {
		return false
	}

	recent := strings.ToLower(strings.Join(userMsgs[max(0, len(userMsgs)-4):], " "))
	if len(strings.Fields(recent)) < 35 {
		return false
	}
	return containsAny(recent, emotionKeywords) && containsAny(recent, supportKeywords)
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func containsAnyWord(text string, words []string) bool {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, ".,!?;:'\"")
		for _, w := range words {
			if field == w {
				return true
			}
		}
	}
	return false
}
