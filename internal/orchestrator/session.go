package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/recommend"
	"github.com/mindbridge/intake/internal/speech"
)

// Speaker is the slice of the speech queue the session needs.
type Speaker interface {
	Enqueue(text string)
	SetPriorStatus(status string)
}

// PostMatchAction selects what the user does after matching.
type PostMatchAction string

const (
	PostMatchExperience PostMatchAction = "experience"
	PostMatchHabit      PostMatchAction = "habit"
)

// Panels tracks client-visible side panel state.
type Panels struct {
	PrivacyOpen    bool   `json:"privacy_open"`
	SpecialistOpen bool   `json:"specialist_open"`
	TimeSlotsOpen  bool   `json:"time_slots_open"`
	ActiveTab      string `json:"active_tab"`
}

// Fixed user-facing messages.
const (
	msgPrivacyPrompt = "Before we go further, I want to make sure you're comfortable. " +
		"How would you like your information handled? Take a look at the options and choose what feels right."
	msgConnectionError = "I'm having trouble connecting right now. Please try again in a moment."
	msgInviteSent      = "I've sent an invite to your therapist for that time. Hang tight while they confirm."
	msgMatched         = "Great news, your therapist confirmed! You're all matched. " +
		"Would you like to tell me about your experience, or set up some habits to work on?"
	msgExperiencePrompt = "I'd love to hear how this has been for you. How are you feeling about everything so far?"
	msgHabitPrompt      = "Let's set up a few small habits to carry you between sessions. " +
		"Your habit tracker is open; check things off as you go."
	msgSessionEnded = "Take care. I'm here whenever you want to talk again."

	statusReady    = "Ready when you are."
	statusThinking = "Thinking..."
	statusMatching = "Waiting for your therapist to confirm..."
)

// Internal agent names used in the activity timeline.
const (
	agentIntake   = "Intake Agent"
	agentCrisis   = "Crisis Agent"
	agentResource = "Resource Agent"
)

// defaultMatchDelay simulates asynchronous therapist confirmation.
const defaultMatchDelay = 2500 * time.Millisecond

// StatusFunc receives status text changes for display.
type StatusFunc func(status string)

// Session is the conversation orchestrator: it holds the current stage,
// reacts to backend responses and user UI choices, and drives panel
// visibility and status text. All state is guarded by one mutex; the original
// ran on a single event loop, so a multi-threaded host must come through
// these methods.
type Session struct {
	id     string
	userID string

	client  backend.Client
	speaker Speaker
	log     *slog.Logger

	onStatus   StatusFunc
	matchDelay time.Duration

	mu         sync.Mutex
	stage      models.Stage
	status     string
	transcript []models.TranscriptEntry
	timeline   *Timeline
	panels     Panels

	privacyTier     models.PrivacyTier
	privacyPrompted bool
	skipPrivacy     bool
	specialist      models.SpecialistKey
	recommended     models.SpecialistKey
	timeSlot        string
	postMatch       PostMatchAction

	capturing bool
	inFlight  bool
	ended     bool

	matchTimer *time.Timer
}

// Option configures a Session.
type Option func(*Session)

// WithMatchDelay overrides the simulated therapist-confirmation delay.
func WithMatchDelay(d time.Duration) Option {
	return func(s *Session) { s.matchDelay = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithStatusFunc registers a callback for status text changes.
func WithStatusFunc(fn StatusFunc) Option {
	return func(s *Session) { s.onStatus = fn }
}

// NewSession creates a session at the greeting stage.
func NewSession(id, userID string, client backend.Client, speaker Speaker, opts ...Option) *Session {
	s := &Session{
		id:         id,
		userID:     userID,
		client:     client,
		speaker:    speaker,
		log:        slog.Default(),
		matchDelay: defaultMatchDelay,
		stage:      models.StageGreeting,
		status:     statusReady,
		timeline:   NewTimeline(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Stage returns the current stage.
func (s *Session) Stage() models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Snapshot is a consistent copy of the client-visible session state.
type Snapshot struct {
	SessionID   string                   `json:"session_id"`
	Stage       models.Stage             `json:"stage"`
	Status      string                   `json:"status"`
	Transcript  []models.TranscriptEntry `json:"transcript"`
	Activities  []models.AgentActivity   `json:"activities"`
	Panels      Panels                   `json:"panels"`
	PrivacyTier models.PrivacyTier       `json:"privacy_tier,omitempty"`
	Specialist  models.SpecialistKey     `json:"specialist,omitempty"`
	Recommended models.SpecialistKey     `json:"recommended,omitempty"`
	TimeSlot    string                   `json:"time_slot,omitempty"`
	Capturing   bool                     `json:"capturing"`
}

// Snapshot returns the current client-visible state. Only the most recent
// four activity entries are included; the full log stays in the timeline.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := make([]models.TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)

	return Snapshot{
		SessionID:   s.id,
		Stage:       s.stage,
		Status:      s.status,
		Transcript:  transcript,
		Activities:  s.timeline.Recent(4),
		Panels:      s.panels,
		PrivacyTier: s.privacyTier,
		Specialist:  s.specialist,
		Recommended: s.recommended,
		TimeSlot:    s.timeSlot,
		Capturing:   s.capturing,
	}
}

// Timeline exposes the activity log for rendering.
func (s *Session) Timeline() *Timeline { return s.timeline }

// SubmitUserMessage appends the user's message to the transcript and runs it
// through the dialogue backend. Backend failures are absorbed here: the stage
// never changes on error and the user can simply try again.
func (s *Session) SubmitUserMessage(ctx context.Context, text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	if !Admits(s.stage, EventUserMessage) || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.transcript = append(s.transcript, models.TranscriptEntry{Speaker: models.SpeakerUser, Text: text})
	actID := s.timeline.Append(agentIntake, "Listening and thinking it through", models.ActivityThinking)
	s.setStatusLocked(statusThinking)
	s.mu.Unlock()

	resp, err := s.client.Intake(ctx, backend.IntakeRequest{
		SessionID: s.id,
		UserID:    s.userID,
		Message:   text,
	})

	s.mu.Lock()
	s.inFlight = false
	if s.ended {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.log.Warn("dialogue backend failed", "session_id", s.id, "error", err)
		s.timeline.MarkDone(actID, "Connection failed")
		s.setStatusLocked(msgConnectionError)
		s.mu.Unlock()
		return
	}
	s.timeline.MarkDone(actID, "Reply ready")

	if resp.Stage != "" {
		// Trusted verbatim, no local validation.
		s.stage = models.Stage(resp.Stage)
	}
	if resp.SkipPrivacyPrompt {
		s.skipPrivacy = true
	}
	if resp.Response != "" {
		s.sayLocked(resp.Response)
	}
	s.setStatusLocked(statusReady)

	switch {
	case resp.ForceCrisis:
		// Crisis override: force the most protective tier, never show the
		// chooser, and go straight to risk analysis.
		s.privacyTier = models.PrivacyFullSupport
		s.privacyPrompted = true
		s.stage = Next(s.stage, EventForceCrisis)
		s.mu.Unlock()
		s.runRiskAnalysis(ctx)
		return
	case resp.IntakeComplete && !s.privacyPrompted && !s.skipPrivacy:
		s.stage = Next(s.stage, EventIntakePrompt)
		s.privacyPrompted = true
		s.panels.PrivacyOpen = true
		s.sayLocked(msgPrivacyPrompt)
	}
	s.mu.Unlock()
}

// ChoosePrivacyTier records the user's tier choice and starts risk analysis.
// Ignored unless the session is at the privacy stage.
func (s *Session) ChoosePrivacyTier(ctx context.Context, tier models.PrivacyTier) {
	if !models.ValidPrivacyTier(tier) {
		return
	}

	s.mu.Lock()
	if !Admits(s.stage, EventPrivacyChosen) {
		s.mu.Unlock()
		return
	}
	s.privacyTier = tier
	s.panels.PrivacyOpen = false
	s.transcript = append(s.transcript, models.TranscriptEntry{
		Speaker: models.SpeakerUser,
		Text:    "I'd like " + models.PrivacyTierLabel(tier),
	})
	s.stage = Next(s.stage, EventPrivacyChosen)
	s.mu.Unlock()

	s.runRiskAnalysis(ctx)
}

// runRiskAnalysis is the assessment step. The crisis backend is consulted
// first; on success the recommendation scorer runs over the whole transcript
// and the specialist panel opens. On failure the session falls back one stage
// to privacy rather than stranding the user in assessment.
func (s *Session) runRiskAnalysis(ctx context.Context) {
	s.mu.Lock()
	if s.ended || s.stage != models.StageAssessment {
		s.mu.Unlock()
		return
	}
	actID := s.timeline.Append(agentCrisis, "Running a safety check", models.ActivityTool)
	lastUser := s.lastUserTextLocked()
	s.mu.Unlock()

	err := s.client.Crisis(ctx, backend.IntakeRequest{
		SessionID: s.id,
		UserID:    s.userID,
		Message:   lastUser,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.stage != models.StageAssessment {
		return
	}
	if err != nil {
		s.log.Warn("crisis backend failed", "session_id", s.id, "error", err)
		s.timeline.MarkDone(actID, "Safety check unavailable")
		s.stage = Next(s.stage, EventRiskFailed)
		s.panels.PrivacyOpen = true
		s.setStatusLocked(msgConnectionError)
		return
	}
	s.timeline.MarkDone(actID, "Safety check complete")

	rec := recommend.Specialist(s.userUtterancesLocked())
	s.recommended = rec
	resID := s.timeline.Append(agentResource, "Finding your best-fit specialist", models.ActivityThinking)
	s.timeline.MarkDone(resID, "Recommended "+string(rec)+" support")

	s.stage = Next(s.stage, EventRiskOK)
	s.panels.SpecialistOpen = true
	s.setStatusLocked(statusReady)
}

// ChooseSpecialist records the selection and moves to time-slot choice.
func (s *Session) ChooseSpecialist(key models.SpecialistKey) {
	if !models.ValidSpecialistKey(key) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !Admits(s.stage, EventSpecialist) {
		return
	}
	s.specialist = key
	s.panels.SpecialistOpen = false
	s.panels.TimeSlotsOpen = true
	s.stage = Next(s.stage, EventSpecialist)
}

// ChooseTimeSlot records the slot, announces the invite, and arms the
// one-shot confirmation timer. The timer fires exactly once; EndSession
// cancels it so it can never mutate an ended session.
func (s *Session) ChooseTimeSlot(slot string) {
	if slot == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !Admits(s.stage, EventTimeSlot) {
		return
	}
	s.timeSlot = slot
	s.panels.TimeSlotsOpen = false
	s.stage = Next(s.stage, EventTimeSlot)
	s.sayLocked(msgInviteSent)
	s.setStatusLocked(statusMatching)

	actID := s.timeline.Append(agentResource, "Sending invite to your therapist", models.ActivityTool)
	s.matchTimer = time.AfterFunc(s.matchDelay, func() {
		s.confirmMatch(actID)
	})
}

// confirmMatch is the timer callback: matching -> matched -> post_match.
func (s *Session) confirmMatch(actID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || !Admits(s.stage, EventMatchConfirmed) {
		return
	}
	// matched is passed through immediately on the way to post_match.
	s.stage = Next(s.stage, EventMatchConfirmed)
	s.stage = models.StagePostMatch
	s.timeline.MarkDone(actID, "Therapist confirmed")
	s.sayLocked(msgMatched)
	s.setStatusLocked(statusReady)
}

// ChoosePostMatchAction branches into the experience conversation or the
// habit tracker.
func (s *Session) ChoosePostMatchAction(action PostMatchAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case PostMatchExperience:
		if !Admits(s.stage, EventExperience) {
			return
		}
		s.postMatch = action
		s.panels.ActiveTab = "experience"
		s.stage = Next(s.stage, EventExperience)
		s.sayLocked(msgExperiencePrompt)
	case PostMatchHabit:
		if !Admits(s.stage, EventHabit) {
			return
		}
		s.postMatch = action
		s.panels.ActiveTab = "habits"
		s.stage = Next(s.stage, EventHabit)
		s.sayLocked(msgHabitPrompt)
	}
}

// StartCapture marks voice capture active. Single-slot: starting while
// already capturing is a no-op and returns false.
func (s *Session) StartCapture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.capturing {
		return false
	}
	s.capturing = true
	return true
}

// StopCapture marks voice capture inactive.
func (s *Session) StopCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = false
}

// CaptureFailed surfaces a capture error as status text. Never fatal.
func (s *Session) CaptureFailed(code speech.CaptureError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.capturing = false
	s.setStatusLocked(speech.CaptureErrorMessage(code))
}

// EndSession stops capture, cancels the pending match timer, notifies the
// backend, and moves to the terminal stage. Transient selections and the
// activity log are cleared; the transcript and the ancillary stores are not.
// Idempotent: calling it on an ended session changes nothing.
func (s *Session) EndSession(ctx context.Context) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.capturing = false
	if s.matchTimer != nil {
		s.matchTimer.Stop()
		s.matchTimer = nil
	}
	s.stage = Next(s.stage, EventEnd)

	s.privacyTier = ""
	s.privacyPrompted = false
	s.skipPrivacy = false
	s.specialist = ""
	s.recommended = ""
	s.timeSlot = ""
	s.postMatch = ""
	s.panels = Panels{}
	s.timeline.Reset()
	s.setStatusLocked(msgSessionEnded)
	s.mu.Unlock()

	// Fire-and-forget teardown.
	if err := s.client.EndSession(ctx, s.id); err != nil {
		s.log.Warn("session teardown failed", "session_id", s.id, "error", err)
	}
}

// --- helpers (callers hold s.mu) ---

// sayLocked appends an agent transcript entry and queues it for speech.
func (s *Session) sayLocked(text string) {
	s.transcript = append(s.transcript, models.TranscriptEntry{Speaker: models.SpeakerAgent, Text: text})
	if s.speaker != nil {
		s.speaker.SetPriorStatus(s.status)
		s.speaker.Enqueue(text)
	}
}

func (s *Session) setStatusLocked(status string) {
	s.status = status
	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func (s *Session) userUtterancesLocked() []string {
	var out []string
	for _, e := range s.transcript {
		if e.Speaker == models.SpeakerUser {
			out = append(out, e.Text)
		}
	}
	return out
}

func (s *Session) lastUserTextLocked() string {
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Speaker == models.SpeakerUser {
			return s.transcript[i].Text
		}
	}
	return ""
}

// SetStatus lets the host (speech queue, capture layer) update status text.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(status)
}

// Status returns the current status text.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
