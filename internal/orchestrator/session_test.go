package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/speech"
)

// fakeClient scripts one IntakeResponse per call and records what it saw.
type fakeClient struct {
	mu        sync.Mutex
	responses []*backend.IntakeResponse
	intakeErr error
	crisisErr error

	intakeCalls []backend.IntakeRequest
	crisisCalls []backend.IntakeRequest
	endedIDs    []string
}

func (c *fakeClient) Intake(ctx context.Context, req backend.IntakeRequest) (*backend.IntakeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intakeCalls = append(c.intakeCalls, req)
	if c.intakeErr != nil {
		return nil, c.intakeErr
	}
	if len(c.responses) == 0 {
		return &backend.IntakeResponse{Response: "Tell me more."}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *fakeClient) Crisis(ctx context.Context, req backend.IntakeRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crisisCalls = append(c.crisisCalls, req)
	return c.crisisErr
}

func (c *fakeClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("audio"), nil
}

func (c *fakeClient) EndSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endedIDs = append(c.endedIDs, sessionID)
	return nil
}

// recordingSpeaker captures enqueued speech.
type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
	prior string
}

func (r *recordingSpeaker) Enqueue(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingSpeaker) SetPriorStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prior = status
}

func newTestSession(t *testing.T, client *fakeClient, opts ...Option) (*Session, *recordingSpeaker) {
	t.Helper()
	speaker := &recordingSpeaker{}
	opts = append([]Option{WithMatchDelay(10 * time.Millisecond)}, opts...)
	s := NewSession("01TESTSESSION", "user-1", client, speaker, opts...)
	return s, speaker
}

func TestSubmitUserMessage_AppendsAndSpeaks(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "Hi there, what's on your mind?", Stage: "check_in"},
	}}
	s, speaker := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "hello")

	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, models.SpeakerUser, snap.Transcript[0].Speaker)
	assert.Equal(t, "hello", snap.Transcript[0].Text)
	assert.Equal(t, models.SpeakerAgent, snap.Transcript[1].Speaker)

	// Stage from the backend is trusted verbatim.
	assert.Equal(t, models.StageCheckIn, snap.Stage)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Equal(t, []string{"Hi there, what's on your mind?"}, speaker.texts)
}

func TestSubmitUserMessage_EmptyIgnored(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "")

	assert.Empty(t, s.Snapshot().Transcript)
	assert.Empty(t, client.intakeCalls)
}

func TestSubmitUserMessage_BackendFailureKeepsStage(t *testing.T) {
	client := &fakeClient{intakeErr: errors.New("boom")}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "hello")

	snap := s.Snapshot()
	assert.Equal(t, models.StageGreeting, snap.Stage)
	// The user's message stays in the transcript; no agent reply was added.
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "I'm having trouble connecting right now. Please try again in a moment.", snap.Status)

	// The activity entry is closed out, not left spinning.
	require.NotEmpty(t, snap.Activities)
	last := snap.Activities[len(snap.Activities)-1]
	assert.Equal(t, models.ActivityDone, last.Status)
	assert.Equal(t, "Connection failed", last.Label)

	// The session is re-enterable: the next message goes through.
	client.intakeErr = nil
	s.SubmitUserMessage(context.Background(), "are you there?")
	assert.Len(t, s.Snapshot().Transcript, 3)
}

func TestSubmitUserMessage_IntakeCompleteOpensPrivacy(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "Thanks for sharing all that.", Stage: "assessment", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "that's my whole story")

	snap := s.Snapshot()
	assert.Equal(t, models.StagePrivacy, snap.Stage)
	assert.True(t, snap.Panels.PrivacyOpen)
	// The privacy prompt is spoken after the backend reply.
	last := snap.Transcript[len(snap.Transcript)-1]
	assert.Contains(t, last.Text, "comfortable")
}

func TestSubmitUserMessage_PrivacyPromptShownOnlyOnce(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
		{Response: "ok again", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "first")
	require.Equal(t, models.StagePrivacy, s.Stage())

	s.ChoosePrivacyTier(context.Background(), models.PrivacyNoRecords)

	// A second intake_complete must not reopen the chooser.
	s.SubmitUserMessage(context.Background(), "second")
	assert.False(t, s.Snapshot().Panels.PrivacyOpen)
}

func TestSubmitUserMessage_SkipPrivacySuppressesPrompt(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true, SkipPrivacyPrompt: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "hello")

	snap := s.Snapshot()
	assert.False(t, snap.Panels.PrivacyOpen)
	assert.NotEqual(t, models.StagePrivacy, snap.Stage)
}

func TestForceCrisis_OverridesPrivacyAndRunsRisk(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "I'm here with you.", ForceCrisis: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "I can't go on")

	snap := s.Snapshot()
	// Crisis forces the protective tier, skips the chooser, and the risk
	// analysis continued into specialist selection.
	assert.Equal(t, models.PrivacyFullSupport, snap.PrivacyTier)
	assert.False(t, snap.Panels.PrivacyOpen)
	assert.Equal(t, models.StageSpecialistSelection, snap.Stage)
	assert.True(t, snap.Panels.SpecialistOpen)
	require.Len(t, client.crisisCalls, 1)
	assert.Equal(t, "I can't go on", client.crisisCalls[0].Message)
}

func TestChoosePrivacyTier_RunsRiskAndRecommends(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "work stress, deadlines, my boss")
	require.Equal(t, models.StagePrivacy, s.Stage())

	s.ChoosePrivacyTier(context.Background(), models.PrivacyAssistedHandoff)

	snap := s.Snapshot()
	assert.Equal(t, models.StageSpecialistSelection, snap.Stage)
	assert.Equal(t, models.PrivacyAssistedHandoff, snap.PrivacyTier)
	assert.True(t, snap.Panels.SpecialistOpen)
	assert.Equal(t, models.SpecialistCareer, snap.Recommended)

	// The choice reads as a user line in the transcript.
	found := false
	for _, e := range snap.Transcript {
		if e.Speaker == models.SpeakerUser && e.Text == "I'd like Assisted Handoff" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChoosePrivacyTier_IgnoredOutsidePrivacyStage(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	s.ChoosePrivacyTier(context.Background(), models.PrivacyNoRecords)

	assert.Equal(t, models.StageGreeting, s.Stage())
	assert.Empty(t, client.crisisCalls)
}

func TestRiskFailure_FallsBackToPrivacy(t *testing.T) {
	client := &fakeClient{
		responses: []*backend.IntakeResponse{{Response: "ok", IntakeComplete: true}},
		crisisErr: errors.New("risk backend down"),
	}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "hello")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)

	snap := s.Snapshot()
	assert.Equal(t, models.StagePrivacy, snap.Stage)
	assert.True(t, snap.Panels.PrivacyOpen, "chooser reopens so the user can retry")

	// Retry succeeds once the backend recovers.
	client.crisisErr = nil
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)
	assert.Equal(t, models.StageSpecialistSelection, s.Stage())
}

func TestFullFlow_ThroughMatchAndHabits(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "anxious about everything")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)
	require.Equal(t, models.StageSpecialistSelection, s.Stage())

	s.ChooseSpecialist(models.SpecialistAnxiety)
	snap := s.Snapshot()
	require.Equal(t, models.StageTimeSlots, snap.Stage)
	assert.True(t, snap.Panels.TimeSlotsOpen)

	s.ChooseTimeSlot("Mon 10:00 AM")
	assert.Equal(t, models.StageMatching, s.Stage())

	// The match timer fires after the configured delay.
	require.Eventually(t, func() bool {
		return s.Stage() == models.StagePostMatch
	}, time.Second, 5*time.Millisecond)

	s.ChoosePostMatchAction(PostMatchHabit)
	snap = s.Snapshot()
	assert.Equal(t, models.StageHabitTracker, snap.Stage)
	assert.Equal(t, "habits", snap.Panels.ActiveTab)
}

func TestChooseSpecialist_RejectsUnknownKey(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)
	s.SubmitUserMessage(context.Background(), "hi")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)
	require.Equal(t, models.StageSpecialistSelection, s.Stage())

	s.ChooseSpecialist(models.SpecialistKey("astrology"))
	assert.Equal(t, models.StageSpecialistSelection, s.Stage())
}

func TestEndSession_CancelsMatchTimer(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client, WithMatchDelay(30*time.Millisecond))

	s.SubmitUserMessage(context.Background(), "hi")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)
	s.ChooseSpecialist(models.SpecialistDepression)
	s.ChooseTimeSlot("Tue 2:00 PM")
	require.Equal(t, models.StageMatching, s.Stage())

	s.EndSession(context.Background())
	assert.Equal(t, models.StageEnded, s.Stage())

	// The timer must never resurrect the session.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, models.StageEnded, s.Stage())
}

func TestEndSession_ClearsTransientsKeepsTranscript(t *testing.T) {
	client := &fakeClient{responses: []*backend.IntakeResponse{
		{Response: "ok", IntakeComplete: true},
	}}
	s, _ := newTestSession(t, client)

	s.SubmitUserMessage(context.Background(), "hi")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyNoRecords)
	s.EndSession(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, models.StageEnded, snap.Stage)
	assert.Empty(t, snap.PrivacyTier)
	assert.Empty(t, snap.Specialist)
	assert.Empty(t, snap.TimeSlot)
	assert.Equal(t, Panels{}, snap.Panels)
	assert.Empty(t, snap.Activities)
	assert.NotEmpty(t, snap.Transcript, "transcript survives EndSession")

	assert.Equal(t, []string{"01TESTSESSION"}, client.endedIDs)
}

func TestEndSession_Idempotent(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	s.EndSession(context.Background())
	s.EndSession(context.Background())
	s.EndSession(context.Background())

	assert.Equal(t, models.StageEnded, s.Stage())
	assert.Len(t, client.endedIDs, 1, "teardown fires once")
}

func TestEndedSession_IgnoresEverything(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)
	s.EndSession(context.Background())

	s.SubmitUserMessage(context.Background(), "hello?")
	s.ChoosePrivacyTier(context.Background(), models.PrivacyFullSupport)
	s.ChooseSpecialist(models.SpecialistAnxiety)
	s.ChooseTimeSlot("Mon 10:00 AM")
	s.ChoosePostMatchAction(PostMatchExperience)
	assert.False(t, s.StartCapture())

	snap := s.Snapshot()
	assert.Equal(t, models.StageEnded, snap.Stage)
	assert.Empty(t, snap.Transcript)
	assert.Empty(t, client.intakeCalls)
}

func TestCapture_SingleSlot(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	assert.True(t, s.StartCapture())
	assert.False(t, s.StartCapture(), "second start while capturing is refused")

	s.StopCapture()
	assert.True(t, s.StartCapture())
}

func TestCaptureFailed_SetsStatusAndStopsCapture(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	require.True(t, s.StartCapture())
	s.CaptureFailed(speech.CaptureNoSpeech)

	snap := s.Snapshot()
	assert.False(t, snap.Capturing)
	assert.Equal(t, "I didn't catch that. Tap the microphone and try again.", snap.Status)

	// Retry works.
	assert.True(t, s.StartCapture())
}

func TestSnapshot_ActivitiesCappedAtFour(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSession(t, client)

	for i := 0; i < 6; i++ {
		s.SubmitUserMessage(context.Background(), "message")
	}

	snap := s.Snapshot()
	assert.Len(t, snap.Activities, 4)
	assert.Equal(t, 6, s.Timeline().Len())
}
