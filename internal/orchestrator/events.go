package orchestrator

import "github.com/mindbridge/intake/internal/models"

// EventKind names one trigger the state machine reacts to.
type EventKind string

const (
	EventUserMessage    EventKind = "user_message"
	EventForceCrisis    EventKind = "force_crisis"
	EventIntakePrompt   EventKind = "intake_prompt"
	EventPrivacyChosen  EventKind = "privacy_chosen"
	EventRiskOK         EventKind = "risk_ok"
	EventRiskFailed     EventKind = "risk_failed"
	EventSpecialist     EventKind = "specialist_chosen"
	EventTimeSlot       EventKind = "time_slot_chosen"
	EventMatchConfirmed EventKind = "match_confirmed"
	EventExperience     EventKind = "post_match_experience"
	EventHabit          EventKind = "post_match_habit"
	EventEnd            EventKind = "end_session"
)

// anyStage in a rule's from-set admits the event from every non-terminal stage.
const anyStage = models.Stage("*")

// rule describes which stages admit an event and where it leads.
type rule struct {
	from []models.Stage
	to   models.Stage
}

// transitions is the explicit dispatch table for the flow. Stage changes
// reported by the dialogue backend are trusted verbatim and bypass this table;
// everything user- or timer-driven goes through it.
var transitions = map[EventKind]rule{
	EventUserMessage:    {from: []models.Stage{anyStage}},
	EventForceCrisis:    {from: []models.Stage{anyStage}, to: models.StageAssessment},
	EventIntakePrompt:   {from: []models.Stage{anyStage}, to: models.StagePrivacy},
	EventPrivacyChosen:  {from: []models.Stage{models.StagePrivacy}, to: models.StageAssessment},
	EventRiskOK:         {from: []models.Stage{models.StageAssessment}, to: models.StageSpecialistSelection},
	EventRiskFailed:     {from: []models.Stage{models.StageAssessment}, to: models.StagePrivacy},
	EventSpecialist:     {from: []models.Stage{models.StageSpecialistSelection}, to: models.StageTimeSlots},
	EventTimeSlot:       {from: []models.Stage{models.StageTimeSlots}, to: models.StageMatching},
	EventMatchConfirmed: {from: []models.Stage{models.StageMatching}, to: models.StageMatched},
	EventExperience:     {from: []models.Stage{models.StagePostMatch}, to: models.StageExperience},
	EventHabit:          {from: []models.Stage{models.StagePostMatch}, to: models.StageHabitTracker},
	EventEnd:            {from: []models.Stage{anyStage}, to: models.StageEnded},
}

// Admits reports whether the current stage accepts the event. Terminal stages
// admit nothing.
func Admits(current models.Stage, ev EventKind) bool {
	if current.Terminal() {
		return false
	}
	r, ok := transitions[ev]
	if !ok {
		return false
	}
	for _, f := range r.from {
		if f == anyStage || f == current {
			return true
		}
	}
	return false
}

// Next returns the stage the event leads to. For events that do not move the
// stage (user messages) it returns the current stage.
func Next(current models.Stage, ev EventKind) models.Stage {
	r := transitions[ev]
	if r.to == "" {
		return current
	}
	return r.to
}
