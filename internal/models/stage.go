package models

// Stage represents one named step of the guided intake/matching flow.
type Stage string

const (
	StageGreeting            Stage = "greeting"
	StageCheckIn             Stage = "check_in"
	StageUnderstanding       Stage = "understanding"
	StageExploring           Stage = "exploring"
	StageContext             Stage = "context"
	StageAssessment          Stage = "assessment"
	StagePrivacy             Stage = "privacy"
	StageSpecialistSelection Stage = "specialist_selection"
	StageTimeSlots           Stage = "time_slots"
	StageMatching            Stage = "matching"
	StageMatched             Stage = "matched"
	StagePostMatch           Stage = "post_match"
	StageHabitTracker        Stage = "habit_tracker"
	StageExperience          Stage = "experience"
	StageEnded               Stage = "ended"
)

// Terminal reports whether the session accepts no further input at this stage.
func (s Stage) Terminal() bool {
	return s == StageEnded
}
