package models

import "time"

// ScheduleStatus represents the confirmation state of a scheduled session.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusPending   ScheduleStatus = "pending"
)

// NotesAwaitingConfirmation is written over a session's notes on reschedule.
const NotesAwaitingConfirmation = "Awaiting confirmation from your therapist."

// ScheduledSession is one booked or pending therapy session.
type ScheduledSession struct {
	ID                  string
	TherapistName       string
	SpecializationLabel string
	DatetimeLabel       string
	Status              ScheduleStatus
	Notes               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
