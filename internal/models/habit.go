package models

import "time"

// HabitEntry is a therapeutic habit tracked by the user.
//
// Streak is asymmetric on purpose: toggling completion on increments it by
// exactly 1, toggling back off does not decrement it.
type HabitEntry struct {
	ID             string
	Title          string
	Description    string
	Streak         int
	CompletedToday bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
