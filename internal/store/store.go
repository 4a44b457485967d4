package store

import (
	"context"

	"github.com/mindbridge/intake/internal/models"
)

// Store defines the persistence interface for the ancillary collections.
// These are mutated by direct user action (CLI, API, MCP), never by the stage
// state machine, and survive EndSession.
type Store interface {
	// Habits
	CreateHabit(ctx context.Context, h *models.HabitEntry) error
	GetHabit(ctx context.Context, id string) (*models.HabitEntry, error)
	ListHabits(ctx context.Context) ([]*models.HabitEntry, error)
	ToggleHabit(ctx context.Context, id string) (*models.HabitEntry, error)
	DeleteHabit(ctx context.Context, id string) error

	// Scheduled sessions
	CreateScheduledSession(ctx context.Context, s *models.ScheduledSession) error
	GetScheduledSession(ctx context.Context, id string) (*models.ScheduledSession, error)
	ListScheduledSessions(ctx context.Context) ([]*models.ScheduledSession, error)
	RescheduleSession(ctx context.Context, id, datetimeLabel string) (*models.ScheduledSession, error)
	ConfirmSession(ctx context.Context, id string) (*models.ScheduledSession, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
