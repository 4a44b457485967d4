package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mindbridge/intake/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NewULID generates a new ULID string.
func NewULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Habits ---

func (s *SQLiteStore) CreateHabit(ctx context.Context, h *models.HabitEntry) error {
	if h.ID == "" {
		h.ID = NewULID()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habits (id, title, description, streak, completed_today, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Title, h.Description, h.Streak, boolToInt(h.CompletedToday), h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create habit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHabit(ctx context.Context, id string) (*models.HabitEntry, error) {
	h := &models.HabitEntry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, streak, completed_today, created_at, updated_at
		FROM habits WHERE id = ?`, id,
	).Scan(&h.ID, &h.Title, &h.Description, &h.Streak, &h.CompletedToday, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("habit not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) ListHabits(ctx context.Context) ([]*models.HabitEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, streak, completed_today, created_at, updated_at
		FROM habits ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var habits []*models.HabitEntry
	for rows.Next() {
		h := &models.HabitEntry{}
		if err := rows.Scan(&h.ID, &h.Title, &h.Description, &h.Streak, &h.CompletedToday, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// ToggleHabit flips completed_today. The streak increments by exactly 1 on the
// false -> true transition and is left unchanged on true -> false: unchecking
// does not undo a streak day.
func (s *SQLiteStore) ToggleHabit(ctx context.Context, id string) (*models.HabitEntry, error) {
	h, err := s.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.CompletedToday {
		h.CompletedToday = false
	} else {
		h.CompletedToday = true
		h.Streak++
	}
	h.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE habits SET streak = ?, completed_today = ?, updated_at = ? WHERE id = ?`,
		h.Streak, boolToInt(h.CompletedToday), h.UpdatedAt, h.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle habit: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) DeleteHabit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("habit not found: %s", id)
	}
	return nil
}

// --- Scheduled sessions ---

func (s *SQLiteStore) CreateScheduledSession(ctx context.Context, sess *models.ScheduledSession) error {
	if sess.ID == "" {
		sess.ID = NewULID()
	}
	if sess.Status == "" {
		sess.Status = models.ScheduleStatusPending
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_sessions (id, therapist_name, specialization_label, datetime_label, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TherapistName, sess.SpecializationLabel, sess.DatetimeLabel,
		string(sess.Status), sess.Notes, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create scheduled session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScheduledSession(ctx context.Context, id string) (*models.ScheduledSession, error) {
	sess := &models.ScheduledSession{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, therapist_name, specialization_label, datetime_label, status, notes, created_at, updated_at
		FROM scheduled_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TherapistName, &sess.SpecializationLabel, &sess.DatetimeLabel,
		&sess.Status, &sess.Notes, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scheduled session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListScheduledSessions(ctx context.Context) ([]*models.ScheduledSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, therapist_name, specialization_label, datetime_label, status, notes, created_at, updated_at
		FROM scheduled_sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.ScheduledSession
	for rows.Next() {
		sess := &models.ScheduledSession{}
		if err := rows.Scan(&sess.ID, &sess.TherapistName, &sess.SpecializationLabel, &sess.DatetimeLabel,
			&sess.Status, &sess.Notes, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RescheduleSession moves a session to a new time, resets status to pending,
// and overwrites notes with the fixed awaiting-confirmation text.
func (s *SQLiteStore) RescheduleSession(ctx context.Context, id, datetimeLabel string) (*models.ScheduledSession, error) {
	sess, err := s.GetScheduledSession(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.DatetimeLabel = datetimeLabel
	sess.Status = models.ScheduleStatusPending
	sess.Notes = models.NotesAwaitingConfirmation
	sess.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_sessions SET datetime_label = ?, status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		sess.DatetimeLabel, string(sess.Status), sess.Notes, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("reschedule session: %w", err)
	}
	return sess, nil
}

// ConfirmSession forces a session's status to scheduled.
func (s *SQLiteStore) ConfirmSession(ctx context.Context, id string) (*models.ScheduledSession, error) {
	sess, err := s.GetScheduledSession(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Status = models.ScheduleStatusScheduled
	sess.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(sess.Status), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("confirm session: %w", err)
	}
	return sess, nil
}
