package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/output"
)

var (
	scheduleSpecialization string
	scheduleNotes          string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled therapy sessions",
	Long:  "List, add, reschedule, and confirm scheduled therapy sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleListRun()
	},
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scheduled sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleListRun()
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <therapist> <datetime>",
	Short: "Add a scheduled session",
	Long: `Add a scheduled session with a therapist at a datetime label,
for example: intake schedule add "Dr. Sarah Johnson" "Mon, Sep 1 at 10:00 AM"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleAddRun(args[0], args[1])
	},
}

var scheduleMoveCmd = &cobra.Command{
	Use:     "reschedule <id> <datetime>",
	Aliases: []string{"move"},
	Short:   "Move a session to a new time",
	Long: `Move a scheduled session to a new datetime label. The session becomes
pending until the therapist confirms the new time.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleMoveRun(args[0], args[1])
	},
}

var scheduleConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a pending session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleConfirmRun(args[0])
	},
}

func init() {
	scheduleAddCmd.Flags().StringVarP(&scheduleSpecialization, "specialization", "s", "", "Specialization label")
	scheduleAddCmd.Flags().StringVar(&scheduleNotes, "notes", "", "Session notes")
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleMoveCmd)
	scheduleCmd.AddCommand(scheduleConfirmCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	list, err := s.ListScheduledSessions(context.Background())
	if err != nil {
		return err
	}

	if len(list) == 0 {
		ui.Info("Nothing scheduled. Use 'intake schedule add' or finish an intake chat.")
		return nil
	}

	table := ui.Table([]string{"ID", "Therapist", "When", "Status", "Notes"})
	for _, sc := range list {
		_ = table.Append([]string{
			output.Dim(shortID(sc.ID)),
			output.Cyan(sc.TherapistName),
			sc.DatetimeLabel,
			output.ScheduleColor(string(sc.Status)),
			sc.Notes,
		})
	}
	_ = table.Render()
	return nil
}

func scheduleAddRun(therapist, datetime string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would schedule %s at %s", therapist, datetime)
		return nil
	}

	sc := &models.ScheduledSession{
		TherapistName:       therapist,
		SpecializationLabel: scheduleSpecialization,
		DatetimeLabel:       datetime,
		Status:              models.ScheduleStatusScheduled,
		Notes:               scheduleNotes,
	}
	if err := s.CreateScheduledSession(context.Background(), sc); err != nil {
		return err
	}

	ui.Success("Scheduled %s at %s (%s)", sc.TherapistName, sc.DatetimeLabel, shortID(sc.ID))
	return nil
}

func scheduleMoveRun(id, datetime string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	full, err := resolveScheduledID(ctx, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move session %s to %s", shortID(full), datetime)
		return nil
	}

	sc, err := s.RescheduleSession(ctx, full, datetime)
	if err != nil {
		return err
	}

	ui.Success("Moved to %s. %s", sc.DatetimeLabel, sc.Notes)
	return nil
}

func scheduleConfirmRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	full, err := resolveScheduledID(ctx, id)
	if err != nil {
		return err
	}

	sc, err := s.ConfirmSession(ctx, full)
	if err != nil {
		return err
	}

	ui.Success("Confirmed %s at %s", sc.TherapistName, sc.DatetimeLabel)
	return nil
}

// resolveScheduledID finds a scheduled session by full ID or unique prefix.
func resolveScheduledID(ctx context.Context, id string) (string, error) {
	s, err := getStore()
	if err != nil {
		return "", err
	}

	if _, err := s.GetScheduledSession(ctx, id); err == nil {
		return id, nil
	}

	list, err := s.ListScheduledSessions(ctx)
	if err != nil {
		return "", err
	}

	upper := strings.ToUpper(id)
	var matches []string
	for _, sc := range list {
		if strings.HasPrefix(sc.ID, upper) {
			matches = append(matches, sc.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("scheduled session not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous session ID %s: matches %d sessions", id, len(matches))
	}
}
