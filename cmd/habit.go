package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/output"
)

var habitDescription string

var habitCmd = &cobra.Command{
	Use:   "habit",
	Short: "Manage tracked habits",
	Long:  "Create, list, toggle, and delete habits tracked between sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return habitListRun()
	},
}

var habitListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all habits",
	RunE: func(cmd *cobra.Command, args []string) error {
		return habitListRun()
	},
}

var habitAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new habit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return habitAddRun(args[0])
	},
}

var habitToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Toggle a habit's completed-today flag",
	Long: `Toggle whether a habit was completed today.

Completing a habit increments its streak by one. Un-completing it leaves
the streak where it was.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return habitToggleRun(args[0])
	},
}

var habitDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a habit",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return habitDeleteRun(args[0])
	},
}

func init() {
	habitAddCmd.Flags().StringVarP(&habitDescription, "description", "d", "", "Habit description")
	habitCmd.AddCommand(habitListCmd)
	habitCmd.AddCommand(habitAddCmd)
	habitCmd.AddCommand(habitToggleCmd)
	habitCmd.AddCommand(habitDeleteCmd)
	rootCmd.AddCommand(habitCmd)
}

func habitListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	habits, err := s.ListHabits(context.Background())
	if err != nil {
		return err
	}

	if len(habits) == 0 {
		ui.Info("No habits yet. Use 'intake habit add <title>' to create one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Streak", "Today"})
	for _, h := range habits {
		today := ""
		if h.CompletedToday {
			today = output.Green("✓")
		}
		_ = table.Append([]string{
			output.Dim(shortID(h.ID)),
			output.Cyan(h.Title),
			strconv.Itoa(h.Streak),
			today,
		})
	}
	_ = table.Render()
	return nil
}

func habitAddRun(title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add habit: %s", title)
		return nil
	}

	h := &models.HabitEntry{Title: title, Description: habitDescription}
	if err := s.CreateHabit(context.Background(), h); err != nil {
		return err
	}

	ui.Success("Habit added: %s (%s)", h.Title, shortID(h.ID))
	return nil
}

func habitToggleRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	full, err := resolveHabitID(ctx, id)
	if err != nil {
		return err
	}

	h, err := s.ToggleHabit(ctx, full)
	if err != nil {
		return err
	}

	if h.CompletedToday {
		ui.Success("%s completed. Streak: %d", h.Title, h.Streak)
	} else {
		ui.Info("%s unmarked. Streak stays at %d", h.Title, h.Streak)
	}
	return nil
}

func habitDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete habit: %s", id)
		return nil
	}

	ctx := context.Background()
	full, err := resolveHabitID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.DeleteHabit(ctx, full); err != nil {
		return err
	}

	ui.Success("Habit deleted: %s", shortID(full))
	return nil
}

// resolveHabitID finds a habit by full ID or unique prefix.
func resolveHabitID(ctx context.Context, id string) (string, error) {
	s, err := getStore()
	if err != nil {
		return "", err
	}

	if _, err := s.GetHabit(ctx, id); err == nil {
		return id, nil
	}

	habits, err := s.ListHabits(ctx)
	if err != nil {
		return "", err
	}

	upper := strings.ToUpper(id)
	var matches []string
	for _, h := range habits {
		if strings.HasPrefix(h.ID, upper) {
			matches = append(matches, h.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("habit not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous habit ID %s: matches %d habits", id, len(matches))
	}
}

// shortID truncates a ULID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
