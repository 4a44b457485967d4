package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindbridge/intake/internal/backend"
	"github.com/mindbridge/intake/internal/catalog"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/output"
	"github.com/mindbridge/intake/internal/speech"
	"github.com/mindbridge/intake/internal/store"
)

var chatSpeak bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive intake conversation",
	Long: `Start a guided intake conversation in the terminal.

Type to talk. Slash commands drive the choice panels when they open:

  /privacy <n>     choose a privacy option by number
  /specialist <n>  choose a specialist by number
  /slot <n>        choose a time slot by number
  /experience      talk about your experience after matching
  /habits          open the habit tracker after matching
  /state           print the full session state
  /end             end the session and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chatRun(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatSpeak, "speak", false, "Fetch TTS audio for agent replies and pace output like playback")
	rootCmd.AddCommand(chatCmd)
}

// quietSpeaker drops speech entirely. Used when --speak is off.
type quietSpeaker struct{}

func (quietSpeaker) Enqueue(text string)          {}
func (quietSpeaker) SetPriorStatus(status string) {}

func chatRun(ctx context.Context) error {
	client := getBackendClient()
	cat, err := getCatalog()
	if err != nil {
		return err
	}

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	var speaker orchestrator.Speaker = quietSpeaker{}
	if chatSpeak {
		queue := speech.NewQueue(backend.NewTTSPlayer(client, nil), nil, logger)
		defer queue.Close()
		speaker = queue
	}

	sess := orchestrator.NewSession(
		store.NewULID(),
		viper.GetString("user_id"),
		client,
		speaker,
		orchestrator.WithLogger(logger),
	)
	defer sess.EndSession(context.Background())

	ui.Info("Session %s started. Type /end to finish.", sess.ID())
	fmt.Fprintln(ui.Out)

	r := &chatRenderer{ui: ui, cat: cat}
	r.render(sess.Snapshot())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(ui.Out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := r.command(ctx, sess, line)
			if err != nil {
				ui.Warning("%v", err)
			}
			if done {
				break
			}
		} else {
			sess.SubmitUserMessage(ctx, line)
		}

		r.render(sess.Snapshot())
		if sess.Stage().Terminal() {
			break
		}
	}
	return scanner.Err()
}

// chatRenderer prints the parts of a snapshot that changed since the last
// render: new transcript entries, status text, and newly opened panels.
type chatRenderer struct {
	ui  *output.UI
	cat *catalog.Catalog

	printed    int
	lastStatus string
	panels     orchestrator.Panels
}

func (r *chatRenderer) render(snap orchestrator.Snapshot) {
	for _, entry := range snap.Transcript[r.printed:] {
		switch entry.Speaker {
		case models.SpeakerAgent:
			r.ui.AgentSays(entry.Text)
		case models.SpeakerUser:
			r.ui.UserSays(entry.Text)
		}
	}
	r.printed = len(snap.Transcript)

	if snap.Status != r.lastStatus {
		r.ui.Status(snap.Status)
		r.lastStatus = snap.Status
	}

	if snap.Panels.PrivacyOpen && !r.panels.PrivacyOpen {
		r.printPrivacyOptions()
	}
	if snap.Panels.SpecialistOpen && !r.panels.SpecialistOpen {
		r.printSpecialistOptions(snap.Recommended)
	}
	if snap.Panels.TimeSlotsOpen && !r.panels.TimeSlotsOpen {
		r.printTimeSlots()
	}
	r.panels = snap.Panels
}

func (r *chatRenderer) printPrivacyOptions() {
	fmt.Fprintln(r.ui.Out)
	r.ui.Info("Privacy options (/privacy <n>):")
	for i, t := range models.PrivacyTiers {
		fmt.Fprintf(r.ui.Out, "  %d. %s - %s\n", i+1, output.Cyan(t.Label), t.Description)
	}
}

func (r *chatRenderer) printSpecialistOptions(recommended models.SpecialistKey) {
	fmt.Fprintln(r.ui.Out)
	r.ui.Info("Specialists (/specialist <n>):")
	for i, opt := range models.SpecialistOptions {
		marker := ""
		if opt.Key == recommended {
			marker = output.Green(" (recommended)")
		}
		fmt.Fprintf(r.ui.Out, "  %d. %s%s\n", i+1, output.Cyan(opt.Title), marker)
	}
}

func (r *chatRenderer) printTimeSlots() {
	fmt.Fprintln(r.ui.Out)
	r.ui.Info("Available times (/slot <n>):")
	for i, slot := range r.cat.TimeSlots {
		fmt.Fprintf(r.ui.Out, "  %d. %s with %s\n", i+1, output.Cyan(slot.Label), slot.Therapist)
	}
}

// command handles one slash command. It returns true when the chat loop
// should exit.
func (r *chatRenderer) command(ctx context.Context, sess *orchestrator.Session, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd := fields[0]
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/privacy":
		n, err := pickIndex(arg, len(models.PrivacyTiers))
		if err != nil {
			return false, err
		}
		sess.ChoosePrivacyTier(ctx, models.PrivacyTiers[n].Tier)

	case "/specialist":
		n, err := pickIndex(arg, len(models.SpecialistOptions))
		if err != nil {
			return false, err
		}
		sess.ChooseSpecialist(models.SpecialistOptions[n].Key)

	case "/slot":
		n, err := pickIndex(arg, len(r.cat.TimeSlots))
		if err != nil {
			return false, err
		}
		sess.ChooseTimeSlot(r.cat.TimeSlots[n].Label)

	case "/experience":
		sess.ChoosePostMatchAction(orchestrator.PostMatchExperience)

	case "/habits":
		sess.ChoosePostMatchAction(orchestrator.PostMatchHabit)

	case "/state":
		snap := sess.Snapshot()
		fmt.Fprintf(r.ui.Out, "stage: %s\n", output.Cyan(string(snap.Stage)))
		if snap.PrivacyTier != "" {
			fmt.Fprintf(r.ui.Out, "privacy: %s\n", models.PrivacyTierLabel(snap.PrivacyTier))
		}
		if snap.Specialist != "" {
			fmt.Fprintf(r.ui.Out, "specialist: %s\n", r.cat.SpecialistTitle(snap.Specialist))
		}
		if snap.TimeSlot != "" {
			fmt.Fprintf(r.ui.Out, "time slot: %s\n", snap.TimeSlot)
		}
		for _, act := range snap.Activities {
			fmt.Fprintf(r.ui.Out, "  %s: %s [%s]\n", act.AgentName, act.Label, output.ActivityColor(string(act.Status)))
		}

	case "/end", "/quit", "/exit":
		sess.EndSession(ctx)
		return true, nil

	default:
		return false, fmt.Errorf("unknown command: %s", cmd)
	}
	return false, nil
}

// pickIndex parses a 1-based selection and returns the 0-based index.
func pickIndex(arg string, n int) (int, error) {
	if arg == "" {
		return 0, fmt.Errorf("give an option number between 1 and %d", n)
	}
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("give an option number between 1 and %d", n)
	}
	return i - 1, nil
}
