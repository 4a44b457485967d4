package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mindbridge/intake/internal/catalog"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/sessions"
	"github.com/mindbridge/intake/internal/store"
)

// Server wraps the intake session manager and stores and exposes them as
// MCP tools.
type Server struct {
	store    store.Store
	sessions *sessions.Manager
	catalog  *catalog.Catalog
	userID   string
}

// NewServer creates the MCP server wrapper with all required dependencies.
// userID is attached to every session the tools start.
func NewServer(s store.Store, m *sessions.Manager, c *catalog.Catalog, userID string) *Server {
	if c == nil {
		c = catalog.Default()
	}
	return &Server{store: s, sessions: m, catalog: c, userID: userID}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("intake", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.startSessionTool())
	srv.AddTool(s.sendMessageTool())
	srv.AddTool(s.sessionStateTool())
	srv.AddTool(s.choosePrivacyTool())
	srv.AddTool(s.chooseSpecialistTool())
	srv.AddTool(s.chooseTimeSlotTool())
	srv.AddTool(s.postMatchTool())
	srv.AddTool(s.endSessionTool())
	srv.AddTool(s.listHabitsTool())
	srv.AddTool(s.createHabitTool())
	srv.AddTool(s.toggleHabitTool())
	srv.AddTool(s.listScheduleTool())
	srv.AddTool(s.rescheduleTool())
	srv.AddTool(s.confirmSessionTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// snapshotResult marshals the session's client-visible state as the tool
// result. Every session-mutating tool returns this so the model always sees
// the stage, transcript tail and open panels after its action.
func snapshotResult(sess *orchestrator.Session) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session state: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) requireSession(request mcp.CallToolRequest) (*orchestrator.Session, *mcp.CallToolResult) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError("missing required parameter: session_id")
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return sess, nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// intake_start_session
func (s *Server) startSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_start_session",
		mcp.WithDescription("Start a new guided intake session. Returns the session state including session_id, stage, and the opening transcript."),
	)
	return tool, s.handleStartSession
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := s.sessions.Create(s.userID)
	return snapshotResult(sess)
}

// intake_send_message
func (s *Server) sendMessageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_send_message",
		mcp.WithDescription("Send one user message to an intake session. The dialogue backend replies and may advance the stage. Returns the updated session state."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message text")),
	)
	return tool, s.handleSendMessage
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}
	sess.SubmitUserMessage(ctx, message)
	return snapshotResult(sess)
}

// intake_session_state
func (s *Server) sessionStateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_session_state",
		mcp.WithDescription("Get the current state of an intake session: stage, status text, transcript, recent agent activity, and which choice panels are open."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleSessionState
}

func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	return snapshotResult(sess)
}

// intake_choose_privacy
func (s *Server) choosePrivacyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_choose_privacy",
		mcp.WithDescription("Choose a privacy tier for the session. Valid tiers: full_support, assisted_handoff, your_private_notes, no_records. Only meaningful while the privacy panel is open."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("tier", mcp.Required(), mcp.Description("Privacy tier key")),
	)
	return tool, s.handleChoosePrivacy
}

func (s *Server) handleChoosePrivacy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	tier, err := request.RequireString("tier")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tier"), nil
	}
	if !models.ValidPrivacyTier(models.PrivacyTier(tier)) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown privacy tier: %s", tier)), nil
	}
	sess.ChoosePrivacyTier(ctx, models.PrivacyTier(tier))
	return snapshotResult(sess)
}

// intake_choose_specialist
func (s *Server) chooseSpecialistTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_choose_specialist",
		mcp.WithDescription("Choose a specialist for the session. Valid keys: anxiety, depression, adhd, career. The session state includes the recommended key."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("specialist", mcp.Required(), mcp.Description("Specialist key")),
	)
	return tool, s.handleChooseSpecialist
}

func (s *Server) handleChooseSpecialist(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	key, err := request.RequireString("specialist")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: specialist"), nil
	}
	if !models.ValidSpecialistKey(models.SpecialistKey(key)) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown specialist: %s", key)), nil
	}
	sess.ChooseSpecialist(models.SpecialistKey(key))
	return snapshotResult(sess)
}

// intake_choose_time_slot
func (s *Server) chooseTimeSlotTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_choose_time_slot",
		mcp.WithDescription("Choose an appointment time slot by its label. Use the catalog's slot labels; an unknown label is rejected."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("slot", mcp.Required(), mcp.Description("Time slot label")),
	)
	return tool, s.handleChooseTimeSlot
}

func (s *Server) handleChooseTimeSlot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	slot, err := request.RequireString("slot")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: slot"), nil
	}
	if _, found := s.catalog.SlotByLabel(slot); !found {
		return mcp.NewToolResultError(fmt.Sprintf("unknown time slot: %s", slot)), nil
	}
	sess.ChooseTimeSlot(slot)
	return snapshotResult(sess)
}

// intake_post_match
func (s *Server) postMatchTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_post_match",
		mcp.WithDescription("After matching, choose what to do next: 'experience' to talk about how it went, or 'habit' to open the habit tracker."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Either 'experience' or 'habit'")),
	)
	return tool, s.handlePostMatch
}

func (s *Server) handlePostMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.requireSession(request)
	if errResult != nil {
		return errResult, nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: action"), nil
	}
	switch orchestrator.PostMatchAction(action) {
	case orchestrator.PostMatchExperience, orchestrator.PostMatchHabit:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid action: %s (must be experience or habit)", action)), nil
	}
	sess.ChoosePostMatchAction(orchestrator.PostMatchAction(action))
	return snapshotResult(sess)
}

// intake_end_session
func (s *Server) endSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_end_session",
		mcp.WithDescription("End an intake session. The conversation cannot be resumed afterwards. Ending an already-ended or unknown session is not an error."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleEndSession
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	s.sessions.End(ctx, id)
	data, _ := json.Marshal(map[string]string{"session_id": id, "status": "ended"})
	return mcp.NewToolResultText(string(data)), nil
}

// intake_list_habits
func (s *Server) listHabitsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_list_habits",
		mcp.WithDescription("List tracked habits. Each habit has an id, title, description, streak count, and whether it was completed today."),
	)
	return tool, s.handleListHabits
}

func (s *Server) handleListHabits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	habits, err := s.store.ListHabits(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list habits: %v", err)), nil
	}
	data, err := json.Marshal(habits)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal habits: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// intake_create_habit
func (s *Server) createHabitTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_create_habit",
		mcp.WithDescription("Create a new habit to track. Returns the created habit as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Habit title")),
		mcp.WithString("description", mcp.Description("Optional habit description")),
	)
	return tool, s.handleCreateHabit
}

func (s *Server) handleCreateHabit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	h := &models.HabitEntry{
		Title:       title,
		Description: request.GetString("description", ""),
	}
	if err := s.store.CreateHabit(ctx, h); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create habit: %v", err)), nil
	}
	data, _ := json.Marshal(h)
	return mcp.NewToolResultText(string(data)), nil
}

// intake_toggle_habit
func (s *Server) toggleHabitTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_toggle_habit",
		mcp.WithDescription("Toggle a habit's completed-today flag. Completing a habit increments its streak; un-completing leaves the streak unchanged."),
		mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
	)
	return tool, s.handleToggleHabit
}

func (s *Server) handleToggleHabit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("habit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: habit_id"), nil
	}
	h, err := s.store.ToggleHabit(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle habit: %v", err)), nil
	}
	data, _ := json.Marshal(h)
	return mcp.NewToolResultText(string(data)), nil
}

// intake_list_schedule
func (s *Server) listScheduleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_list_schedule",
		mcp.WithDescription("List scheduled therapy sessions. Each row has an id, therapist, specialization, datetime label, status (scheduled or pending), and notes."),
	)
	return tool, s.handleListSchedule
}

func (s *Server) handleListSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.store.ListScheduledSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list scheduled sessions: %v", err)), nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal scheduled sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// intake_reschedule
func (s *Server) rescheduleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_reschedule",
		mcp.WithDescription("Move a scheduled session to a new datetime. The session becomes pending until the therapist confirms."),
		mcp.WithString("scheduled_id", mcp.Required(), mcp.Description("Scheduled session ID")),
		mcp.WithString("datetime", mcp.Required(), mcp.Description("New datetime label, e.g. 'Tue, Sep 2 at 2:00 PM'")),
	)
	return tool, s.handleReschedule
}

func (s *Server) handleReschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("scheduled_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: scheduled_id"), nil
	}
	datetime, err := request.RequireString("datetime")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: datetime"), nil
	}
	sc, err := s.store.RescheduleSession(ctx, id, datetime)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to reschedule: %v", err)), nil
	}
	data, _ := json.Marshal(sc)
	return mcp.NewToolResultText(string(data)), nil
}

// intake_confirm_session
func (s *Server) confirmSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("intake_confirm_session",
		mcp.WithDescription("Confirm a pending scheduled session, marking it scheduled again."),
		mcp.WithString("scheduled_id", mcp.Required(), mcp.Description("Scheduled session ID")),
	)
	return tool, s.handleConfirmSession
}

func (s *Server) handleConfirmSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("scheduled_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: scheduled_id"), nil
	}
	sc, err := s.store.ConfirmSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to confirm: %v", err)), nil
	}
	data, _ := json.Marshal(sc)
	return mcp.NewToolResultText(string(data)), nil
}
