package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mindbridge/intake/internal/catalog"
	"github.com/mindbridge/intake/internal/models"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/sessions"
	"github.com/mindbridge/intake/internal/speech"
	"github.com/mindbridge/intake/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	sessions *sessions.Manager
	catalog  *catalog.Catalog
}

// NewServer creates a new API server.
func NewServer(s store.Store, m *sessions.Manager, c *catalog.Catalog) *Server {
	if c == nil {
		c = catalog.Default()
	}
	return &Server{store: s, sessions: m, catalog: c}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("DELETE /api/v1/sessions/cleanup", s.cleanupSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.endSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", s.postMessage)
	mux.HandleFunc("POST /api/v1/sessions/{id}/privacy", s.choosePrivacy)
	mux.HandleFunc("POST /api/v1/sessions/{id}/specialist", s.chooseSpecialist)
	mux.HandleFunc("POST /api/v1/sessions/{id}/timeslot", s.chooseTimeSlot)
	mux.HandleFunc("POST /api/v1/sessions/{id}/action", s.choosePostMatch)
	mux.HandleFunc("POST /api/v1/sessions/{id}/capture", s.capture)
	mux.HandleFunc("GET /api/v1/sessions/{id}/activities", s.listActivities)

	mux.HandleFunc("GET /api/v1/catalog", s.getCatalog)

	mux.HandleFunc("GET /api/v1/habits", s.listHabits)
	mux.HandleFunc("POST /api/v1/habits", s.createHabit)
	mux.HandleFunc("GET /api/v1/habits/{id}", s.getHabit)
	mux.HandleFunc("POST /api/v1/habits/{id}/toggle", s.toggleHabit)
	mux.HandleFunc("DELETE /api/v1/habits/{id}", s.deleteHabit)

	mux.HandleFunc("GET /api/v1/schedule", s.listSchedule)
	mux.HandleFunc("POST /api/v1/schedule", s.createScheduled)
	mux.HandleFunc("GET /api/v1/schedule/{id}", s.getScheduled)
	mux.HandleFunc("POST /api/v1/schedule/{id}/reschedule", s.reschedule)
	mux.HandleFunc("POST /api/v1/schedule/{id}/confirm", s.confirm)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Sessions ---

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var sess *orchestrator.Session
	if req.SessionID != "" {
		sess = s.sessions.CreateWithID(req.SessionID, req.UserID)
	} else {
		sess = s.sessions.Create(req.UserID)
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.End(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) cleanupSessions(w http.ResponseWriter, r *http.Request) {
	maxIdle := 30 * time.Minute
	if v := r.URL.Query().Get("max_idle"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid max_idle duration")
			return
		}
		maxIdle = d
	}
	removed := s.sessions.Cleanup(r.Context(), maxIdle)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeErr(w, http.StatusBadRequest, "message is required")
		return
	}
	sess.SubmitUserMessage(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) choosePrivacy(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Tier models.PrivacyTier `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !models.ValidPrivacyTier(req.Tier) {
		writeErr(w, http.StatusBadRequest, "unknown privacy tier")
		return
	}
	sess.ChoosePrivacyTier(r.Context(), req.Tier)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) chooseSpecialist(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Specialist models.SpecialistKey `json:"specialist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !models.ValidSpecialistKey(req.Specialist) {
		writeErr(w, http.StatusBadRequest, "unknown specialist")
		return
	}
	sess.ChooseSpecialist(req.Specialist)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) chooseTimeSlot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, found := s.catalog.SlotByLabel(req.Slot); !found {
		writeErr(w, http.StatusBadRequest, "unknown time slot")
		return
	}
	sess.ChooseTimeSlot(req.Slot)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) choosePostMatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Action orchestrator.PostMatchAction `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Action {
	case orchestrator.PostMatchExperience, orchestrator.PostMatchHabit:
	default:
		writeErr(w, http.StatusBadRequest, "unknown action")
		return
	}
	sess.ChoosePostMatchAction(req.Action)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Event string              `json:"event"`
		Code  speech.CaptureError `json:"code,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Event {
	case "start":
		sess.StartCapture()
	case "stop":
		sess.StopCapture()
	case "failed":
		sess.CaptureFailed(req.Code)
	default:
		writeErr(w, http.StatusBadRequest, "event must be start, stop or failed")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	tl := sess.Timeline()
	writeJSON(w, http.StatusOK, tl.Recent(tl.Len()))
}

// --- Catalog ---

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"specialists": models.SpecialistOptions,
		"time_slots":  s.catalog.TimeSlots,
	})
}

// --- Habits ---

func (s *Server) listHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := s.store.ListHabits(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

func (s *Server) createHabit(w http.ResponseWriter, r *http.Request) {
	var h models.HabitEntry
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(h.Title) == "" {
		writeErr(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.store.CreateHabit(r.Context(), &h); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) getHabit(w http.ResponseWriter, r *http.Request) {
	h, err := s.store.GetHabit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) toggleHabit(w http.ResponseWriter, r *http.Request) {
	h, err := s.store.ToggleHabit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) deleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHabit(r.Context(), r.PathValue("id")); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Scheduled sessions ---

func (s *Server) listSchedule(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListScheduledSessions(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createScheduled(w http.ResponseWriter, r *http.Request) {
	var sc models.ScheduledSession
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if sc.TherapistName == "" || sc.DatetimeLabel == "" {
		writeErr(w, http.StatusBadRequest, "therapist name and datetime are required")
		return
	}
	if sc.Status == "" {
		sc.Status = models.ScheduleStatusScheduled
	}
	if err := s.store.CreateScheduledSession(r.Context(), &sc); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) getScheduled(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScheduledSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Datetime string `json:"datetime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Datetime == "" {
		writeErr(w, http.StatusBadRequest, "datetime is required")
		return
	}
	sc, err := s.store.RescheduleSession(r.Context(), r.PathValue("id"), req.Datetime)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.ConfirmSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreErr maps "not found" store errors to 404.
func writeStoreErr(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	writeErr(w, http.StatusInternalServerError, err.Error())
}
