package dialogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mindbridge/intake/internal/backend"
)

// TTSConfig configures the ElevenLabs text-to-speech proxy.
type TTSConfig struct {
	APIKey  string
	VoiceID string
}

// Server exposes the local dialogue engine over the intake wire contract,
// mirroring the hosted backend's routes.
type Server struct {
	engine *Engine
	tts    TTSConfig
	log    *slog.Logger
}

// NewServer creates the backend HTTP server.
func NewServer(engine *Engine, tts TTSConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, tts: tts, log: log}
}

// Router returns an http.Handler for the backend routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /voice/intake", s.intake)
	mux.HandleFunc("POST /voice/crisis", s.crisis)
	mux.HandleFunc("POST /voice/tts", s.synthesize)
	mux.HandleFunc("GET /voice/session/{id}", s.sessionStatus)
	mux.HandleFunc("DELETE /voice/session/{id}", s.endSession)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
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

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) intake(w http.ResponseWriter, r *http.Request) {
	var req backend.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}

	resp, err := s.engine.Process(r.Context(), sessionID, req.Message)
	if err != nil {
		s.log.Error("intake processing failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("intake turn", "session_id", sessionID, "stage", resp.Stage, "complete", resp.IntakeComplete)
	writeJSON(w, http.StatusOK, resp)
}

// crisis acknowledges the assessment call. The hosted backend runs a full
// crisis agent here; locally the engine has already escalated via
// force_crisis, so this endpoint only needs to succeed.
func (s *Server) crisis(w http.ResponseWriter, r *http.Request) {
	var req backend.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.log.Info("crisis assessment", "session_id", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{"risk_level": "assessed"})
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if s.tts.APIKey == "" {
		writeError(w, http.StatusServiceUnavailable, "TTS not configured (set elevenlabs.api_key)")
		return
	}

	audio, err := s.fetchSpeech(r, req.Text)
	if err != nil {
		s.log.Error("tts failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to generate speech: %v", err))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// fetchSpeech calls the ElevenLabs REST API.
func (s *Server) fetchSpeech(r *http.Request, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
	})
	if err != nil {
		return nil, err
	}

	url := "https://api.elevenlabs.io/v1/text-to-speech/" + s.tts.VoiceID
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.tts.APIKey)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("elevenlabs: unexpected status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.engine.mu.Lock()
	c, ok := s.engine.convs[id]
	var stage string
	var complete bool
	var count int
	if ok {
		stage = string(c.stage)
		complete = c.complete
		count = len(c.history)
	}
	s.engine.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":          true,
		"stage":           stage,
		"intake_complete": complete,
		"message_count":   count,
	})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.engine.EndSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}
