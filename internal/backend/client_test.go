package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntake_DecodesFullResponse(t *testing.T) {
	var got IntakeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/voice/intake", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": "Tell me more about that.",
			"stage": "understanding",
			"intake_complete": false,
			"force_crisis": true,
			"skip_privacy_prompt": true
		}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	resp, err := c.Intake(context.Background(), IntakeRequest{
		SessionID: "sess-1",
		UserID:    "user-1",
		Message:   "I feel overwhelmed",
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "I feel overwhelmed", got.Message)

	assert.Equal(t, "Tell me more about that.", resp.Response)
	assert.Equal(t, "understanding", resp.Stage)
	assert.False(t, resp.IntakeComplete)
	assert.True(t, resp.ForceCrisis)
	assert.True(t, resp.SkipPrivacyPrompt)
}

func TestIntake_AbsentFieldsDecodeToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": "Hi there."}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	resp, err := c.Intake(context.Background(), IntakeRequest{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi there.", resp.Response)
	assert.Empty(t, resp.Stage)
	assert.False(t, resp.IntakeComplete)
	assert.False(t, resp.ForceCrisis)
	assert.False(t, resp.SkipPrivacyPrompt)
}

func TestIntake_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := c.Intake(context.Background(), IntakeRequest{Message: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestIntake_MalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": `))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := c.Intake(context.Background(), IntakeRequest{Message: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestCrisis_IgnoresResponseBody(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/voice/crisis", r.URL.Path)
		_, _ = w.Write([]byte(`{"risk_level": "low", "extra": ["ignored"]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	err := c.Crisis(context.Background(), IntakeRequest{SessionID: "sess-1", Message: "checking in"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCrisis_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	err := c.Crisis(context.Background(), IntakeRequest{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestSynthesize_ReturnsBinaryPayload(t *testing.T) {
	audio := []byte{0xff, 0xfb, 0x90, 0x00, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voice/tts", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello, welcome back.", body["text"])
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	got, err := c.Synthesize(context.Background(), "Hello, welcome back.")
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestSynthesize_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}

func TestEndSession_DeletesByID(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	require.NoError(t, c.EndSession(context.Background(), "sess with space"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/voice/session/sess with space", path)
}

func TestEndSession_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	err := c.EndSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
