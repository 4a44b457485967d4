package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// IntakeRequest is the wire request for the dialogue and crisis endpoints.
type IntakeRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// IntakeResponse is the dialogue backend's reply. Every field is optional on
// the wire; absent fields decode to zero values, never an error.
type IntakeResponse struct {
	Response          string `json:"response,omitempty"`
	Stage             string `json:"stage,omitempty"`
	IntakeComplete    bool   `json:"intake_complete,omitempty"`
	ForceCrisis       bool   `json:"force_crisis,omitempty"`
	SkipPrivacyPrompt bool   `json:"skip_privacy_prompt,omitempty"`
}

// Client is the orchestrator's view of the intake/crisis/TTS backend.
type Client interface {
	Intake(ctx context.Context, req IntakeRequest) (*IntakeResponse, error)
	Crisis(ctx context.Context, req IntakeRequest) error
	Synthesize(ctx context.Context, text string) ([]byte, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Config holds the explicit configuration that replaces the original's
// process-wide globals.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient implements Client over the REST contract.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the backend at cfg.BaseURL.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Intake posts the user's message to the dialogue backend.
func (c *HTTPClient) Intake(ctx context.Context, req IntakeRequest) (*IntakeResponse, error) {
	var resp IntakeResponse
	if err := c.postJSON(ctx, "/voice/intake", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Crisis runs the crisis-assessment call. The response body is not
// interpreted beyond success or failure of the call.
func (c *HTTPClient) Crisis(ctx context.Context, req IntakeRequest) error {
	return c.postJSON(ctx, "/voice/crisis", req, nil)
}

// Synthesize converts text to a binary audio payload.
func (c *HTTPClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voice/tts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("tts request: unexpected status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// EndSession tells the backend to tear down the session. Fire-and-forget:
// callers typically ignore the error.
func (c *HTTPClient) EndSession(ctx context.Context, sessionID string) error {
	u := c.baseURL + "/voice/session/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("end session: unexpected status %d", res.StatusCode)
	}
	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", path, res.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parse response: %w", path, err)
	}
	return nil
}
