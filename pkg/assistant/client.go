package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client is a thin typed client for the assistant backend's thread/run API.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	hc          *http.Client
}

// NewClient builds a backend client from config. Missing credentials are a
// fatal ConfigError; the caller should surface it and exit.
func NewClient(cfg config.AssistantConfig) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		missing = append(missing, "assistant_id")
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Missing: missing}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.RequestTimeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		hc:          &http.Client{Timeout: timeout},
	}, nil
}

// AssistantID returns the configured assistant identifier.
func (c *Client) AssistantID() string { return c.assistantID }

// CreateThread creates a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &t); err != nil {
		return nil, err
	}
	logger.Info("thread_created", "thread", t.ID)
	return &t, nil
}

// CreateMessage appends a message with the given role and text content to
// the thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]any{"role": role, "content": content}
	var m Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateRun starts a run of the configured assistant against the thread.
func (c *Client) CreateRun(ctx context.Context, threadID string) (*Run, error) {
	body := map[string]any{"assistant_id": c.assistantID}
	var r Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &r); err != nil {
		return nil, err
	}
	logger.Info("run_created", "thread", threadID, "run", r.ID, "status", string(r.Status))
	return &r, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var r Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitToolOutputs answers the full tool-call batch of a requires_action
// run in one call, which resumes the run.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	body := map[string]any{"tool_outputs": outputs}
	var r Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", body, &r); err != nil {
		return nil, err
	}
	logger.Info("tool_outputs_submitted", "thread", threadID, "run", runID, "count", len(outputs))
	return &r, nil
}

// ListMessages lists the thread's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) (*MessageList, error) {
	path := "/threads/" + threadID + "/messages"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var ml MessageList
	if err := c.do(ctx, http.MethodGet, path, nil, &ml); err != nil {
		return nil, err
	}
	return &ml, nil
}

// errEnvelope matches the backend's error body shape.
type errEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		detail := ""
		var env errEnvelope
		if jerr := json.Unmarshal(raw, &env); jerr == nil && env.Error.Message != "" {
			detail = env.Error.Message
		} else if len(raw) > 0 && len(raw) < 512 {
			detail = strings.TrimSpace(string(raw))
		}
		logger.Warn("assistant_upstream_error", "method", method, "path", path, "status", res.StatusCode, "detail", detail)
		return &UpstreamError{Status: res.StatusCode, Detail: detail}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
