package models

// TurnRequest is the body of POST /v1/chat.
type TurnRequest struct {
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}

// TurnResponse is returned on all paths (success, degraded, timeout); the
// thread id is always populated so callers can persist it and retry.
type TurnResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id"`
}
