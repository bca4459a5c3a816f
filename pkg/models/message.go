package models

type Message struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	// Role is "user" or "assistant"
	Role string `json:"role"`
	TS   int64  `json:"ts"`
	Body string `json:"body,omitempty"`
	// Deleted flag; soft-delete implemented as an appended tombstone version
	Deleted bool `json:"deleted,omitempty"`
}
