package models

type Thread struct {
	// ID is the backend thread identifier; the mirror stores no structure
	// beyond it, all message history for the thread lives server-side in
	// the assistant backend.
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Owner is the whitelisted email the thread belongs to
	Owner string `json:"owner,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time thread activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// Deleted marks a thread mirror as cleared ("clear chat"); the backend
	// thread itself is never deleted, the next turn simply starts a new one
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}
