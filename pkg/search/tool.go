package search

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolName is the function name the assistant uses to request a web search.
const ToolName = "web_search"

// toolArgs is the JSON argument shape of a web_search tool call.
type toolArgs struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains"`
}

// ToolHandler adapts the client into the orchestrator's tool contract:
// parse the call arguments, run one search, and return the normalized
// payload as the tool output string.
func (c *Client) ToolHandler(ctx context.Context, args json.RawMessage) (string, error) {
	var a toolArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	resp := c.Search(ctx, a.Query, a.MaxResults, a.IncludeDomains)
	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to encode search results: %w", err)
	}
	return string(out), nil
}
