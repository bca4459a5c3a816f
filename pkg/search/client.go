package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
)

const (
	defaultBaseURL = "https://api.tavily.com/search"
	maxResultCap   = 10
)

// Result is one normalized search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Response is the normalized adapter payload. Error is set instead of
// failing outright so the payload can still be submitted as a tool output
// and the assistant run can continue.
type Response struct {
	Query          string   `json:"query"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	Count          int      `json:"count"`
	Results        []Result `json:"results"`
	Error          string   `json:"error,omitempty"`
}

// Client queries the search provider and normalizes its results.
type Client struct {
	baseURL                string
	apiKey                 string
	defaultDomains         []string
	emptyMeansUnrestricted bool
	hc                     *http.Client
}

// NewClient builds a search client from config. The search key is optional
// at startup; a missing key surfaces per-call as an error payload.
func NewClient(cfg config.SearchConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:                base,
		apiKey:                 cfg.APIKey,
		defaultDomains:         append([]string{}, cfg.DefaultDomains...),
		emptyMeansUnrestricted: cfg.EmptyMeansUnrestricted,
		hc:                     &http.Client{Timeout: timeout},
	}
}

// providerRequest is the provider wire request.
type providerRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

// providerResult tolerates the provider's field-name drift: some responses
// carry "content", others "snippet".
type providerResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Snippet string `json:"snippet"`
}

type providerResponse struct {
	Results []providerResult `json:"results"`
}

// ClampMaxResults bounds n to [1, 10]; out-of-range values are clamped,
// not rejected.
func ClampMaxResults(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxResultCap {
		return maxResultCap
	}
	return n
}

// Search runs one query against the provider. Provider failures and invalid
// requests come back inside the Response (Error field), never as a Go error,
// so the orchestrator can always submit a valid tool output.
func (c *Client) Search(ctx context.Context, query string, maxResults int, includeDomains []string) Response {
	query = strings.TrimSpace(query)
	if query == "" {
		metrics.SearchRequests.WithLabelValues("invalid").Inc()
		return Response{Error: "invalid request: query must be a non-empty string"}
	}
	maxResults = ClampMaxResults(maxResults)

	domains := includeDomains
	if len(domains) == 0 && !c.emptyMeansUnrestricted {
		domains = c.defaultDomains
	}

	resp := Response{Query: query, IncludeDomains: domains}

	if strings.TrimSpace(c.apiKey) == "" {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = "search provider not configured"
		return resp
	}

	body, err := json.Marshal(providerRequest{
		APIKey:         c.apiKey,
		Query:          query,
		MaxResults:     maxResults,
		IncludeDomains: domains,
	})
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = fmt.Sprintf("failed to encode search request: %v", err)
		return resp
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = fmt.Sprintf("failed to build search request: %v", err)
		return resp
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		logger.Warn("search_request_failed", "query", query, "error", err)
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = fmt.Sprintf("search request failed: %v", err)
		return resp
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		logger.Warn("search_provider_error", "query", query, "status", res.StatusCode)
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = fmt.Sprintf("search provider returned status %d", res.StatusCode)
		return resp
	}

	var pr providerResponse
	if err := json.NewDecoder(res.Body).Decode(&pr); err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		resp.Error = fmt.Sprintf("failed to decode search response: %v", err)
		return resp
	}

	// truncate, never re-sort
	if len(pr.Results) > maxResults {
		pr.Results = pr.Results[:maxResults]
	}
	for _, r := range pr.Results {
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		resp.Results = append(resp.Results, Result{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	resp.Count = len(resp.Results)
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	logger.Info("search_completed", "query", query, "count", resp.Count)
	return resp
}
