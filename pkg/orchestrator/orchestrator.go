package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatrelay/pkg/assistant"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
)

// Sentinel replies returned on degraded paths. These are normal replies,
// not errors; the caller must be able to tell a timeout apart from a
// failed run.
const (
	TimeoutReply  = "The assistant is taking longer than expected. Please try again."
	NoReplyFound  = "No valid response received."
	degradedReply = "The assistant run ended unexpectedly (%s). Please try again."
)

const (
	defaultPollInterval = 1 * time.Second
	defaultPollMaxTicks = 100
)

// Turn is the result of one conversation turn. ThreadID is populated even
// on failure paths so callers can persist it and retry on the same thread.
type Turn struct {
	Reply    string
	ThreadID string
}

// Backend is the slice of the assistant client the orchestrator drives.
type Backend interface {
	CreateThread(ctx context.Context) (*assistant.Thread, error)
	CreateMessage(ctx context.Context, threadID, role, content string) (*assistant.Message, error)
	CreateRun(ctx context.Context, threadID string) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) (*assistant.Run, error)
	ListMessages(ctx context.Context, threadID string, limit int) (*assistant.MessageList, error)
}

// Orchestrator drives exactly one assistant run per RunTurn call to a
// terminal state, transparently satisfying tool-call requests.
type Orchestrator struct {
	backend      Backend
	tools        *Registry
	pollInterval time.Duration
	pollMaxTicks int
}

// Option tunes an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the fixed inter-poll backoff.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPollBudget sets the bounded number of poll ticks per run.
func WithPollBudget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pollMaxTicks = n
		}
	}
}

func New(backend Backend, tools *Registry, opts ...Option) *Orchestrator {
	if tools == nil {
		tools = NewRegistry()
	}
	o := &Orchestrator{
		backend:      backend,
		tools:        tools,
		pollInterval: defaultPollInterval,
		pollMaxTicks: defaultPollMaxTicks,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewThread creates an empty backend thread without running a turn, for
// callers that want a thread id up front.
func (o *Orchestrator) NewThread(ctx context.Context) (string, error) {
	t, err := o.backend.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// RunTurn submits the user input on the thread (creating the thread when
// threadID is empty), drives a run to a terminal state servicing tool
// calls, and returns the cleaned reply. The returned Turn carries the
// thread id on every path, including errors after thread creation.
func (o *Orchestrator) RunTurn(ctx context.Context, input, threadID string) (Turn, error) {
	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	if threadID == "" {
		t, err := o.backend.CreateThread(ctx)
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return Turn{}, err
		}
		threadID = t.ID
	}
	turn := Turn{ThreadID: threadID}

	if _, err := o.backend.CreateMessage(ctx, threadID, "user", input); err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return turn, err
	}

	run, err := o.backend.CreateRun(ctx, threadID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return turn, err
	}

	for tick := 0; tick < o.pollMaxTicks; tick++ {
		switch {
		case run.Status == assistant.StatusRequiresAction:
			outputs := o.resolveToolCalls(ctx, run)
			run, err = o.backend.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
			if err != nil {
				metrics.TurnsTotal.WithLabelValues("error").Inc()
				return turn, err
			}
			continue

		case run.Status.Terminal():
			if run.Status == assistant.StatusCompleted {
				reply, err := o.extractReply(ctx, threadID)
				if err != nil {
					metrics.TurnsTotal.WithLabelValues("error").Inc()
					return turn, err
				}
				turn.Reply = reply
				metrics.TurnsTotal.WithLabelValues("ok").Inc()
				return turn, nil
			}
			logger.Warn("run_ended_degraded", "thread", threadID, "run", run.ID, "status", string(run.Status))
			turn.Reply = fmt.Sprintf(degradedReply, run.Status)
			metrics.TurnsTotal.WithLabelValues("degraded").Inc()
			return turn, nil
		}

		// queued or in_progress: fixed backoff, then poll again
		select {
		case <-ctx.Done():
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return turn, ctx.Err()
		case <-time.After(o.pollInterval):
		}
		metrics.PollTicks.Inc()
		run, err = o.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return turn, err
		}
	}

	// Poll budget exhausted while the run is still non-terminal. Polling is
	// abandoned locally; the run is not cancelled remotely.
	logger.Warn("run_poll_budget_exceeded", "thread", threadID, "run", run.ID, "status", string(run.Status))
	turn.Reply = TimeoutReply
	metrics.TurnsTotal.WithLabelValues("timeout").Inc()
	return turn, nil
}

// resolveToolCalls answers the full pending batch: every call id present in
// the request appears exactly once in the outputs regardless of individual
// success or failure. Calls within a batch have no ordering dependency and
// are dispatched concurrently.
func (o *Orchestrator) resolveToolCalls(ctx context.Context, run *assistant.Run) []assistant.ToolOutput {
	var calls []assistant.ToolCall
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		calls = run.RequiredAction.SubmitToolOutputs.ToolCalls
	}
	outputs := make([]assistant.ToolOutput, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call assistant.ToolCall) {
			defer wg.Done()
			outputs[i] = assistant.ToolOutput{
				ToolCallID: call.ID,
				Output:     o.dispatch(ctx, call),
			}
		}(i, call)
	}
	wg.Wait()
	return outputs
}

func (o *Orchestrator) dispatch(ctx context.Context, call assistant.ToolCall) string {
	name := call.Function.Name
	fn, ok := o.tools.Lookup(name)
	if !ok {
		logger.Warn("unknown_tool_requested", "tool", name, "call", call.ID)
		metrics.ToolDispatches.WithLabelValues(name, "unknown").Inc()
		return errorPayload("Unknown tool: " + name)
	}
	out, err := fn(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		logger.Warn("tool_execution_failed", "tool", name, "call", call.ID, "error", err)
		metrics.ToolDispatches.WithLabelValues(name, "error").Inc()
		return errorPayload(err.Error())
	}
	metrics.ToolDispatches.WithLabelValues(name, "ok").Inc()
	return out
}

// extractReply fetches the thread's messages, selects the most recent
// assistant-authored message, and returns its primary text content after
// cleanup. A missing message or empty content yields the NoReplyFound
// sentinel, not an error.
func (o *Orchestrator) extractReply(ctx context.Context, threadID string) (string, error) {
	ml, err := o.backend.ListMessages(ctx, threadID, 20)
	if err != nil {
		return "", err
	}
	// list is newest first
	for _, m := range ml.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "text" && c.Text.Value != "" {
				return CleanReply(c.Text.Value), nil
			}
		}
		break
	}
	return NoReplyFound, nil
}
