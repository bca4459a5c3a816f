package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"chatrelay/pkg/assistant"
	"chatrelay/pkg/auth"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/orchestrator"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"
)

var idSeq uint64

// TurnRunner is the orchestrator surface the handlers need.
type TurnRunner interface {
	RunTurn(ctx context.Context, input, threadID string) (orchestrator.Turn, error)
	NewThread(ctx context.Context) (string, error)
}

// Handler returns the service router:
// - POST /v1/chat: run one conversation turn
// - GET  /v1/threads, GET/DELETE /v1/threads/{id}: history mirror threads
// - GET  /v1/messages?thread=<id>&limit=<n>: mirrored messages
func Handler(runner TurnRunner) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/chat", chatHandler(runner)).Methods(http.MethodPost)
	r.HandleFunc("/v1/messages", listMessagesHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/threads", createThreadHandler(runner)).Methods(http.MethodPost)
	r.HandleFunc("/v1/threads", listThreadsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/threads/{id}", getThreadHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/threads/{id}", deleteThreadHandler).Methods(http.MethodDelete)
	return r
}

func chatHandler(runner TurnRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(req.Input) == "" {
			utils.JSONError(w, http.StatusBadRequest, "input required")
			return
		}

		email := auth.EmailFromContext(r.Context())
		turn, err := runner.RunTurn(r.Context(), req.Input, req.ThreadID)
		if err != nil {
			// upstream failures are a gateway problem from the caller's view
			status := http.StatusInternalServerError
			var ue *assistant.UpstreamError
			if errors.As(err, &ue) {
				status = http.StatusBadGateway
			}
			logger.Error("turn_failed", "thread", turn.ThreadID, "error", err)
			// surface the thread id when one was created so the caller can retry
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(struct {
				Error    string `json:"error"`
				ThreadID string `json:"thread_id,omitempty"`
			}{Error: err.Error(), ThreadID: turn.ThreadID})
			return
		}

		mirrorTurn(email, req, turn)
		_ = utils.JSONWrite(w, http.StatusOK, models.TurnResponse{Reply: turn.Reply, ThreadID: turn.ThreadID})
	}
}

// mirrorTurn writes the user message and the reply into the server-side
// history mirror. Mirror failures are logged, never surfaced; the mirror is
// display state, the backend thread stays the source of truth.
func mirrorTurn(email string, req models.TurnRequest, turn orchestrator.Turn) {
	if !store.Ready() {
		return
	}
	now := time.Now().UTC().UnixNano()
	if req.ThreadID == "" {
		title := req.Input
		if len(title) > 64 {
			title = title[:64]
		}
		t := models.Thread{ID: turn.ThreadID, Title: title, Owner: email, CreatedTS: now, UpdatedTS: now}
		if err := store.SaveThread(t); err != nil {
			logger.Warn("thread_mirror_failed", "thread", turn.ThreadID, "error", err)
		}
	} else if t, err := store.GetThread(turn.ThreadID); err == nil {
		t.UpdatedTS = now
		_ = store.SaveThread(t)
	}
	um := models.Message{ID: genID("msg"), Thread: turn.ThreadID, Role: "user", TS: now, Body: req.Input}
	if err := store.SaveMessage(turn.ThreadID, um); err != nil {
		logger.Warn("message_mirror_failed", "thread", turn.ThreadID, "error", err)
	}
	am := models.Message{ID: genID("msg"), Thread: turn.ThreadID, Role: "assistant", TS: now + 1, Body: turn.Reply}
	if err := store.SaveMessage(turn.ThreadID, am); err != nil {
		logger.Warn("message_mirror_failed", "thread", turn.ThreadID, "error", err)
	}
}

// createThreadHandler starts an empty backend thread so the client has a
// thread id before the first turn.
func createThreadHandler(runner TurnRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		id, err := runner.NewThread(r.Context())
		if err != nil {
			status := http.StatusInternalServerError
			var ue *assistant.UpstreamError
			if errors.As(err, &ue) {
				status = http.StatusBadGateway
			}
			logger.Error("thread_create_failed", "error", err)
			utils.JSONError(w, status, err.Error())
			return
		}
		now := time.Now().UTC().UnixNano()
		title := req.Title
		if len(title) > 64 {
			title = title[:64]
		}
		t := models.Thread{ID: id, Title: title, Owner: auth.EmailFromContext(r.Context()), CreatedTS: now, UpdatedTS: now}
		if store.Ready() {
			if err := store.SaveThread(t); err != nil {
				logger.Warn("thread_mirror_failed", "thread", id, "error", err)
			}
		}
		_ = utils.JSONWrite(w, http.StatusCreated, t)
	}
}

func listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread")
	if threadID == "" {
		utils.JSONError(w, http.StatusBadRequest, "thread query parameter required")
		return
	}
	if !ownsThread(w, r, threadID) {
		return
	}
	limit := 0
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			limit = lim
		}
	}
	msgs, err := store.ListMessages(threadID, limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	logger.Info("messages_list", "thread", threadID, "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: threadID, Messages: msgs})
}

func listThreadsHandler(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	all, err := store.ListThreads()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]models.Thread, 0, len(all))
	for _, t := range all {
		if email == "" || t.Owner == email {
			out = append(out, t)
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: out})
}

func getThreadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !ownsThread(w, r, id) {
		return
	}
	t, err := store.GetThread(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func deleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !ownsThread(w, r, id) {
		return
	}
	if err := store.DeleteThread(id); err != nil {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownsThread enforces that non-admin callers only touch their own threads.
func ownsThread(w http.ResponseWriter, r *http.Request, id string) bool {
	if r.Header.Get("X-Role-Name") == "admin" {
		return true
	}
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	t, err := store.GetThread(id)
	if err != nil {
		// unknown to the mirror; let the handler report not-found
		return true
	}
	if t.Owner != "" && t.Owner != email {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func genID(prefix string) string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, s)
}
