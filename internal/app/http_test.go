package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatrelay/internal/retention"
	"chatrelay/pkg/config"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

func TestRetentionRunHandler(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	old := time.Now().UTC().Add(-72 * time.Hour).UnixNano()
	_ = store.SaveMessage("t1", models.Message{ID: "old", Thread: "t1", Role: "user", TS: old, Body: "stale"})
	retention.SetConfig(config.RetentionConfig{Enabled: true, Period: "24h"})

	// non-admin callers are rejected
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/retention/run", nil)
	rr := httptest.NewRecorder()
	retentionRunHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	// wrong method
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/retention/run", nil)
	req.Header.Set("X-Role-Name", "admin")
	rr = httptest.NewRecorder()
	retentionRunHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}

	// admin trigger sweeps
	req = httptest.NewRequest(http.MethodPost, "/v1/admin/retention/run", nil)
	req.Header.Set("X-Role-Name", "admin")
	rr = httptest.NewRecorder()
	retentionRunHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if msgs, _ := store.ListMessages("t1", 0); len(msgs) != 0 {
		t.Fatalf("sweep did not prune: %v", msgs)
	}
}
