package store

import (
	"testing"
	"time"

	"chatrelay/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestSaveAndListMessages(t *testing.T) {
	openTestStore(t)

	base := time.Now().UTC().UnixNano()
	for i, body := range []string{"first", "second", "third"} {
		m := models.Message{ID: "m" + body, Thread: "t1", Role: "user", TS: base + int64(i), Body: body}
		if err := SaveMessage("t1", m); err != nil {
			t.Fatalf("save %s: %v", body, err)
		}
	}

	msgs, err := ListMessages("t1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Body != want {
			t.Fatalf("msgs[%d] = %q, want %q (insertion order)", i, msgs[i].Body, want)
		}
	}

	limited, err := ListMessages("t1", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[1].Body != "second" {
		t.Fatalf("limit=2 returned %v", limited)
	}

	other, err := ListMessages("t2", 0)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("foreign thread leaked messages: %v", other)
	}
}

func TestListSkipsDeletedMessages(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC().UnixNano()
	_ = SaveMessage("t1", models.Message{ID: "a", Thread: "t1", Role: "user", TS: now, Body: "keep"})
	_ = SaveMessage("t1", models.Message{ID: "b", Thread: "t1", Role: "user", TS: now + 1, Body: "gone", Deleted: true})

	msgs, err := ListMessages("t1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "keep" {
		t.Fatalf("deleted message surfaced: %v", msgs)
	}
}

func TestThreadMetadata(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC().UnixNano()
	in := models.Thread{ID: "th_1", Title: "greetings", Owner: "alice@example.com", CreatedTS: now, UpdatedTS: now}
	if err := SaveThread(in); err != nil {
		t.Fatalf("save thread: %v", err)
	}

	out, err := GetThread("th_1")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if out.Title != "greetings" || out.Owner != "alice@example.com" {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}

	if err := SaveThread(models.Thread{}); err == nil {
		t.Fatal("empty thread id must be rejected")
	}

	if _, err := GetThread("missing"); err == nil {
		t.Fatal("unknown thread must error")
	}
}

func TestDeleteThread(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC().UnixNano()
	_ = SaveThread(models.Thread{ID: "th_1", Title: "a", CreatedTS: now, UpdatedTS: now})
	_ = SaveThread(models.Thread{ID: "th_2", Title: "b", CreatedTS: now, UpdatedTS: now})
	_ = SaveMessage("th_1", models.Message{ID: "m1", Thread: "th_1", Role: "user", TS: now, Body: "hello"})
	_ = SaveMessage("th_1", models.Message{ID: "m2", Thread: "th_1", Role: "assistant", TS: now + 1, Body: "hi"})

	if err := DeleteThread("th_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	msgs, err := ListMessages("th_1", 0)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived clear: %v", msgs)
	}

	got, err := GetThread("th_1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if !got.Deleted || got.DeletedTS == 0 {
		t.Fatalf("thread not tombstoned: %+v", got)
	}

	threads, err := ListThreads()
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != "th_2" {
		t.Fatalf("deleted thread still listed: %v", threads)
	}

	if err := DeleteThread("missing"); err == nil {
		t.Fatal("deleting unknown thread must error")
	}
}

func TestPruneBefore(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour).UnixNano()
	fresh := now.UnixNano()
	_ = SaveMessage("t1", models.Message{ID: "old1", Thread: "t1", Role: "user", TS: old, Body: "stale"})
	_ = SaveMessage("t1", models.Message{ID: "old2", Thread: "t1", Role: "assistant", TS: old + 1, Body: "stale2"})
	_ = SaveMessage("t1", models.Message{ID: "new1", Thread: "t1", Role: "user", TS: fresh, Body: "fresh"})

	cutoff := now.Add(-24 * time.Hour)

	n, err := PruneBefore(cutoff, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if n != 2 {
		t.Fatalf("dry run counted %d, want 2", n)
	}
	if msgs, _ := ListMessages("t1", 0); len(msgs) != 3 {
		t.Fatalf("dry run deleted data: %v", msgs)
	}

	n, err = PruneBefore(cutoff, false)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	msgs, err := ListMessages("t1", 0)
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "fresh" {
		t.Fatalf("wrong survivors: %v", msgs)
	}
}

func TestTsFromKey(t *testing.T) {
	ts, ok := tsFromKey("thread:abc:msg:00000000001234567890-000001")
	if !ok || ts != 1234567890 {
		t.Fatalf("tsFromKey = %d %v", ts, ok)
	}
	if _, ok := tsFromKey("threadmeta:abc"); ok {
		t.Fatal("meta key parsed as message key")
	}
	if _, ok := tsFromKey("thread:abc:msg:garbage"); ok {
		t.Fatal("garbage key parsed")
	}
}
