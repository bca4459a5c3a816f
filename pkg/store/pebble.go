package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

var db *pebble.DB
var dbPath string

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_history_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("history_db_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("history_db_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("history_db_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func msgKey(threadID string, ts int64, s uint64) string {
	return fmt.Sprintf("thread:%s:msg:%020d-%06d", threadID, ts, s)
}

// SaveMessage appends a message to a thread mirror by inserting a new key
// with a sortable timestamp prefix. Messages are ordered by insertion time.
func SaveMessage(threadID string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	ts := msg.TS
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
		msg.TS = ts
	}
	s := atomic.AddUint64(&seq, 1)
	key := msgKey(threadID, ts, s)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "thread", threadID, "key", key, "error", err)
		return err
	}
	logger.Debug("message_mirrored", "thread", threadID, "key", key, "msg_id", msg.ID)
	return nil
}

// ListMessages returns mirrored messages for a thread in insertion order.
// A limit <= 0 means no limit.
func ListMessages(threadID string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("thread:" + threadID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid mirrored message at %s: %w", iter.Key(), err)
		}
		if m.Deleted {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// SaveThread writes thread metadata.
func SaveThread(t models.Thread) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	if t.ID == "" {
		return fmt.Errorf("thread id required")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	return db.Set([]byte("threadmeta:"+t.ID), data, pebble.Sync)
}

// GetThread returns thread metadata by id.
func GetThread(id string) (models.Thread, error) {
	var t models.Thread
	if db == nil {
		return t, fmt.Errorf("store not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte("threadmeta:" + id))
	if err != nil {
		return t, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid thread metadata: %w", err)
	}
	return t, nil
}

// ListThreads returns all non-deleted thread metadata entries.
func ListThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("threadmeta:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if t.Deleted {
			continue
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

// DeleteThread clears a thread mirror: marks the metadata deleted and
// removes its mirrored messages. The backend thread is untouched; the next
// turn simply starts a new one.
func DeleteThread(id string) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	t, err := GetThread(id)
	if err != nil {
		return err
	}
	t.Deleted = true
	t.DeletedTS = time.Now().UTC().UnixNano()
	if err := SaveThread(t); err != nil {
		return err
	}
	lo := []byte("thread:" + id + ":msg:")
	hi := append(append([]byte(nil), lo...), 0xff)
	if err := db.DeleteRange(lo, hi, pebble.Sync); err != nil {
		return err
	}
	logger.Info("thread_mirror_cleared", "thread", id)
	return nil
}

// PruneBefore deletes mirrored messages older than cutoff across all
// threads and returns the number of removed entries. Used by the retention
// runner.
func PruneBefore(cutoff time.Time, dryRun bool) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	cutoffNs := cutoff.UTC().UnixNano()
	var victims [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		ts, ok := tsFromKey(string(key))
		if !ok {
			continue
		}
		if ts < cutoffNs {
			victims = append(victims, append([]byte(nil), key...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if dryRun {
		return len(victims), nil
	}
	for _, k := range victims {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

// tsFromKey parses the timestamp out of a "thread:<id>:msg:<ts>-<seq>" key.
func tsFromKey(key string) (int64, bool) {
	i := strings.LastIndex(key, ":msg:")
	if i < 0 {
		return 0, false
	}
	rest := key[i+len(":msg:"):]
	j := strings.IndexByte(rest, '-')
	if j < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest[:j], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
