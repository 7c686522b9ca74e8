package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/kayko/internal/errors"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// no longer matches the expected one.
var ErrVersionConflict = &errors.KaykoError{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "version conflict",
}

// Entry is a stored value together with its version token.
// Version 0 means the key has never been written.
type Entry struct {
	Value     json.RawMessage
	Version   int64
	UpdatedAt int64
}

// KV is a key-value service backed by the kv table. Values are JSON documents.
// Every successful write notifies change listeners with the written keys.
type KV struct {
	db *sql.DB

	mu        sync.RWMutex
	listeners []func(keys []string)
}

// NewKV wraps an initialized database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// OnChange registers fn to be called after every successful write.
// fn runs synchronously on the writer's goroutine and must not block.
func (kv *KV) OnChange(fn func(keys []string)) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.listeners = append(kv.listeners, fn)
}

func (kv *KV) notify(keys []string) {
	kv.mu.RLock()
	listeners := append([]func([]string){}, kv.listeners...)
	kv.mu.RUnlock()
	for _, fn := range listeners {
		fn(keys)
	}
}

// Get returns the entries for keys. Missing keys are absent from the result.
func (kv *KV) Get(ctx context.Context, keys ...string) (map[string]Entry, error) {
	out := make(map[string]Entry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := kv.db.QueryContext(ctx,
		"SELECT key, value, version, updated_at FROM kv WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, storageErr(ctx, "kv get", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value string
			e     Entry
		)
		if err := rows.Scan(&key, &value, &e.Version, &e.UpdatedAt); err != nil {
			return nil, storageErr(ctx, "kv get", err)
		}
		e.Value = json.RawMessage(value)
		out[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "kv get", err)
	}
	return out, nil
}

// Set writes every value unconditionally in one transaction, bumping versions.
func (kv *KV) Set(ctx context.Context, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}
	keys := sortedKeys(values)
	now := time.Now().UnixMilli()

	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(ctx, "kv set", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, k := range keys {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO UPDATE SET
			  value = excluded.value,
			  version = kv.version + 1,
			  updated_at = excluded.updated_at
		`, k, string(values[k]), now)
		if err != nil {
			return storageErr(ctx, "kv set", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(ctx, "kv set", err)
	}

	kv.notify(keys)
	return nil
}

// CompareAndSwap writes value only if key is still at version. A version of 0
// expects the key to be absent. Returns the new version, or ErrVersionConflict.
func (kv *KV) CompareAndSwap(ctx context.Context, key string, version int64, value json.RawMessage) (int64, error) {
	now := time.Now().UnixMilli()

	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = kv.db.ExecContext(ctx,
			"INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?) ON CONFLICT(key) DO NOTHING",
			key, string(value), now)
	} else {
		res, err = kv.db.ExecContext(ctx,
			"UPDATE kv SET value = ?, version = version + 1, updated_at = ? WHERE key = ? AND version = ?",
			string(value), now, key, version)
	}
	if err != nil {
		return 0, storageErr(ctx, "kv compare-and-swap", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(ctx, "kv compare-and-swap", err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}

	kv.notify([]string{key})
	return version + 1, nil
}

// Delete removes keys. Missing keys are ignored.
func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	if _, err := kv.db.ExecContext(ctx, "DELETE FROM kv WHERE key IN ("+placeholders+")", args...); err != nil {
		return storageErr(ctx, "kv delete", err)
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	kv.notify(sorted)
	return nil
}

// storageErr classifies a database failure. Context cancellation is reported
// as CANCELLED; everything else means the store is unreachable.
func storageErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	return errors.NewStorageUnavailable(err)
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
