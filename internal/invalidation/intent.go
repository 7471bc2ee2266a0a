package invalidation

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Operation is the kind of cache mutation an intent requests.
type Operation string

const (
	// OpDelete removes the cache entry.
	OpDelete Operation = "delete"
	// OpUpdate writes a new value into the cache entry.
	OpUpdate Operation = "update"
	// OpDoubleDelete is the delayed second delete of the double-delete
	// pattern; its execution is mechanically identical to OpDelete.
	OpDoubleDelete Operation = "double_delete"
)

// Intent is a cache invalidation request emitted by write-path business
// logic after its transaction commits. Intents due immediately execute on a
// background worker; delayed intents are persisted to the durable delay
// queue until their due time.
//
// The ID gives each intent a distinct identity inside the delay queue's
// sorted set, so two intents for the same key and operation never collapse
// into one member.
type Intent struct {
	ID       string    `cbor:"id"`
	CacheKey string    `cbor:"cache_key"`
	Op       Operation `cbor:"op"`
	Value    []byte    `cbor:"value,omitempty"`
	DueAt    int64     `cbor:"due_at"` // epoch milliseconds
}

// Delete builds an intent that removes the cache entry immediately.
func Delete(cacheKey string) Intent {
	return Intent{
		ID:       uuid.NewString(),
		CacheKey: cacheKey,
		Op:       OpDelete,
		DueAt:    time.Now().UnixMilli(),
	}
}

// DoubleDelete builds the delayed second delete of the double-delete
// pattern. The first delete is issued inline by the publisher (see
// Bus.PublishDoubleDelete); this intent closes the window where a concurrent
// reader could repopulate the cache with a stale value in between.
func DoubleDelete(cacheKey string, delay time.Duration) Intent {
	return Intent{
		ID:       uuid.NewString(),
		CacheKey: cacheKey,
		Op:       OpDoubleDelete,
		DueAt:    time.Now().Add(delay).UnixMilli(),
	}
}

// Update builds an intent that writes value into the cache entry
// immediately.
func Update(cacheKey string, value []byte) Intent {
	return Intent{
		ID:       uuid.NewString(),
		CacheKey: cacheKey,
		Op:       OpUpdate,
		Value:    value,
		DueAt:    time.Now().UnixMilli(),
	}
}

// Due reports whether the intent's execution time has arrived.
func (i Intent) Due(now time.Time) bool {
	return i.DueAt <= now.UnixMilli()
}

// RemainingDelay returns how long until the intent is due, or zero if it
// already is.
func (i Intent) RemainingDelay(now time.Time) time.Duration {
	remaining := time.Duration(i.DueAt-now.UnixMilli()) * time.Millisecond
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Encode serializes the intent for storage as a delay-queue member.
func (i Intent) Encode() ([]byte, error) {
	data, err := cbor.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent %s: %w", i.ID, err)
	}
	return data, nil
}

// DecodeIntent deserializes a delay-queue member back into an intent.
func DecodeIntent(data []byte) (Intent, error) {
	var i Intent
	if err := cbor.Unmarshal(data, &i); err != nil {
		return Intent{}, fmt.Errorf("failed to decode intent: %w", err)
	}
	return i, nil
}

func (i Intent) String() string {
	return fmt.Sprintf("intent{id=%s op=%s key=%s due_at=%d}", i.ID, i.Op, i.CacheKey, i.DueAt)
}
