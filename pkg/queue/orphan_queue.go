package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"craftai/pkg/storage"
)

const (
	defaultListKey = "craftai:orphans"
	maxAttempts    = 3
	popTimeout     = 2 * time.Second
	deleteTimeout  = 10 * time.Second
)

// OrphanQueue collects object-storage keys whose ledger append failed after
// the artifact was already uploaded. A janitor loop drains the queue and
// deletes the objects so storage does not drift from the ledger.
type OrphanQueue struct {
	client  *redis.Client
	listKey string
}

// NewOrphanQueue creates a Redis-list backed queue.
func NewOrphanQueue(addr, password, listKey string) (*OrphanQueue, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("orphan queue redis addr required")
	}
	listKey = strings.TrimSpace(listKey)
	if listKey == "" {
		listKey = defaultListKey
	}
	return &OrphanQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		listKey: listKey,
	}, nil
}

// Enqueue records a storage key for later deletion.
func (q *OrphanQueue) Enqueue(ctx context.Context, storageKey string) error {
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		return errors.New("storage key required")
	}
	if err := q.client.LPush(ctx, q.listKey, encodeEntry(storageKey, 0)).Err(); err != nil {
		return fmt.Errorf("enqueue orphan: %w", err)
	}
	return nil
}

// Len returns the number of pending orphans.
func (q *OrphanQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("orphan queue length: %w", err)
	}
	return n, nil
}

// Run drains the queue until ctx is cancelled, deleting each orphaned object
// from store. Failed deletions are requeued up to maxAttempts; exhausted
// entries are logged and dropped.
func (q *OrphanQueue) Run(ctx context.Context, store storage.ObjectStore) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := q.client.BRPop(ctx, popTimeout, q.listKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("orphan queue pop failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(popTimeout):
			}
			continue
		}
		// BRPop returns [list, value].
		if len(entry) != 2 {
			continue
		}
		q.reap(ctx, store, entry[1])
	}
}

func (q *OrphanQueue) reap(ctx context.Context, store storage.ObjectStore, raw string) {
	storageKey, attempts := decodeEntry(raw)
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	err := store.Delete(deleteCtx, storageKey)
	cancel()
	if err == nil {
		slog.Info("reclaimed orphaned object", "key", storageKey)
		return
	}
	attempts++
	if attempts >= maxAttempts {
		slog.Error("giving up on orphaned object", "key", storageKey, "attempts", attempts, "err", err)
		return
	}
	slog.Warn("orphan delete failed, requeueing", "key", storageKey, "attempts", attempts, "err", err)
	if pushErr := q.client.LPush(ctx, q.listKey, encodeEntry(storageKey, attempts)).Err(); pushErr != nil {
		slog.Error("requeue orphan failed", "key", storageKey, "err", pushErr)
	}
}

func encodeEntry(storageKey string, attempts int) string {
	return strconv.Itoa(attempts) + "|" + storageKey
}

func decodeEntry(raw string) (string, int) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return raw, 0
	}
	attempts, err := strconv.Atoi(parts[0])
	if err != nil || attempts < 0 {
		return parts[1], 0
	}
	return parts[1], attempts
}
