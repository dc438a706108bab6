package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/relay/internal/core/domain"
)

// DeadLetter is a dropped or rejected request captured for inspection.
type DeadLetter struct {
	ID        string         `json:"id"`
	Endpoint  string         `json:"endpoint"`
	Payload   domain.Payload `json:"payload"`
	Retries   int            `json:"retries"`
	Reason    string         `json:"reason"`
	Detail    string         `json:"detail"`
	DroppedAt time.Time      `json:"dropped_at"`
}

// DeadLetterRepo journals requests the engine gave up on. Purely
// diagnostic: entries expire after the retention TTL and delivery
// semantics never depend on them.
type DeadLetterRepo struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewDeadLetterRepo creates a Redis-backed dead-letter journal.
func NewDeadLetterRepo(client *Client, retention time.Duration) *DeadLetterRepo {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &DeadLetterRepo{
		rdb:       client.rdb,
		retention: retention,
	}
}

// Key helpers
func (r *DeadLetterRepo) queueKey() string {
	return "relay:dead_letters"
}

func (r *DeadLetterRepo) entryKey(id string) string {
	return fmt.Sprintf("relay:dead_letter:%s", id)
}

// Record journals a dropped request.
func (r *DeadLetterRepo) Record(ctx context.Context, req *domain.Request, reason, detail string) error {
	entry := DeadLetter{
		ID:        req.ID,
		Endpoint:  req.Endpoint.String(),
		Payload:   req.Payload,
		Retries:   req.Retries,
		Reason:    reason,
		Detail:    detail,
		DroppedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := r.rdb.Set(ctx, r.entryKey(entry.ID), data, r.retention).Err(); err != nil {
		return fmt.Errorf("failed to set dead letter: %w", err)
	}

	// Sorted set scored by drop time so entries list oldest-first.
	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(entry.DroppedAt.Unix()),
		Member: entry.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// GetAll retrieves all journaled entries, oldest first.
func (r *DeadLetterRepo) GetAll(ctx context.Context) ([]*DeadLetter, error) {
	ids, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	entries := make([]*DeadLetter, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, r.entryKey(id)).Bytes()
		if err == redis.Nil {
			// Entry expired but ID still in queue, remove it
			r.rdb.ZRem(ctx, r.queueKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dead letter: %w", err)
		}

		var entry DeadLetter
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// Count returns the number of journaled entries.
func (r *DeadLetterRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// Clear removes every journaled entry.
func (r *DeadLetterRepo) Clear(ctx context.Context) error {
	ids, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange failed: %w", err)
	}
	for _, id := range ids {
		if err := r.rdb.Del(ctx, r.entryKey(id)).Err(); err != nil {
			return fmt.Errorf("failed to delete dead letter: %w", err)
		}
	}
	return r.rdb.Del(ctx, r.queueKey()).Err()
}
