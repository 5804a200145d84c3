package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/internal/resilience"
)

const redisKeyPrefix = "taskmesh:store:"

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger attaches a component-scoped logger.
func WithRedisLogger(logger corekit.Logger) RedisStoreOption {
	return func(s *RedisStore) { s.logger = corekit.WithComponent(logger, "store.redis") }
}

// WithRedisCircuitBreaker wraps every Redis round-trip in cb.Execute,
// matching the optional-injected-breaker convention used throughout the
// gomind orchestration package's Redis-backed stores.
func WithRedisCircuitBreaker(cb *resilience.CircuitBreaker) RedisStoreOption {
	return func(s *RedisStore) { s.breaker = cb }
}

// RedisStore persists each Record as a JSON string (`taskmesh:store:<kind>:<id>`)
// and indexes ids per kind in a sorted set
// (`taskmesh:store:<kind>:index`) scored by a monotonic counter, so Scan
// can page through records in append order without a table scan.
type RedisStore struct {
	client  *redis.Client
	logger  corekit.Logger
	breaker *resilience.CircuitBreaker
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, logger: corekit.NoOpLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) indexKey(kind Kind) string { return redisKeyPrefix + string(kind) + ":index" }
func (s *RedisStore) recordKey(kind Kind, id string) string {
	return redisKeyPrefix + string(kind) + ":" + id
}
func (s *RedisStore) counterKey(kind Kind) string { return redisKeyPrefix + string(kind) + ":seq" }

func (s *RedisStore) run(ctx context.Context, fn func() error) error {
	if s.breaker != nil {
		return s.breaker.Execute(ctx, fn)
	}
	return fn()
}

func (s *RedisStore) Append(ctx context.Context, kind Kind, record *Record) (string, error) {
	var id string
	err := s.run(ctx, func() error {
		seq, err := s.client.Incr(ctx, s.counterKey(kind)).Result()
		if err != nil {
			return fmt.Errorf("store: incr sequence: %w", err)
		}
		id = fmt.Sprintf("%020d-%s", seq, uuid.NewString()[:8])

		now := time.Now().UTC()
		clone := *record
		clone.ID = id
		clone.Kind = kind
		clone.CreatedAt = now
		clone.UpdatedAt = now
		if clone.Data == nil {
			clone.Data = make(map[string]interface{})
		}

		payload, err := json.Marshal(&clone)
		if err != nil {
			return fmt.Errorf("store: marshal record: %w", err)
		}

		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.recordKey(kind, id), payload, 0)
		pipe.ZAdd(ctx, s.indexKey(kind), &redis.Z{Score: float64(seq), Member: id})
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		s.logger.Error("store append failed", map[string]interface{}{"kind": string(kind), "error": err.Error()})
		return "", err
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	var record *Record
	err := s.run(ctx, func() error {
		data, err := s.client.Get(ctx, s.recordKey(kind, id)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		record = &Record{}
		return json.Unmarshal(data, record)
	})
	return record, err
}

func (s *RedisStore) UpdateStatus(ctx context.Context, kind Kind, id, expectedStatus, newStatus string, fields map[string]interface{}) error {
	key := s.recordKey(kind, id)
	// Run under WATCH so the read-check-write is atomic: a concurrent
	// write to key aborts this transaction instead of being overwritten.
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("store: record %s/%s not found", kind, id)
		}
		if err != nil {
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if expectedStatus != "" && record.Status != expectedStatus {
			return &CASError{ID: id, Expected: expectedStatus, Actual: record.Status}
		}
		record.Status = newStatus
		record.UpdatedAt = time.Now().UTC()
		if record.Data == nil {
			record.Data = make(map[string]interface{})
		}
		for k, v := range fields {
			record.Data[k] = v
		}
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}
	return s.run(ctx, func() error {
		return s.client.Watch(ctx, update, key)
	})
}

func (s *RedisStore) Query(ctx context.Context, kind Kind, filter Filter, limit int) ([]*Record, error) {
	var out []*Record
	err := s.run(ctx, func() error {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(kind), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, err := s.Get(ctx, kind, id)
			if err != nil || r == nil {
				continue
			}
			if filter.matches(*r) {
				out = append(out, r)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) Scan(ctx context.Context, kind Kind, sinceID string) ([]*Record, error) {
	var sinceSeq float64
	if sinceID != "" {
		if seq, err := strconv.ParseFloat(sinceID[:20], 64); err == nil {
			sinceSeq = seq
		}
	}

	var out []*Record
	err := s.run(ctx, func() error {
		ids, err := s.client.ZRangeByScore(ctx, s.indexKey(kind), &redis.ZRangeBy{
			Min: fmt.Sprintf("(%f", sinceSeq),
			Max: "+inf",
		}).Result()
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, err := s.Get(ctx, kind, id)
			if err == nil && r != nil {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ EventStore = (*RedisStore)(nil)
