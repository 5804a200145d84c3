package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreAppendAndGet(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, KindAuditEvent, &Record{Status: "recorded", Data: map[string]interface{}{"event_type": "action_execution_start"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, KindAuditEvent, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "recorded", got.Status)
	require.Equal(t, "action_execution_start", got.Data["event_type"])
}

func TestRedisStoreUpdateStatusCAS(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, KindApproval, &Record{Status: "pending"})
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, KindApproval, id, "pending", "approved", map[string]interface{}{"approver": "alice"})
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, KindApproval, id, "pending", "approved", nil)
	require.Error(t, err, "second grant with a stale expected status must fail CAS")

	got, err := s.Get(ctx, KindApproval, id)
	require.NoError(t, err)
	require.Equal(t, "approved", got.Status)
}

func TestRedisStoreScanOrdersById(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Append(ctx, KindNotification, &Record{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	records, err := s.Scan(ctx, KindNotification, "")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, ids[0], records[0].ID)
	require.Equal(t, ids[2], records[2].ID)

	since, err := s.Scan(ctx, KindNotification, ids[0])
	require.NoError(t, err)
	require.Len(t, since, 2)
}
