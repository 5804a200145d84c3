package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAssignsMonotonicIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id1, err := s.Append(ctx, KindAuditEvent, &Record{})
	require.NoError(t, err)
	id2, err := s.Append(ctx, KindAuditEvent, &Record{})
	require.NoError(t, err)

	assert.Less(t, id1, id2)
}

func TestMemoryStoreQueryNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, KindNotification, &Record{})
		require.NoError(t, err)
	}

	records, err := s.Query(ctx, KindNotification, Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i := 0; i+1 < len(records); i++ {
		assert.True(t, !records[i].CreatedAt.Before(records[i+1].CreatedAt))
	}
}

func TestMemoryStoreCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.Append(ctx, KindApproval, &Record{Status: "pending"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, KindApproval, id, "pending", "approved", nil))

	err = s.UpdateStatus(ctx, KindApproval, id, "pending", "approved", nil)
	var casErr *CASError
	require.ErrorAs(t, err, &casErr)
}
