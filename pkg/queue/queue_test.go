package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueOrdersByPriority(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Enqueue(&Entry{ID: "a", Priority: PriorityLow}))
	require.NoError(t, q.Enqueue(&Entry{ID: "b", Priority: PriorityUrgent}))
	require.NoError(t, q.Enqueue(&Entry{ID: "c", Priority: PriorityNormal}))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", first.ID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "c", second.ID)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", third.ID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestEnqueueFIFOWithinPriority(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Enqueue(&Entry{ID: "first", Priority: PriorityNormal}))
	require.NoError(t, q.Enqueue(&Entry{ID: "second", Priority: PriorityNormal}))

	e1, _ := q.Dequeue()
	e2, _ := q.Dequeue()
	assert.Equal(t, "first", e1.ID)
	assert.Equal(t, "second", e2.ID)
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Enqueue(&Entry{ID: "dup", Priority: PriorityNormal}))
	err := q.Enqueue(&Entry{ID: "dup", Priority: PriorityHigh})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueRejectsOverCapacity(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(&Entry{ID: "a", Priority: PriorityNormal}))
	err := q.Enqueue(&Entry{ID: "b", Priority: PriorityUrgent})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDequeueSkipsExpiredEntries(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Enqueue(&Entry{ID: "expired", Priority: PriorityUrgent, Deadline: time.Now().Add(-time.Minute)}))
	require.NoError(t, q.Enqueue(&Entry{ID: "live", Priority: PriorityLow}))

	entry, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "live", entry.ID)

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Expired)
}

func TestStatsReflectActivity(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(&Entry{ID: "a", Priority: PriorityNormal}))
	require.Error(t, q.Enqueue(&Entry{ID: "a", Priority: PriorityNormal}))
	require.NoError(t, q.Enqueue(&Entry{ID: "b", Priority: PriorityHigh}))
	require.Error(t, q.Enqueue(&Entry{ID: "c", Priority: PriorityLow}))

	_, _ = q.Dequeue()

	stats := q.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Dequeued)
	assert.Equal(t, uint64(2), stats.Rejected)
	assert.Equal(t, 1, stats.Depth)
}

func TestEnqueueRejectsUnknownPriority(t *testing.T) {
	q := New(0)
	err := q.Enqueue(&Entry{ID: "a", Priority: Priority(99)})
	assert.ErrorIs(t, err, ErrUnknownPriority)
}
