package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PutTake(t *testing.T) {
	t.Parallel()

	q := New()
	require.NoError(t, q.Put("tab1", "hello"))

	prompt, ok := q.Take("tab1")
	assert.True(t, ok)
	assert.Equal(t, "hello", prompt)

	_, ok = q.Take("tab1")
	assert.False(t, ok, "a taken prompt can never be taken again")
}

func TestQueue_SingleSlot(t *testing.T) {
	t.Parallel()

	q := New()
	require.NoError(t, q.Put("tab1", "first"))

	err := q.Put("tab1", "second")
	require.ErrorIs(t, err, ErrAlreadyQueued)

	prompt, ok := q.Take("tab1")
	assert.True(t, ok)
	assert.Equal(t, "first", prompt, "rejected prompt must not replace the queued one")
}

func TestQueue_PerTabIsolation(t *testing.T) {
	t.Parallel()

	q := New()
	require.NoError(t, q.Put("tab1", "one"))
	require.NoError(t, q.Put("tab2", "two"))

	prompt, ok := q.Take("tab2")
	assert.True(t, ok)
	assert.Equal(t, "two", prompt)

	prompt, ok = q.Peek("tab1")
	assert.True(t, ok)
	assert.Equal(t, "one", prompt)
}

func TestQueue_Drop(t *testing.T) {
	t.Parallel()

	q := New()
	require.NoError(t, q.Put("tab1", "pending"))
	q.Drop("tab1")

	_, ok := q.Take("tab1")
	assert.False(t, ok)

	// Slot is free again after dropping.
	require.NoError(t, q.Put("tab1", "new"))
}
