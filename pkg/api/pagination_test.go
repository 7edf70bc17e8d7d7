package api

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabchat/tabchat/pkg/chat"
)

func makeMessages(n int) []chat.Message {
	messages := make([]chat.Message, n)
	for i := range messages {
		messages[i] = chat.UserMessage(strconv.Itoa(i))
	}
	return messages
}

func TestPaginateMessages_Defaults(t *testing.T) {
	t.Parallel()

	page, meta, err := PaginateMessages(makeMessages(10), PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, page, 10)
	assert.Equal(t, 10, meta.TotalMessages)
	assert.Empty(t, meta.PrevCursor, "no cursor when everything fits")
}

func TestPaginateMessages_LatestWindow(t *testing.T) {
	t.Parallel()

	page, meta, err := PaginateMessages(makeMessages(10), PaginationParams{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "7", page[0].Content)
	assert.Equal(t, "7", meta.PrevCursor)
}

func TestPaginateMessages_WalkBackwards(t *testing.T) {
	t.Parallel()

	messages := makeMessages(7)
	params := PaginationParams{Limit: 3}

	var seen []string
	for {
		page, meta, err := PaginateMessages(messages, params)
		require.NoError(t, err)
		for i := len(page) - 1; i >= 0; i-- {
			seen = append(seen, page[i].Content)
		}
		if meta.PrevCursor == "" {
			break
		}
		params.Before = meta.PrevCursor
	}

	assert.Equal(t, []string{"6", "5", "4", "3", "2", "1", "0"}, seen)
}

func TestPaginateMessages_LimitClamped(t *testing.T) {
	t.Parallel()

	page, _, err := PaginateMessages(makeMessages(MaxLimit+50), PaginationParams{Limit: MaxLimit + 50})
	require.NoError(t, err)
	assert.Len(t, page, MaxLimit)
}

func TestPaginateMessages_InvalidCursor(t *testing.T) {
	t.Parallel()

	_, _, err := PaginateMessages(makeMessages(3), PaginationParams{Before: "not-a-number"})
	require.Error(t, err)
}

func TestPaginateMessages_CursorAtStart(t *testing.T) {
	t.Parallel()

	page, meta, err := PaginateMessages(makeMessages(5), PaginationParams{Limit: 3, Before: "0"})
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 5, meta.TotalMessages)
}
