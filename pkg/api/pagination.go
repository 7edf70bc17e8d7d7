package api

import (
	"fmt"
	"strconv"

	"github.com/tabchat/tabchat/pkg/chat"
)

// PaginationParams selects a window of a session's message list, newest
// messages first. Before is an opaque cursor from a previous response.
type PaginationParams struct {
	Limit  int
	Before string
}

const DefaultLimit = 50

const MaxLimit = 200

// PaginateMessages returns the requested window of messages and the metadata
// for fetching the preceding page.
func PaginateMessages(messages []chat.Message, params PaginationParams) ([]chat.Message, *PaginationMetadata, error) {
	totalCount := len(messages)

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	endIdx := totalCount
	if params.Before != "" {
		beforeIndex, err := strconv.Atoi(params.Before)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid before cursor: %w", err)
		}
		endIdx = beforeIndex
		if endIdx <= 0 {
			return []chat.Message{}, &PaginationMetadata{TotalMessages: totalCount}, nil
		}
		if endIdx > totalCount {
			endIdx = totalCount
		}
	}

	startIdx := max(endIdx-limit, 0)
	page := messages[startIdx:endIdx]

	metadata := &PaginationMetadata{
		TotalMessages: totalCount,
		Limit:         len(page),
	}

	// Only set the cursor when older messages remain.
	if len(page) > 0 && startIdx > 0 {
		metadata.PrevCursor = strconv.Itoa(startIdx)
	}

	return page, metadata, nil
}
