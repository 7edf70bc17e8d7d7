package api

import (
	"time"

	"github.com/tabchat/tabchat/pkg/chat"
)

// SessionSummary is one row in the session list.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Profile      string    `json:"profile,omitempty"`
	Project      string    `json:"project,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// SessionResponse is the full session state used for tab hydration.
type SessionResponse struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Profile    string              `json:"profile,omitempty"`
	Project    string              `json:"project,omitempty"`
	Messages   []chat.Message      `json:"messages"`
	Usage      chat.Usage          `json:"usage"`
	Pagination *PaginationMetadata `json:"pagination,omitempty"`
}

// Profile is a named agent configuration offered by the server.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// Project is a server-side working directory a session can bind to.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// UpdateSessionTitleRequest renames a session.
type UpdateSessionTitleRequest struct {
	Title string `json:"title"`
}

// RewindSessionRequest truncates a session to its first NumMessages entries.
type RewindSessionRequest struct {
	NumMessages int `json:"num_messages"`
}

// PaginationMetadata accompanies a paginated message list.
type PaginationMetadata struct {
	TotalMessages int    `json:"total_messages"`
	Limit         int    `json:"limit"`
	PrevCursor    string `json:"prev_cursor,omitempty"`
}
