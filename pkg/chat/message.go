// Package chat defines the message model a tab's transcript is built from.
package chat

// MessageKind discriminates the variants of a transcript message.
type MessageKind string

const (
	KindUser       MessageKind = "user"
	KindAssistant  MessageKind = "assistant"
	KindToolUse    MessageKind = "tool_use"
	KindToolResult MessageKind = "tool_result"
	KindSystem     MessageKind = "system"
	KindSubagent   MessageKind = "subagent"
)

// ToolStatus tracks the lifecycle of a tool invocation.
type ToolStatus string

const (
	ToolRunning  ToolStatus = "running"
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
)

// TurnMetadata is the terminal accounting for one generation turn.
type TurnMetadata struct {
	CostUSD             float64 `json:"total_cost_usd,omitempty"`
	DurationMs          int64   `json:"duration_ms,omitempty"`
	NumTurns            int     `json:"num_turns,omitempty"`
	InputTokens         int64   `json:"input_tokens,omitempty"`
	OutputTokens        int64   `json:"output_tokens,omitempty"`
	CacheCreationTokens int64   `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int64   `json:"cache_read_input_tokens,omitempty"`
	ContextUsed         int64   `json:"context_used,omitempty"`
}

// Message is one entry in a tab's transcript. Exactly one variant is
// populated, selected by Kind. Tool results mutate the matching tool_use
// entry in place; a standalone KindToolResult message only appears when no
// matching invocation exists in the current transcript.
type Message struct {
	Kind MessageKind `json:"kind"`

	// Content holds user text, accumulated assistant text, tool result
	// output, or the system payload, depending on Kind.
	Content string `json:"content,omitempty"`

	// Assistant fields.
	Streaming   bool          `json:"streaming,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Metadata    *TurnMetadata `json:"metadata,omitempty"`

	// Tool fields.
	ToolID     string     `json:"tool_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolInput  string     `json:"tool_input,omitempty"`
	ToolStatus ToolStatus `json:"tool_status,omitempty"`
	ToolResult string     `json:"tool_result,omitempty"`

	// Subagent messages nest the delegated task's own entries.
	Children []Message `json:"children,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Kind: KindUser, Content: content}
}

func SystemMessage(content string) Message {
	return Message{Kind: KindSystem, Content: content}
}

// Usage is a tab's running cost and token aggregates. Per-turn deltas are
// added across the conversation and never reset except on new-chat.
type Usage struct {
	TotalCostUSD        float64 `json:"total_cost_usd"`
	TokensIn            int64   `json:"tokens_in"`
	TokensOut           int64   `json:"tokens_out"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	ContextUsed         int64   `json:"context_used"`

	// authoritative is set once the backend reports context_used directly;
	// after that a locally-computed estimate can never regress the value.
	authoritative bool
}

// Merge folds one turn's terminal metadata into the running aggregates.
func (u *Usage) Merge(m *TurnMetadata) {
	if m == nil {
		return
	}
	u.TotalCostUSD += m.CostUSD
	u.TokensIn += m.InputTokens
	u.TokensOut += m.OutputTokens
	u.CacheCreationTokens += m.CacheCreationTokens
	u.CacheReadTokens += m.CacheReadTokens

	if m.ContextUsed > 0 {
		u.ContextUsed = m.ContextUsed
		u.authoritative = true
		return
	}
	if !u.authoritative {
		u.ContextUsed = u.TokensIn + u.CacheCreationTokens + u.CacheReadTokens
	}
}
