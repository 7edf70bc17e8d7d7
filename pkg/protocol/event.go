// Package protocol implements the wire schema spoken over a tab's event
// stream: JSON frames with a type discriminator, decoded into typed events.
package protocol

import (
	"encoding/json"

	"github.com/tabchat/tabchat/pkg/chat"
)

// Event is one decoded inbound frame.
type Event interface {
	isEvent()
}

// StartEvent is sent when generation begins.
type StartEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

func Start(sessionID string) Event {
	return &StartEvent{Type: "start", SessionID: sessionID}
}

func (e *StartEvent) isEvent() {}

// ChunkEvent carries incremental assistant text. The server emits it as
// either "chunk" or "text"; both decode to this event.
type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func Chunk(content string) Event {
	return &ChunkEvent{Type: "chunk", Content: content}
}

func (e *ChunkEvent) isEvent() {}

// ToolUseEvent is sent when a tool invocation begins.
type ToolUseEvent struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

func ToolUse(id, name string, input json.RawMessage) Event {
	return &ToolUseEvent{Type: "tool_use", ID: id, Name: name, Input: input}
}

func (e *ToolUseEvent) isEvent() {}

// ToolResultEvent carries a tool invocation's result. Some backends key the
// result by name instead of id; Key() resolves whichever is present.
type ToolResultEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Output  string `json:"output,omitempty"`
	Content string `json:"content,omitempty"`
}

func ToolResult(id, output string) Event {
	return &ToolResultEvent{Type: "tool_result", ID: id, Output: output}
}

func (e *ToolResultEvent) isEvent() {}

// Key returns the correlation key for pairing with a tool_use event.
func (e *ToolResultEvent) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// Text returns the result payload regardless of which field carried it.
func (e *ToolResultEvent) Text() string {
	if e.Output != "" {
		return e.Output
	}
	return e.Content
}

// DoneEvent is sent when generation finishes successfully.
type DoneEvent struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	Metadata  *chat.TurnMetadata `json:"metadata,omitempty"`
}

func Done(sessionID string, metadata *chat.TurnMetadata) Event {
	return &DoneEvent{Type: "done", SessionID: sessionID, Metadata: metadata}
}

func (e *DoneEvent) isEvent() {}

// StoppedEvent is sent when the user interrupts generation.
type StoppedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

func Stopped(sessionID string) Event {
	return &StoppedEvent{Type: "stopped", SessionID: sessionID}
}

func (e *StoppedEvent) isEvent() {}

// ErrorEvent is sent when generation fails.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Error(message string) Event {
	return &ErrorEvent{Type: "error", Message: message}
}

func (e *ErrorEvent) isEvent() {}

// SystemEvent carries a status notice, e.g. a compaction report. The payload
// is implementation-defined and surfaced verbatim.
type SystemEvent struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func System(subtype string, payload json.RawMessage) Event {
	return &SystemEvent{Type: "system", Subtype: subtype, Payload: payload}
}

func (e *SystemEvent) isEvent() {}

// HistoryEvent bulk-replaces a tab's transcript with the authoritative
// server-side message list.
type HistoryEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Messages  []chat.Message `json:"messages"`
}

func History(sessionID string, messages []chat.Message) Event {
	return &HistoryEvent{Type: "history", SessionID: sessionID, Messages: messages}
}

func (e *HistoryEvent) isEvent() {}

// PingEvent is a keepalive probe. The connection layer answers it with a
// pong frame and never surfaces it to the transcript.
type PingEvent struct {
	Type string `json:"type"`
}

func Ping() Event { return &PingEvent{Type: "ping"} }

func (e *PingEvent) isEvent() {}

// PongEvent acknowledges a ping.
type PongEvent struct {
	Type string `json:"type"`
}

func Pong() Event { return &PongEvent{Type: "pong"} }

func (e *PongEvent) isEvent() {}
