// Package assembler reconstructs a human-readable transcript from one tab's
// ordered event stream: accumulating fragmented assistant text, pairing tool
// invocations with their results, and keeping the terminal bookkeeping.
package assembler

import (
	"encoding/json"
	"log/slog"

	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/protocol"
)

// Assembler folds events into a single tab's transcript. It is not safe for
// concurrent use; the owning store serializes access.
type Assembler struct {
	messages  []chat.Message
	streaming bool
	errMsg    string
	usage     chat.Usage
	sessionID string

	// finalized is set when the current turn has been closed by a terminal
	// event and cleared when a new turn begins. It makes terminal events
	// idempotent without inferring duplication from the transcript shape,
	// so a turn that produced no start or chunk still binds its session id
	// and merges its metadata.
	finalized bool

	// toolIndex maps a tool invocation id to its transcript position for
	// O(1) result pairing. Cleared in full on every terminal event.
	toolIndex map[string]int

	log *slog.Logger
}

func New(log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		toolIndex: make(map[string]int),
		log:       log,
	}
}

// Messages returns the transcript. The slice is owned by the assembler;
// callers must not mutate it.
func (a *Assembler) Messages() []chat.Message { return a.messages }

// Streaming reports whether a generation turn is in flight.
func (a *Assembler) Streaming() bool { return a.streaming }

// Err returns the last generation error, or "" if none or dismissed.
func (a *Assembler) Err() string { return a.errMsg }

// ClearError dismisses the current error banner.
func (a *Assembler) ClearError() { a.errMsg = "" }

// SetError records a non-fatal error without touching the transcript.
func (a *Assembler) SetError(msg string) { a.errMsg = msg }

// BindSession attaches the transcript to sessionID, replacing any previous
// binding. Used when loading an existing session into a tab.
func (a *Assembler) BindSession(sessionID string) { a.sessionID = sessionID }

// Usage returns the running cost and token aggregates.
func (a *Assembler) Usage() chat.Usage { return a.usage }

// SessionID returns the server-assigned session id, or "" before the first
// turn establishes one.
func (a *Assembler) SessionID() string { return a.sessionID }

// AppendUser records a submitted prompt in the transcript and opens a new
// turn.
func (a *Assembler) AppendUser(content string) {
	a.messages = append(a.messages, chat.UserMessage(content))
	a.finalized = false
}

// Reset discards the transcript, aggregates, and session binding (new-chat).
func (a *Assembler) Reset() {
	a.messages = nil
	a.streaming = false
	a.errMsg = ""
	a.usage = chat.Usage{}
	a.sessionID = ""
	a.finalized = false
	clear(a.toolIndex)
}

// Apply folds one event into the transcript and reports whether the event
// was terminal (done, stopped, or error), which releases any queued prompt.
func (a *Assembler) Apply(ev protocol.Event) (terminal bool) {
	switch e := ev.(type) {
	case *protocol.StartEvent:
		a.bindSession(e.SessionID)
		a.messages = append(a.messages, chat.Message{Kind: chat.KindAssistant, Streaming: true})
		a.streaming = true
		a.finalized = false

	case *protocol.ChunkEvent:
		a.appendText(e.Content)
		a.finalized = false

	case *protocol.ToolUseEvent:
		a.finalized = false
		a.messages = append(a.messages, chat.Message{
			Kind:       chat.KindToolUse,
			ToolID:     e.ID,
			ToolName:   e.Name,
			ToolInput:  compact(e.Input),
			ToolStatus: chat.ToolRunning,
		})
		a.toolIndex[e.ID] = len(a.messages) - 1

	case *protocol.ToolResultEvent:
		a.applyToolResult(e)

	case *protocol.DoneEvent:
		if a.finalized {
			a.log.Debug("duplicate terminal event ignored", "type", "done")
			return true
		}
		a.bindSession(e.SessionID)
		a.finalize(e.Metadata, false)
		a.usage.Merge(e.Metadata)
		a.finalized = true
		return true

	case *protocol.StoppedEvent:
		if a.finalized {
			a.log.Debug("duplicate terminal event ignored", "type", "stopped")
			return true
		}
		a.bindSession(e.SessionID)
		a.finalize(nil, true)
		a.failRunningTools("interrupted")
		a.finalized = true
		return true

	case *protocol.ErrorEvent:
		// Partial assistant content is preserved, not discarded.
		a.finalize(nil, false)
		a.errMsg = e.Message
		a.finalized = true
		return true

	case *protocol.SystemEvent:
		content := string(e.Payload)
		if content == "" {
			content = e.Subtype
		}
		a.messages = append(a.messages, chat.SystemMessage(content))

	case *protocol.HistoryEvent:
		// Authoritative replacement: locally-assembled content not present
		// in the server payload is dropped.
		a.bindSession(e.SessionID)
		a.messages = append([]chat.Message(nil), e.Messages...)
		a.streaming = false
		clear(a.toolIndex)

	case *protocol.PingEvent, *protocol.PongEvent:
		// Keepalives are handled by the connection layer.

	default:
		a.log.Warn("unhandled event", "event", ev)
	}
	return false
}

func (a *Assembler) bindSession(id string) {
	if id != "" && a.sessionID == "" {
		a.sessionID = id
	}
}

// openAssistant returns the index of the streaming assistant message, or -1.
func (a *Assembler) openAssistant() int {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Kind == chat.KindAssistant && a.messages[i].Streaming {
			return i
		}
	}
	return -1
}

func (a *Assembler) appendText(content string) {
	i := a.openAssistant()
	if i < 0 {
		// Chunk arrived before start or after the previous message closed.
		a.messages = append(a.messages, chat.Message{Kind: chat.KindAssistant, Streaming: true})
		i = len(a.messages) - 1
		a.streaming = true
	}
	a.messages[i].Content += content
}

func (a *Assembler) applyToolResult(e *protocol.ToolResultEvent) {
	if i, ok := a.toolIndex[e.Key()]; ok {
		a.messages[i].ToolStatus = chat.ToolComplete
		a.messages[i].ToolResult = e.Text()
		delete(a.toolIndex, e.Key())
		return
	}
	// Fallback: the correlating tool_use was evicted or never arrived.
	a.messages = append(a.messages, chat.Message{
		Kind:    chat.KindToolResult,
		ToolID:  e.Key(),
		Content: e.Text(),
	})
}

func (a *Assembler) finalize(metadata *chat.TurnMetadata, interrupted bool) {
	if i := a.openAssistant(); i >= 0 {
		a.messages[i].Streaming = false
		a.messages[i].Interrupted = interrupted
		a.messages[i].Metadata = metadata
	}
	a.streaming = false
	clear(a.toolIndex)
}

func (a *Assembler) failRunningTools(reason string) {
	for i := range a.messages {
		if a.messages[i].Kind == chat.KindToolUse && a.messages[i].ToolStatus == chat.ToolRunning {
			a.messages[i].ToolStatus = chat.ToolError
			a.messages[i].ToolResult = reason
		}
	}
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
