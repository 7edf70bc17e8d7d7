package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrUnknownType reports a frame whose type discriminator is not part of the
// wire schema. Callers log and drop the frame; the stream is not aborted.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.TypeName)
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its typed event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case "start":
		ev = &StartEvent{}
	case "chunk", "text":
		ev = &ChunkEvent{}
	case "tool_use":
		ev = &ToolUseEvent{}
	case "tool_result":
		ev = &ToolResultEvent{}
	case "done":
		ev = &DoneEvent{}
	case "stopped":
		ev = &StoppedEvent{}
	case "error":
		ev = &ErrorEvent{}
	case "system":
		ev = &SystemEvent{}
	case "history":
		ev = &HistoryEvent{}
	case "ping":
		ev = &PingEvent{}
	case "pong":
		ev = &PongEvent{}
	default:
		return nil, &ErrUnknownType{TypeName: env.Type}
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decoding %s frame: %w", env.Type, err)
	}
	return ev, nil
}

// Frame is one outbound client-to-server message.
type Frame interface {
	isFrame()
}

// QueryFrame submits a prompt for a new generation turn.
type QueryFrame struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Project   string `json:"project,omitempty"`
}

func Query(prompt, sessionID, profile, project string) Frame {
	return &QueryFrame{
		Type:      "query",
		Prompt:    prompt,
		SessionID: sessionID,
		Profile:   profile,
		Project:   project,
	}
}

func (f *QueryFrame) isFrame() {}

// StopFrame interrupts the active generation without closing the transport.
type StopFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

func StopRequest(sessionID string) Frame {
	return &StopFrame{Type: "stop", SessionID: sessionID}
}

func (f *StopFrame) isFrame() {}

// LoadSessionFrame asks the server to stream back a session's history.
type LoadSessionFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func LoadSession(sessionID string) Frame {
	return &LoadSessionFrame{Type: "load_session", SessionID: sessionID}
}

func (f *LoadSessionFrame) isFrame() {}

// PongFrame answers a server ping.
type PongFrame struct {
	Type string `json:"type"`
}

func PongReply() Frame { return &PongFrame{Type: "pong"} }

func (f *PongFrame) isFrame() {}

// DecodeFrame parses one client-to-server frame. It is the server-side
// counterpart of Decode, used by the scripted test server.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame envelope: %w", err)
	}

	var f Frame
	switch env.Type {
	case "query":
		f = &QueryFrame{}
	case "stop":
		f = &StopFrame{}
	case "load_session":
		f = &LoadSessionFrame{}
	case "pong":
		f = &PongFrame{}
	default:
		return nil, &ErrUnknownType{TypeName: env.Type}
	}

	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decoding %s frame: %w", env.Type, err)
	}
	return f, nil
}

// Encode serializes an outbound frame.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}
