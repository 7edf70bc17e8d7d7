// Package tabs is the client's single source of truth: every open tab, its
// transcript, and the commands the UI issues against them. All mutation is
// serialized through the store, and every completed mutation notifies
// subscribers.
package tabs

import (
	"errors"

	"github.com/tabchat/tabchat/pkg/chat"
)

// ErrTabNotFound is returned when a command targets an unknown tab.
var ErrTabNotFound = errors.New("tab not found")

// ErrLastTab is returned when closing the only remaining tab; the client
// always keeps at least one tab open.
var ErrLastTab = errors.New("cannot close the last tab")

// Tab is a point-in-time snapshot of one tab's state. Snapshots are handed
// out by value; mutating one has no effect on the store.
type Tab struct {
	ID        string
	SessionID string
	Title     string
	Profile   string
	Project   string

	Messages  []chat.Message
	Streaming bool
	Connected bool
	Queued    bool
	Err       string
	Usage     chat.Usage
}
