// Package reconcile re-fetches a session's authoritative state over REST and
// replays it into a tab, repairing drift after reconnects or external edits.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tabchat/tabchat/pkg/api"
	"github.com/tabchat/tabchat/pkg/protocol"
)

// SessionFetcher retrieves a session's full state. *api.Client satisfies it.
type SessionFetcher interface {
	GetSession(ctx context.Context, id string, params api.PaginationParams) (*api.SessionResponse, error)
}

// Engine hydrates tabs from the server. Fetched state is delivered through
// the same event path as live streaming, so a tab closed mid-fetch simply
// drops the result the way it drops any event for an unknown tab.
type Engine struct {
	fetcher SessionFetcher
	deliver func(tabID string, ev protocol.Event)
	log     *slog.Logger
}

func New(fetcher SessionFetcher, deliver func(string, protocol.Event), log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{fetcher: fetcher, deliver: deliver, log: log}
}

// Hydrate fetches sessionID and replays it into the tab as a history event.
// A fetch failure is non-fatal: the tab keeps whatever state it had, and the
// caller surfaces the returned error without tearing anything down.
func (e *Engine) Hydrate(ctx context.Context, tabID, sessionID string) error {
	resp, err := e.fetcher.GetSession(ctx, sessionID, api.PaginationParams{})
	if err != nil {
		e.log.Warn("session hydration failed", "tab_id", tabID, "session_id", sessionID, "error", err)
		return fmt.Errorf("hydrating session %s: %w", sessionID, err)
	}

	e.log.Debug("session hydrated", "tab_id", tabID, "session_id", sessionID, "messages", len(resp.Messages))
	e.deliver(tabID, protocol.History(resp.ID, resp.Messages))
	return nil
}
