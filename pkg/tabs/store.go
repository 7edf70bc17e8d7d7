package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tabchat/tabchat/pkg/assembler"
	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/protocol"
	"github.com/tabchat/tabchat/pkg/queue"
)

// Transport is the websocket surface the store drives. *connection.Manager
// satisfies it.
type Transport interface {
	Open(ctx context.Context, tabID string)
	Send(tabID string, frame protocol.Frame) error
	Close(tabID string)
}

// Hydrator re-fetches a session's authoritative state. *reconcile.Engine
// satisfies it.
type Hydrator interface {
	Hydrate(ctx context.Context, tabID, sessionID string) error
}

// tabState is the store-internal mutable state for one tab.
type tabState struct {
	id      string
	title   string
	profile string
	project string

	connected bool
	// sending is set when a query goes out and cleared when the resulting
	// turn starts, ends, or is severed by a disconnect, so the tab counts
	// as busy before start arrives. Unrelated events (system notices,
	// keepalives) in that window leave it set.
	sending bool

	asm *assembler.Assembler

	// ctx scopes the tab's transport and hydration fetches; cancelled on close.
	ctx    context.Context
	cancel context.CancelFunc
}

// Store owns every tab. It is the single writer: commands and transport
// callbacks all funnel through its mutex, and subscribers are notified after
// each completed mutation.
type Store struct {
	ctx      context.Context
	conn     Transport
	hydrator Hydrator
	queue    *queue.Queue
	log      *slog.Logger

	mu       sync.Mutex
	tabs     map[string]*tabState
	order    []string
	activeID string
	subs     map[int]chan struct{}
	nextSub  int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithStoreLogger(log *slog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty store. Wire must be called before the first tab
// is created.
func NewStore(ctx context.Context, opts ...StoreOption) *Store {
	s := &Store{
		ctx:   ctx,
		queue: queue.New(),
		log:   slog.Default(),
		tabs:  make(map[string]*tabState),
		subs:  make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wire attaches the transport and hydrator. The hydrator may be nil, in
// which case reconnects skip re-hydration.
func (s *Store) Wire(conn Transport, hydrator Hydrator) {
	s.conn = conn
	s.hydrator = hydrator
}

// Subscribe registers for change notifications. The returned channel gets a
// coalesced signal after every completed mutation; the func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify signals all subscribers. Callers hold the mutex.
func (s *Store) notify() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateTab opens a new empty tab, connects it, and makes it active.
func (s *Store) CreateTab(profile, project string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.ctx)
	s.tabs[id] = &tabState{
		id:      id,
		profile: profile,
		project: project,
		asm:     assembler.New(s.log.With("tab_id", id)),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.order = append(s.order, id)
	s.activeID = id

	s.conn.Open(ctx, id)
	s.log.Info("tab created", "tab_id", id, "profile", profile, "project", project)
	s.notify()
	return id
}

// CreateTabFromSession opens a new tab bound to an existing session and
// resumes its transcript, the "open history entry in new tab" path.
func (s *Store) CreateTabFromSession(sessionID, profile, project string) string {
	id := s.CreateTab(profile, project)
	if err := s.LoadSessionInTab(id, sessionID); err != nil {
		s.log.Warn("resuming session in new tab failed", "tab_id", id, "session_id", sessionID, "error", err)
	}
	return id
}

// CloseTab tears down a tab. Closing the last remaining tab is refused.
func (s *Store) CloseTab(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[id]
	if !ok {
		return ErrTabNotFound
	}
	if len(s.order) == 1 {
		return ErrLastTab
	}

	tab.cancel()
	s.conn.Close(id)
	s.queue.Drop(id)
	delete(s.tabs, id)

	pos := 0
	for i, tid := range s.order {
		if tid == id {
			pos = i
			break
		}
	}
	s.order = append(s.order[:pos], s.order[pos+1:]...)

	// The neighbor to the right inherits focus, or the new last tab.
	if s.activeID == id {
		if pos >= len(s.order) {
			pos = len(s.order) - 1
		}
		s.activeID = s.order[pos]
	}

	s.log.Info("tab closed", "tab_id", id)
	s.notify()
	return nil
}

// SetActiveTab switches focus.
func (s *Store) SetActiveTab(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tabs[id]; !ok {
		return ErrTabNotFound
	}
	s.activeID = id
	s.notify()
	return nil
}

// SendMessage submits a prompt on the tab. While a turn is in flight the
// prompt is queued instead, one slot per tab; a second queued prompt is
// rejected with queue.ErrAlreadyQueued.
func (s *Store) SendMessage(id, prompt string) error {
	s.mu.Lock()

	tab, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return ErrTabNotFound
	}

	if tab.asm.Streaming() || tab.sending {
		if err := s.queue.Put(id, prompt); err != nil {
			s.mu.Unlock()
			return err
		}
		s.log.Debug("prompt queued", "tab_id", id)
		s.notify()
		s.mu.Unlock()
		return nil
	}

	frame := s.prepare(tab, prompt)
	s.notify()
	s.mu.Unlock()

	return s.sendFrame(id, frame)
}

// prepare appends the prompt to the transcript, marks the turn busy, and
// builds the query frame. Callers hold the mutex; the frame is transmitted
// after it is released so a stalled socket never blocks other tabs.
func (s *Store) prepare(tab *tabState, prompt string) protocol.Frame {
	tab.asm.AppendUser(prompt)
	tab.sending = true
	return protocol.Query(prompt, tab.asm.SessionID(), tab.profile, tab.project)
}

// sendFrame transmits a prepared query outside the store lock. A failed send
// rolls the busy flag back and surfaces the error on the tab.
func (s *Store) sendFrame(tabID string, frame protocol.Frame) error {
	err := s.conn.Send(tabID, frame)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if tab, ok := s.tabs[tabID]; ok {
		tab.sending = false
		tab.asm.SetError(err.Error())
		s.notify()
	}
	s.mu.Unlock()
	return fmt.Errorf("sending prompt: %w", err)
}

// StopGeneration asks the server to interrupt the tab's active turn.
func (s *Store) StopGeneration(id string) error {
	s.mu.Lock()
	tab, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return ErrTabNotFound
	}
	frame := protocol.StopRequest(tab.asm.SessionID())
	s.mu.Unlock()

	if err := s.conn.Send(id, frame); err != nil {
		return fmt.Errorf("sending stop: %w", err)
	}
	return nil
}

// SetTabProfile changes the profile used for the tab's next turn.
func (s *Store) SetTabProfile(id, profile string) error {
	return s.mutateTab(id, func(tab *tabState) { tab.profile = profile })
}

// SetTabProject changes the project used for the tab's next turn.
func (s *Store) SetTabProject(id, project string) error {
	return s.mutateTab(id, func(tab *tabState) { tab.project = project })
}

// SetTabTitle renames the tab locally.
func (s *Store) SetTabTitle(id, title string) error {
	return s.mutateTab(id, func(tab *tabState) { tab.title = title })
}

// ClearError dismisses the tab's error banner.
func (s *Store) ClearError(id string) error {
	return s.mutateTab(id, func(tab *tabState) { tab.asm.ClearError() })
}

// NewChat discards the tab's transcript and session binding, keeping the
// tab, its connection, and its profile selection.
func (s *Store) NewChat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[id]
	if !ok {
		return ErrTabNotFound
	}
	tab.asm.Reset()
	tab.sending = false
	s.queue.Drop(id)
	s.notify()
	return nil
}

func (s *Store) mutateTab(id string, fn func(*tabState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[id]
	if !ok {
		return ErrTabNotFound
	}
	fn(tab)
	s.notify()
	return nil
}

// LoadSessionInTab replaces the tab's content with an existing session: the
// transcript is reset, the server is asked to attach the stream, and the
// authoritative history is fetched in the background.
func (s *Store) LoadSessionInTab(id, sessionID string) error {
	s.mu.Lock()

	tab, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return ErrTabNotFound
	}

	tab.asm.Reset()
	tab.asm.BindSession(sessionID)
	tab.sending = false
	s.queue.Drop(id)
	s.hydrate(id, sessionID)
	s.notify()
	s.mu.Unlock()

	if err := s.conn.Send(id, protocol.LoadSession(sessionID)); err != nil {
		s.log.Warn("load session frame failed, relying on hydration", "tab_id", id, "error", err)
	}
	return nil
}

// hydrate launches a background fetch of the session's authoritative state.
// Failure is non-fatal: the tab keeps its current transcript and shows an
// error. Callers hold the mutex.
func (s *Store) hydrate(tabID, sessionID string) {
	if s.hydrator == nil || sessionID == "" {
		return
	}
	ctx := s.ctx
	if tab, ok := s.tabs[tabID]; ok {
		ctx = tab.ctx
	}
	go func() {
		if err := s.hydrator.Hydrate(ctx, tabID, sessionID); err != nil {
			s.setTabError(tabID, err.Error())
		}
	}()
}

// setTabError records a non-fatal error on the tab. Errors for tabs closed
// in the meantime are dropped.
func (s *Store) setTabError(tabID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[tabID]
	if !ok {
		return
	}
	tab.asm.SetError(msg)
	s.notify()
}

// HandleEvent ingests one decoded event for a tab. It is the transport's
// event callback and the hydrator's delivery path; events for tabs closed in
// the meantime are dropped.
func (s *Store) HandleEvent(tabID string, ev protocol.Event) {
	s.mu.Lock()

	tab, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("dropping event for closed tab", "tab_id", tabID)
		return
	}

	busy := tab.asm.Streaming() || tab.sending
	if _, ok := ev.(*protocol.StartEvent); ok {
		tab.sending = false
	}

	terminal := tab.asm.Apply(ev)
	_, history := ev.(*protocol.HistoryEvent)
	if history {
		tab.sending = false
	}

	// History is not a terminal event, but when it replaces an in-flight
	// turn (reconnect re-hydration) the stream it closed will never produce
	// one, so the queued prompt is released here instead of stranding.
	var frame protocol.Frame
	if terminal || (history && busy) {
		tab.sending = false
		frame = s.drain(tab)
	}
	s.notify()
	s.mu.Unlock()

	if frame != nil {
		if err := s.sendFrame(tabID, frame); err != nil {
			s.log.Warn("queued prompt failed to send", "tab_id", tabID, "error", err)
		}
	}
}

// drain takes the tab's queued prompt, if any, and prepares its query frame,
// exactly once per terminal. Callers hold the mutex and transmit the frame
// after releasing it.
func (s *Store) drain(tab *tabState) protocol.Frame {
	prompt, ok := s.queue.Take(tab.id)
	if !ok {
		return nil
	}
	s.log.Debug("draining queued prompt", "tab_id", tab.id)
	return s.prepare(tab, prompt)
}

// HandleStatus ingests a connectivity transition for a tab. A reconnect on a
// tab bound to a session triggers background re-hydration; there is no
// client-side replay.
func (s *Store) HandleStatus(tabID string, connected bool) {
	s.mu.Lock()

	tab, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		return
	}

	tab.connected = connected
	var reattach string
	var queued protocol.Frame
	if connected {
		if sessionID := tab.asm.SessionID(); sessionID != "" {
			reattach = sessionID
			s.hydrate(tabID, sessionID)
		} else {
			// No session to re-hydrate from, so a turn dropped with the
			// socket can never resume or reach a terminal event. Close it
			// as interrupted and release any queued prompt.
			if tab.asm.Streaming() {
				tab.asm.Apply(protocol.Stopped(""))
			}
			queued = s.drain(tab)
		}
	} else {
		// A dropped socket cannot finish the in-flight turn.
		tab.sending = false
	}
	s.notify()
	s.mu.Unlock()

	if reattach != "" {
		if err := s.conn.Send(tabID, protocol.LoadSession(reattach)); err != nil {
			s.log.Warn("session reattach frame failed", "tab_id", tabID, "error", err)
		}
	}
	if queued != nil {
		if err := s.sendFrame(tabID, queued); err != nil {
			s.log.Warn("queued prompt failed to send", "tab_id", tabID, "error", err)
		}
	}
}

// Tabs returns snapshots of every tab in creation order.
func (s *Store) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Tab, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.snapshot(s.tabs[id]))
	}
	return out
}

// ActiveTab returns a snapshot of the focused tab.
func (s *Store) ActiveTab() (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[s.activeID]
	if !ok {
		return Tab{}, false
	}
	return s.snapshot(tab), true
}

// ActiveID returns the focused tab's id.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// snapshot copies a tab's state. Callers hold the mutex.
func (s *Store) snapshot(tab *tabState) Tab {
	messages := tab.asm.Messages()
	_, queued := s.queue.Peek(tab.id)
	return Tab{
		ID:        tab.id,
		SessionID: tab.asm.SessionID(),
		Title:     tab.title,
		Profile:   tab.profile,
		Project:   tab.project,
		Messages:  append([]chat.Message(nil), messages...),
		Streaming: tab.asm.Streaming() || tab.sending,
		Connected: tab.connected,
		Queued:    queued,
		Err:       tab.asm.Err(),
		Usage:     tab.asm.Usage(),
	}
}

// Close tears down every tab's connection; used on shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tab := range s.tabs {
		tab.cancel()
		s.conn.Close(id)
	}
}
