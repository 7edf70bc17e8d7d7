// Package fake is an in-memory agent server speaking the full wire contract:
// the REST surface plus the streaming websocket. It backs the integration
// tests and the demo command; replies follow a configurable script instead
// of a model.
package fake

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tabchat/tabchat/pkg/api"
	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/protocol"
)

// Script shapes the scripted turn the server plays for every query.
type Script struct {
	// Reply is streamed back in ChunkSize pieces.
	Reply     string
	ChunkSize int
	// Delay is the pause between chunks, giving stop a window to land.
	Delay time.Duration
	// Tool, when set, runs one tool round before the reply.
	Tool *ToolRound
	// Metadata is attached to the done event.
	Metadata *chat.TurnMetadata
}

// ToolRound is one scripted tool_use/tool_result pair.
type ToolRound struct {
	Name   string
	Input  string
	Output string
}

// DefaultScript is a short two-chunk reply with usage accounting.
func DefaultScript() Script {
	return Script{
		Reply:     "Hello! This is a scripted reply.",
		ChunkSize: 8,
		Metadata: &chat.TurnMetadata{
			CostUSD:      0.01,
			DurationMs:   120,
			InputTokens:  42,
			OutputTokens: 17,
		},
	}
}

type fakeSession struct {
	id        string
	title     string
	profile   string
	project   string
	createdAt time.Time
	updatedAt time.Time
	messages  []chat.Message
	usage     chat.Usage

	// stop cancels the in-flight scripted turn.
	stop context.CancelFunc
}

// Server is the scripted agent server. Mount its Handler on httptest or a
// real listener.
type Server struct {
	e            *echo.Echo
	upgrader     websocket.Upgrader
	script       Script
	pingInterval time.Duration
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

// Option configures a Server.
type Option func(*Server)

// WithScript replaces the default scripted turn.
func WithScript(script Script) Option {
	return func(s *Server) { s.script = script }
}

// WithPingInterval sets the keepalive probe interval; zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

func New(opts ...Option) *Server {
	s := &Server{
		e:        echo.New(),
		script:   DefaultScript(),
		log:      slog.Default(),
		sessions: make(map[string]*fakeSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.e.HideBanner = true

	s.e.GET("/ws", s.handleWS)

	group := s.e.Group("/api")
	group.GET("/sessions", s.getSessions)
	group.GET("/sessions/:id", s.getSession)
	group.DELETE("/sessions/:id", s.deleteSession)
	group.PUT("/sessions/:id/title", s.updateSessionTitle)
	group.POST("/sessions/:id/rewind", s.rewindSession)
	group.GET("/profiles", s.getProfiles)
	group.GET("/projects", s.getProjects)
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

// Handler exposes the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.e }

// Seed installs a session with a canned transcript, for hydration tests.
func (s *Server) Seed(id, title string, messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.sessions[id] = &fakeSession{
		id:        id,
		title:     title,
		createdAt: now,
		updatedAt: now,
		messages:  messages,
	}
}

func (s *Server) getSessions(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, api.SessionSummary{
			ID:           sess.id,
			Title:        sess.title,
			Profile:      sess.profile,
			Project:      sess.project,
			CreatedAt:    sess.createdAt,
			UpdatedAt:    sess.updatedAt,
			MessageCount: len(sess.messages),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
	}

	params := api.PaginationParams{Before: c.QueryParam("before")}
	if limit := c.QueryParam("limit"); limit != "" {
		if err := echo.QueryParamsBinder(c).Int("limit", &params.Limit).BindError(); err != nil {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
		}
	}

	page, meta, err := api.PaginateMessages(sess.messages, params)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, api.SessionResponse{
		ID:         sess.id,
		Title:      sess.title,
		Profile:    sess.profile,
		Project:    sess.project,
		Messages:   page,
		Usage:      sess.usage,
		Pagination: meta,
	})
}

func (s *Server) deleteSession(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Param("id")
	if _, ok := s.sessions[id]; !ok {
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
	}
	delete(s.sessions, id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateSessionTitle(c echo.Context) error {
	var req api.UpdateSessionTitleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
	}
	sess.title = req.Title
	sess.updatedAt = time.Now()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) rewindSession(c echo.Context) error {
	var req api.RewindSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	if req.NumMessages < 0 {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "num_messages must not be negative"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
	}
	if req.NumMessages < len(sess.messages) {
		sess.messages = sess.messages[:req.NumMessages]
	}
	sess.updatedAt = time.Now()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getProfiles(c echo.Context) error {
	return c.JSON(http.StatusOK, []api.Profile{
		{Name: "default", Description: "General purpose assistant"},
		{Name: "coder", Description: "Code-focused assistant", Model: "fake/coder-1"},
	})
}

func (s *Server) getProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, []api.Project{
		{Name: "scratch", Path: "/tmp/scratch"},
	})
}

// wsConn serializes writes; the ping loop and the streaming turn write
// concurrently.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleWS(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	if s.pingInterval > 0 {
		go s.pingLoop(ctx, conn)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			s.log.Debug("dropping unreadable client frame", "error", err)
			continue
		}

		switch f := frame.(type) {
		case *protocol.QueryFrame:
			s.startTurn(ctx, conn, f)
		case *protocol.StopFrame:
			s.stopTurn(f.SessionID)
		case *protocol.LoadSessionFrame:
			s.sendHistory(conn, f.SessionID)
		case *protocol.PongFrame:
			// Keepalive acknowledged.
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.send(protocol.Ping()); err != nil {
				return
			}
		}
	}
}

// startTurn resolves the target session and plays the script on a goroutine.
func (s *Server) startTurn(ctx context.Context, conn *wsConn, f *protocol.QueryFrame) {
	s.mu.Lock()
	sess, ok := s.sessions[f.SessionID]
	if !ok {
		id := f.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		now := time.Now()
		sess = &fakeSession{
			id:        id,
			profile:   f.Profile,
			project:   f.Project,
			createdAt: now,
			updatedAt: now,
		}
		s.sessions[id] = sess
	}
	sess.messages = append(sess.messages, chat.UserMessage(f.Prompt))
	sess.updatedAt = time.Now()

	turnCtx, stop := context.WithCancel(ctx)
	sess.stop = stop
	s.mu.Unlock()

	go s.playScript(turnCtx, conn, sess)
}

func (s *Server) stopTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok && sess.stop != nil {
		sess.stop()
	}
}

// playScript streams the scripted turn: optional tool round, chunked reply,
// then done. Cancellation mid-stream emits stopped instead.
func (s *Server) playScript(ctx context.Context, conn *wsConn, sess *fakeSession) {
	send := func(ev protocol.Event) bool {
		return conn.send(ev) == nil
	}

	if !send(protocol.Start(sess.id)) {
		return
	}

	if tool := s.script.Tool; tool != nil {
		toolID := uuid.NewString()
		if !send(protocol.ToolUse(toolID, tool.Name, []byte(tool.Input))) {
			return
		}
		if !s.pause(ctx, conn, sess) {
			return
		}
		if !send(protocol.ToolResult(toolID, tool.Output)) {
			return
		}
	}

	var content string
	chunkSize := s.script.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(s.script.Reply)
	}
	for i := 0; i < len(s.script.Reply); i += chunkSize {
		end := min(i+chunkSize, len(s.script.Reply))
		if !send(protocol.Chunk(s.script.Reply[i:end])) {
			return
		}
		content += s.script.Reply[i:end]
		if !s.pause(ctx, conn, sess) {
			s.record(sess, chat.Message{Kind: chat.KindAssistant, Content: content, Interrupted: true})
			return
		}
	}

	s.record(sess, chat.Message{Kind: chat.KindAssistant, Content: content, Metadata: s.script.Metadata})
	send(protocol.Done(sess.id, s.script.Metadata))
}

// pause waits the inter-chunk delay; on cancellation it emits stopped and
// reports false.
func (s *Server) pause(ctx context.Context, conn *wsConn, sess *fakeSession) bool {
	if s.script.Delay <= 0 {
		select {
		case <-ctx.Done():
			conn.send(protocol.Stopped(sess.id))
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(s.script.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		conn.send(protocol.Stopped(sess.id))
		return false
	case <-t.C:
		return true
	}
}

func (s *Server) record(sess *fakeSession, msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.messages = append(sess.messages, msg)
	if msg.Metadata != nil {
		sess.usage.Merge(msg.Metadata)
	}
	sess.updatedAt = time.Now()
}

func (s *Server) sendHistory(conn *wsConn, sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	var messages []chat.Message
	if ok {
		messages = append(messages, sess.messages...)
	}
	s.mu.Unlock()

	if !ok {
		conn.send(protocol.Error("session not found: " + sessionID))
		return
	}
	conn.send(protocol.History(sessionID, messages))
}
