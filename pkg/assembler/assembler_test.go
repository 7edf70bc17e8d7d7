package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/protocol"
)

func TestApply_BasicTurn(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.AppendUser("hello")

	assert.False(t, a.Apply(protocol.Start("s1")))
	assert.True(t, a.Streaming())

	a.Apply(protocol.Chunk("Hel"))
	a.Apply(protocol.Chunk("lo!"))

	terminal := a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.01, InputTokens: 10, OutputTokens: 5}))
	assert.True(t, terminal)
	assert.False(t, a.Streaming())
	assert.Equal(t, "s1", a.SessionID())

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.KindUser, msgs[0].Kind)
	assert.Equal(t, chat.KindAssistant, msgs[1].Kind)
	assert.Equal(t, "Hello!", msgs[1].Content)
	assert.False(t, msgs[1].Streaming)
	require.NotNil(t, msgs[1].Metadata)
	assert.InDelta(t, 0.01, msgs[1].Metadata.CostUSD, 1e-9)
}

func TestApply_ChunkBeforeStart(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Chunk("early"))

	assert.True(t, a.Streaming())
	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.KindAssistant, msgs[0].Kind)
	assert.Equal(t, "early", msgs[0].Content)
}

func TestApply_ToolRound(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.ToolUse("t1", "search", []byte(`{"q":"go"}`)))

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.ToolRunning, msgs[1].ToolStatus)

	a.Apply(protocol.ToolResult("t1", "3 hits"))

	msgs = a.Messages()
	require.Len(t, msgs, 2, "result must mutate the tool_use entry, not append")
	assert.Equal(t, chat.ToolComplete, msgs[1].ToolStatus)
	assert.Equal(t, "3 hits", msgs[1].ToolResult)
}

func TestApply_ToolResultWithoutUse(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.ToolResult("orphan", "output"))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.KindToolResult, msgs[0].Kind)
	assert.Equal(t, "output", msgs[0].Content)
}

func TestApply_ToolIndexClearedOnTerminal(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.ToolUse("t1", "search", nil))
	a.Apply(protocol.Done("s1", nil))

	// A result for a tool from a previous turn must not pair anymore.
	a.Apply(protocol.ToolResult("t1", "late"))

	msgs := a.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, chat.KindToolResult, last.Kind)
	assert.Equal(t, chat.ToolRunning, msgs[1].ToolStatus, "old tool entry stays untouched")
}

func TestApply_Stopped(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Chunk("partial"))
	a.Apply(protocol.ToolUse("t1", "slow", nil))

	terminal := a.Apply(protocol.Stopped("s1"))
	assert.True(t, terminal)
	assert.False(t, a.Streaming())

	msgs := a.Messages()
	assert.Equal(t, "partial", msgs[0].Content)
	assert.True(t, msgs[0].Interrupted)
	assert.Equal(t, chat.ToolError, msgs[1].ToolStatus)
	assert.Equal(t, "interrupted", msgs[1].ToolResult)
}

func TestApply_ErrorKeepsPartialContent(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Chunk("partial"))

	terminal := a.Apply(protocol.Error("model overloaded"))
	assert.True(t, terminal)
	assert.False(t, a.Streaming())
	assert.Equal(t, "model overloaded", a.Err())

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial", msgs[0].Content)
	assert.False(t, msgs[0].Streaming)

	a.ClearError()
	assert.Empty(t, a.Err())
}

func TestApply_DuplicateTerminalIsIdempotent(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Chunk("hi"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.01}))

	before := len(a.Messages())
	usage := a.Usage()

	assert.True(t, a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.01})))
	assert.True(t, a.Apply(protocol.Stopped("s1")))

	assert.Len(t, a.Messages(), before)
	assert.Equal(t, usage, a.Usage(), "duplicate terminal must not double-count usage")
	assert.False(t, a.Streaming())
}

func TestApply_BareDoneBindsSessionAndMergesUsage(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.AppendUser("hi")

	// A turn may produce no start or chunk at all, just its terminal event.
	assert.True(t, a.Apply(protocol.Done("s-new", &chat.TurnMetadata{CostUSD: 0.02})))
	assert.Equal(t, "s-new", a.SessionID())
	assert.InDelta(t, 0.02, a.Usage().TotalCostUSD, 1e-9)
	assert.False(t, a.Streaming())

	// Only the first terminal of the turn counts.
	assert.True(t, a.Apply(protocol.Done("s-new", &chat.TurnMetadata{CostUSD: 0.02})))
	assert.InDelta(t, 0.02, a.Usage().TotalCostUSD, 1e-9)

	// The next turn's terminal is applied again.
	a.AppendUser("more")
	assert.True(t, a.Apply(protocol.Done("s-new", &chat.TurnMetadata{CostUSD: 0.01})))
	assert.InDelta(t, 0.03, a.Usage().TotalCostUSD, 1e-9)
}

func TestApply_UsageAggregatesAcrossTurns(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.01, InputTokens: 10, OutputTokens: 5}))
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.02, InputTokens: 20, OutputTokens: 7}))

	u := a.Usage()
	assert.InDelta(t, 0.03, u.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(30), u.TokensIn)
	assert.Equal(t, int64(12), u.TokensOut)
}

func TestApply_ContextUsedAuthoritativeOverride(t *testing.T) {
	t.Parallel()

	a := New(nil)

	// First turn: no backend value, estimate applies.
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{InputTokens: 100, CacheReadTokens: 50}))
	assert.Equal(t, int64(150), a.Usage().ContextUsed)

	// Second turn: backend reports the real value.
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{InputTokens: 100, ContextUsed: 90}))
	assert.Equal(t, int64(90), a.Usage().ContextUsed)

	// Later estimate-only turns must never regress the authoritative value.
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{InputTokens: 1000}))
	assert.Equal(t, int64(90), a.Usage().ContextUsed)
}

func TestApply_SystemAppendsVerbatim(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.System("compaction", []byte(`{"saved_tokens":1200}`)))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.KindSystem, msgs[0].Kind)
	assert.JSONEq(t, `{"saved_tokens":1200}`, msgs[0].Content)
}

func TestApply_HistoryReplacesTranscript(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.AppendUser("local only")
	a.Apply(protocol.Start(""))
	a.Apply(protocol.Chunk("draft"))

	history := []chat.Message{
		chat.UserMessage("server one"),
		{Kind: chat.KindAssistant, Content: "server reply"},
	}
	a.Apply(protocol.History("s9", history))

	assert.False(t, a.Streaming())
	assert.Equal(t, "s9", a.SessionID())

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "server one", msgs[0].Content)
	assert.Equal(t, "server reply", msgs[1].Content)
}

func TestApply_SessionIDBindsOnce(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s2", nil))
	assert.Equal(t, "s1", a.SessionID())

	a.BindSession("s3")
	assert.Equal(t, "s3", a.SessionID())
}

func TestReset(t *testing.T) {
	t.Parallel()

	a := New(nil)
	a.AppendUser("hello")
	a.Apply(protocol.Start("s1"))
	a.Apply(protocol.Done("s1", &chat.TurnMetadata{CostUSD: 0.5}))

	a.Reset()

	assert.Empty(t, a.Messages())
	assert.Empty(t, a.SessionID())
	assert.Zero(t, a.Usage().TotalCostUSD)
	assert.False(t, a.Streaming())
}
