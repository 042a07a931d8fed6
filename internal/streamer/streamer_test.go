package streamer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragforge/internal/bus"
	"ragforge/internal/llm"
	"ragforge/internal/persistence"
	"ragforge/internal/persistence/databases"
	"ragforge/internal/retrieval"
)

type fakeRetriever struct{ items []retrieval.ContextItem }

func (f fakeRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.ContextItem, error) {
	return f.items, nil
}

type fakeChatter struct{ reply string }

func (f fakeChatter) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	h.OnDelta(f.reply)
	return nil
}

func newTestStreamer(t *testing.T, chatter Chatter, retriever Retriever) (*Streamer, persistence.MetaStore, persistence.Tenant, persistence.Session) {
	t.Helper()
	meta := databases.NewMemoryMetaStore()
	tenant, err := meta.CreateTenant(context.Background(), persistence.Tenant{
		Name: "Acme", AccessURL: "acme", Persona: persistence.Persona{Greeting: "hi"},
	})
	require.NoError(t, err)

	session, err := meta.CreateSession(context.Background(), persistence.Session{
		ID: "s1", TenantID: tenant.ID, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	s := &Streamer{
		Meta: meta, Retriever: retriever, Gateway: chatter, Bus: bus.NewMemoryBus(),
		Model: "test-model", HistoryTurns: 10,
	}
	return s, meta, tenant, session
}

func TestStreamer_Respond_HappyPath(t *testing.T) {
	t.Parallel()
	items := []retrieval.ContextItem{{Source: retrieval.SourceVector, DocumentID: "d1", Text: "some context"}}
	s, meta, tenant, session := newTestStreamer(t, fakeChatter{reply: "hello there"}, fakeRetriever{items: items})

	events := make(chan Event, 16)
	err := s.Respond(context.Background(), tenant, session, "hi", events)
	require.NoError(t, err)

	var kinds []EventKind
	var content string
	for ev := range events {
		kinds = append(kinds, ev.Type)
		if ev.Type == EventContent {
			content += ev.Content
		}
	}
	require.Contains(t, kinds, EventThinkingStatus)
	require.Contains(t, kinds, EventSources)
	require.Contains(t, kinds, EventDone)
	require.Equal(t, "hello there", content)

	history, err := meta.RecentMessages(context.Background(), session.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, persistence.RoleAssistant, history[1].Role)
	require.Equal(t, "hello there", history[1].Content)
}

func TestStreamer_Respond_ExpiredSession(t *testing.T) {
	t.Parallel()
	s, _, tenant, session := newTestStreamer(t, fakeChatter{reply: "x"}, fakeRetriever{})
	session.ExpiresAt = time.Now().Add(-time.Minute)

	events := make(chan Event, 4)
	err := s.Respond(context.Background(), tenant, session, "hi", events)
	require.NoError(t, err)

	ev := <-events
	require.Equal(t, EventError, ev.Type)
	_, more := <-events
	require.False(t, more)
}
