package streamer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ragforge/internal/apperr"
	"ragforge/internal/bus"
	"ragforge/internal/gateway"
	"ragforge/internal/llm"
	"ragforge/internal/persistence"
	"ragforge/internal/retrieval"
)

// cancelPollInterval is how often the cancellation poller consults the bus
// while a response is streaming.
const cancelPollInterval = 150 * time.Millisecond

// Retriever is the subset of *retrieval.Retriever the streamer depends on.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.ContextItem, error)
}

// Chatter is the subset of *gateway.Gateway the streamer depends on.
type Chatter interface {
	ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error
}

// Streamer implements the Answer Streamer (SPEC_FULL.md §4.5): it composes a
// prompt from persona, retrieved context, and recent history, streams the
// model's reply as a sequence of typed events, and persists the resulting
// turn.
type Streamer struct {
	Meta      persistence.MetaStore
	Retriever Retriever
	Gateway   Chatter
	Bus       bus.Bus
	Model     string

	// HistoryTurns is the number of trailing messages included as
	// conversation history (config.SessionConfig.HistoryTurns).
	HistoryTurns int
}

var _ Chatter = (*gateway.Gateway)(nil)

// Respond runs one user turn of a chat session, emitting events on out as it
// progresses, and persists both the user and assistant messages. Respond
// returns an error only when persisting a message or loading history fails;
// an expired session, a retrieval failure and a generation failure are
// reported as an `error` event and Respond returns nil.
func (s *Streamer) Respond(ctx context.Context, tenant persistence.Tenant, session persistence.Session, userText string, out chan<- Event) error {
	defer close(out)

	now := time.Now()
	if session.Expired(now) {
		out <- Event{Type: EventError, ErrorKind: string(apperr.Validation), Message: "session expired"}
		return nil
	}

	userMsg, err := s.Meta.AppendUserMessage(ctx, persistence.Message{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		Role:        persistence.RoleUser,
		Content:     userText,
		CreatedAt:   now,
		InputTokens: llm.EstimateTokens(userText),
	})
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	out <- Event{Type: EventThinkingStatus, Stage: StageHistory}
	turns := s.HistoryTurns
	if turns <= 0 {
		turns = 10
	}
	history, err := s.Meta.RecentMessages(ctx, session.ID, turns)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	out <- Event{Type: EventThinkingStatus, Stage: StageRetrieval}
	retrievalStart := time.Now()
	items, err := s.Retriever.Retrieve(ctx, retrieval.Query{
		Text: userText, TenantID: tenant.ID, Version: tenant.ActiveVersion, IncludeGraph: true,
	})
	if err != nil && apperr.KindOf(err) != apperr.NotFound {
		out <- Event{Type: EventError, ErrorKind: string(apperr.KindOf(err)), Message: err.Error()}
		s.persistFailure(ctx, session.ID, userMsg.ID, now)
		return nil
	}
	retrievalMs := time.Since(retrievalStart).Milliseconds()

	out <- Event{Type: EventThinkingStatus, Stage: StageContextFound, SourceCount: len(items)}

	msgs := composePrompt(tenant.Persona, history, items, userText)

	out <- Event{Type: EventThinkingStatus, Stage: StageGenerating}

	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	var cancelled atomic.Bool
	var builder strings.Builder
	handler := &streamHandler{out: out, builder: &builder, cancelled: &cancelled}

	pollDone := make(chan struct{})
	go s.pollCancellation(genCtx, session.ID, cancelGen, &cancelled, pollDone)

	genStart := time.Now()
	streamErr := s.Gateway.ChatStream(genCtx, msgs, nil, s.Model, handler)
	cancelGen() // stop the poller once the stream has returned
	<-pollDone
	responseMs := time.Since(genStart).Milliseconds()

	content := builder.String()
	wasCancelled := cancelled.Load()
	wasFailed := streamErr != nil && !wasCancelled

	sources := toSourceDTOs(items)
	if !wasFailed {
		out <- Event{Type: EventSources, Sources: sources}
	}

	assistantMsg := persistence.Message{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		Role:            persistence.RoleAssistant,
		Content:         content,
		Sources:         toSources(items),
		CreatedAt:       time.Now(),
		ResponseTimeMs:  responseMs,
		InputTokens:     userMsg.InputTokens,
		OutputTokens:    llm.EstimateTokens(content),
		RetrievalCount:  len(items),
		RetrievalTimeMs: retrievalMs,
		Cancelled:       wasCancelled,
		Failed:          wasFailed,
	}
	if _, err := s.Meta.AppendAssistantMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	switch {
	case wasFailed:
		out <- Event{Type: EventError, ErrorKind: string(apperr.KindOf(streamErr)), Message: streamErr.Error()}
	default:
		out <- Event{Type: EventDone, MessageID: assistantMsg.ID}
	}
	return nil
}

// persistFailure records a zero-content failed assistant turn when the
// pipeline aborts before generation starts (e.g. retrieval error).
func (s *Streamer) persistFailure(ctx context.Context, sessionID, _ string, at time.Time) {
	_, _ = s.Meta.AppendAssistantMessage(ctx, persistence.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      persistence.RoleAssistant,
		CreatedAt: at,
		Failed:    true,
	})
}

// pollCancellation consults the bus at cancelPollInterval and cancels genCtx
// the moment RequestCancel has been called for sessionID, so the in-flight
// stream stops emitting further tokens. Closes done on exit.
func (s *Streamer) pollCancellation(ctx context.Context, sessionID string, cancel context.CancelFunc, flag *atomic.Bool, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Bus == nil {
				continue
			}
			cancelled, err := s.Bus.IsCancelled(ctx, sessionID)
			if err == nil && cancelled {
				flag.Store(true)
				cancel()
				return
			}
		}
	}
}

// streamHandler adapts llm.StreamHandler to append into an events channel
// and a text builder, ignoring further deltas once cancelled is set.
type streamHandler struct {
	out       chan<- Event
	builder   *strings.Builder
	cancelled *atomic.Bool
}

func (h *streamHandler) OnDelta(content string) {
	if h.cancelled.Load() || content == "" {
		return
	}
	h.builder.WriteString(content)
	h.out <- Event{Type: EventContent, Content: content}
}

func (h *streamHandler) OnToolCall(llm.ToolCall)        {}
func (h *streamHandler) OnImage(llm.GeneratedImage)     {}
func (h *streamHandler) OnThoughtSummary(string)        {}
