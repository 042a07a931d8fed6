package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragforge/internal/apperr"
	"ragforge/internal/config"
	"ragforge/internal/llm"
)

type fakeProvider struct {
	inflight  int32
	maxSeen   int32
	chatErr   error
	chatDelay time.Duration
}

func (f *fakeProvider) Chat(ctx context.Context, _ []llm.Message, _ []llm.ToolSchema, _ string) (llm.Message, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		old := atomic.LoadInt32(&f.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxSeen, old, n) {
			break
		}
	}
	if f.chatDelay > 0 {
		select {
		case <-time.After(f.chatDelay):
		case <-ctx.Done():
			return llm.Message{}, ctx.Err()
		}
	}
	if f.chatErr != nil {
		return llm.Message{}, f.chatErr
	}
	return llm.Message{Role: "assistant", Content: "ok"}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	_, err := f.Chat(ctx, msgs, tools, model)
	if err != nil {
		return err
	}
	h.OnDelta("ok")
	return nil
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func TestGateway_EnforcesConcurrencyLimit(t *testing.T) {
	p := &fakeProvider{chatDelay: 50 * time.Millisecond}
	g := New(p, &fakeEmbedder{dim: 4}, config.LLMClientConfig{Concurrency: 2, Timeout: time.Second})

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = g.Chat(context.Background(), nil, nil, "m")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	require.LessOrEqual(t, atomic.LoadInt32(&p.maxSeen), int32(2))
}

func TestGateway_ClassifiesTimeoutAsTransient(t *testing.T) {
	p := &fakeProvider{chatDelay: 100 * time.Millisecond}
	g := New(p, &fakeEmbedder{dim: 4}, config.LLMClientConfig{Concurrency: 1, Timeout: 10 * time.Millisecond})

	_, err := g.Chat(context.Background(), nil, nil, "m")
	require.Error(t, err)
	require.Equal(t, apperr.Transient, apperr.KindOf(err))
}

func TestGateway_PassesThroughAppErrKind(t *testing.T) {
	p := &fakeProvider{chatErr: apperr.Permanentf(errors.New("bad schema"), "invalid request")}
	g := New(p, &fakeEmbedder{dim: 4}, config.LLMClientConfig{Concurrency: 1, Timeout: time.Second})

	_, err := g.Chat(context.Background(), nil, nil, "m")
	require.Equal(t, apperr.Permanent, apperr.KindOf(err))
}
