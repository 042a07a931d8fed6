// Package gateway wraps the per-provider LLM clients and the embedding
// client with the one concurrency and failure-mapping policy the rest of the
// platform depends on: a global counting semaphore across chat and embedding
// calls, a per-request timeout that releases its slot on expiry, and
// apperr.Kind classification of every failure so the orchestrator knows
// whether to retry.
package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"ragforge/internal/apperr"
	"ragforge/internal/config"
	"ragforge/internal/llm"
	"ragforge/internal/rag/embedder"
)

// Gateway is the single entry point the Ingestion Orchestrator, Entity &
// Relation Extractor, and Answer Streamer use to reach language models. It
// owns the shared semaphore described in §5: chat and embedding calls draw
// from the same pool of cfg.LLMClient.Concurrency slots.
type Gateway struct {
	provider llm.Provider
	embedder embedder.Embedder
	sem      chan struct{}
	timeout  time.Duration
}

// New builds a Gateway around an already-constructed provider and embedder.
func New(provider llm.Provider, emb embedder.Embedder, cfg config.LLMClientConfig) *Gateway {
	n := cfg.Concurrency
	if n <= 0 {
		n = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gateway{provider: provider, embedder: emb, sem: make(chan struct{}, n), timeout: timeout}
}

func (g *Gateway) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperr.Cancelledf("gateway: context cancelled waiting for slot")
	}
}

func (g *Gateway) release() { <-g.sem }

// Chat performs a non-streaming chat completion, enforcing the shared
// semaphore and request timeout, and classifying failures into apperr.Kind.
func (g *Gateway) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	if err := g.acquire(ctx); err != nil {
		return llm.Message{}, err
	}
	defer g.release()

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.provider.Chat(cctx, msgs, tools, model)
	if err != nil {
		return llm.Message{}, classify(err)
	}
	return msg, nil
}

// ChatStream performs a streaming chat completion under the same policy.
func (g *Gateway) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.provider.ChatStream(cctx, msgs, tools, model, h); err != nil {
		return classify(err)
	}
	return nil
}

// EmbedBatch embeds inputs, sharing the same semaphore as chat calls.
func (g *Gateway) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vecs, err := g.embedder.EmbedBatch(cctx, inputs)
	if err != nil {
		return nil, classify(err)
	}
	return vecs, nil
}

// EmbeddingDimension exposes the configured embedding width.
func (g *Gateway) EmbeddingDimension() int { return g.embedder.Dimension() }

// classify maps a raw provider/transport error to an apperr.Kind so callers
// can decide whether to retry (Transient) or give up (Permanent).
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transientf(err, "llm call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Cancelledf("llm call cancelled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Transientf(err, "llm transport error")
	}
	return apperr.Transientf(err, "llm call failed")
}
