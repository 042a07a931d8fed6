// Command server runs the multi-tenant RAG chatbot platform: the admin and
// public HTTP surfaces, the Ingestion Orchestrator worker pool, and the
// version cleanup sweep, all wired from one process per SPEC_FULL.md §5.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ragforge/internal/bus"
	"ragforge/internal/config"
	"ragforge/internal/extract"
	"ragforge/internal/gateway"
	"ragforge/internal/graphbuild"
	"ragforge/internal/httpapi"
	"ragforge/internal/llm/providers"
	"ragforge/internal/objectstore"
	"ragforge/internal/observability"
	"ragforge/internal/persistence/databases"
	"ragforge/internal/pipeline"
	"ragforge/internal/rag/embedder"
	"ragforge/internal/retrieval"
	"ragforge/internal/streamer"
	"ragforge/internal/versionmgr"
)

// Exit codes (SPEC_FULL.md §6).
const (
	exitOK              = 0
	exitConfigInvalid   = 1
	exitStoreMigration  = 2
	exitLLMUnreachable  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigInvalid
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mgr, err := databases.NewManager(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("init stores")
		return exitStoreMigration
	}
	defer mgr.Close()

	objStore, err := objectstore.Build(ctx, cfg.Object)
	if err != nil {
		log.Error().Err(err).Msg("init object store")
		return exitConfigInvalid
	}

	progressBus, err := bus.Build(ctx, cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("init progress bus")
		return exitConfigInvalid
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	httpClient := &http.Client{Transport: tr}

	provider, err := providers.Build(cfg, httpClient)
	if err != nil {
		log.Error().Err(err).Msg("init llm provider")
		return exitConfigInvalid
	}
	emb := embedder.NewClient(cfg.Embedding, cfg.Embedding.Dimension)
	gw := gateway.New(provider, emb, cfg.LLMClient)

	if err := emb.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("embedding endpoint unreachable at boot, continuing (will retry per request)")
	}

	model := chatModel(cfg.LLMClient)

	retriever := retrieval.New(mgr.Vector, mgr.Graph, gw, retrieval.Options{
		TopK: cfg.Retrieval.TopK, VectorScoreThreshold: cfg.Retrieval.VectorScoreThreshold,
		MaxHops: cfg.Retrieval.MaxHops, GraphEdgeScoreThreshold: cfg.Retrieval.GraphEdgeScoreThreshold,
		GraphNodeCap: cfg.Retrieval.GraphNodeCap, ContextTokenBudget: cfg.Retrieval.ContextTokenBudget,
	})

	extractor := &extract.Extractor{Chatter: gw, Model: model}
	builder := graphbuild.NewBuilder(mgr.Graph, graphbuild.NewLocks())

	orch := pipeline.New(pipeline.Orchestrator{
		Meta: mgr.Meta, Object: objStore, Vector: mgr.Vector, Graph: mgr.Graph,
		Embed: gw, Extractor: extractor, Builder: builder, Bus: progressBus,
		Concurrency: cfg.Ingestion.WorkerConcurrency, MaxPDFPages: cfg.Ingestion.MaxPDFPages,
		Dimension: gw.EmbeddingDimension(),
	})

	versions := &versionmgr.Manager{Meta: mgr.Meta, Vector: mgr.Vector, Graph: mgr.Graph, Object: objStore}

	answerStreamer := &streamer.Streamer{
		Meta: mgr.Meta, Retriever: retriever, Gateway: gw, Bus: progressBus,
		Model: model, HistoryTurns: cfg.Session.HistoryTurns,
	}

	server := httpapi.NewServer(&httpapi.Server{
		Meta: mgr.Meta, Vector: mgr.Vector, Object: objStore, Versions: versions,
		Pipeline: orch, Streamer: answerStreamer, Bus: progressBus,
		Admin: cfg.Admin, Ingestion: cfg.Ingestion, Session: cfg.Session,
	})

	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("ingestion orchestrator stopped unexpectedly")
		}
	}()
	go cleanupSweepLoop(ctx, versions)

	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{Addr: addr, Handler: server, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	log.Info().Str("addr", addr).Msg("ragforge server listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("http server stopped")
		return exitConfigInvalid
	}
	return exitOK
}

// chatModel resolves the active provider's configured model name.
func chatModel(cfg config.LLMClientConfig) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	case "google":
		return cfg.Google.Model
	default:
		return cfg.OpenAI.Model
	}
}

const cleanupSweepInterval = 10 * time.Minute

// cleanupSweepLoop periodically retries any version left in
// VersionCleanupPending (SPEC_FULL.md §4.7).
func cleanupSweepLoop(ctx context.Context, versions *versionmgr.Manager) {
	ticker := time.NewTicker(cleanupSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := versions.CleanupPendingSweep(ctx); err != nil {
				log.Warn().Err(err).Msg("cleanup sweep failed")
			}
		}
	}
}
