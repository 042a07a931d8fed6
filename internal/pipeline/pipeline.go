package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"ragforge/internal/apperr"
	"ragforge/internal/bus"
	"ragforge/internal/extract"
	"ragforge/internal/graphbuild"
	"ragforge/internal/objectstore"
	"ragforge/internal/persistence"
	"ragforge/internal/persistence/databases"
	"ragforge/internal/rag/chunker"
)

// Embedder is the subset of *gateway.Gateway the orchestrator needs to embed
// chunk text.
type Embedder interface {
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
}

// Orchestrator runs the Ingestion Orchestrator's worker pool over a queue of
// document ids, each driven through the parse/chunk/embed/extract/graph/
// finalize pipeline.
type Orchestrator struct {
	Meta      persistence.MetaStore
	Object    objectstore.ObjectStore
	Vector    databases.VectorStore
	Graph     databases.GraphDB
	Embed     Embedder
	Extractor *extract.Extractor
	Builder   *graphbuild.Builder
	Bus       bus.Bus

	Concurrency int
	MaxPDFPages int
	Dimension   int
	ChunkOpts   chunker.RecursiveOptions

	queue chan string
}

// New builds an Orchestrator with a queue sized generously relative to
// concurrency so Submit rarely blocks.
func New(o Orchestrator) *Orchestrator {
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	o.queue = make(chan string, o.Concurrency*64)
	return &o
}

// Submit enqueues a document for processing. It does not block on the
// pipeline itself, only on queue capacity.
func (o *Orchestrator) Submit(ctx context.Context, documentID string) error {
	select {
	case o.queue <- documentID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is cancelled. Before
// accepting new submissions it resumes any document left in a non-terminal
// stage by a previous process (the queue itself is in-memory; MetaStore's
// document status is the durable source of truth that survives a restart).
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.resume(ctx); err != nil {
		log.Error().Err(err).Msg("pipeline: resume scan failed")
	}

	done := make(chan struct{})
	for i := 0; i < o.Concurrency; i++ {
		go o.worker(ctx, done)
	}

	<-ctx.Done()
	for i := 0; i < o.Concurrency; i++ {
		<-done
	}
	return ctx.Err()
}

// resume re-submits every document left in a non-terminal status, so a
// restart after a crash picks up where it left off instead of losing
// in-flight ingestions (SPEC_FULL.md §4.1 idempotency requirement).
func (o *Orchestrator) resume(ctx context.Context) error {
	tenants, err := o.Meta.ListTenants(ctx)
	if err != nil {
		return err
	}
	nonTerminal := map[persistence.DocumentStatus]bool{
		persistence.DocPending: true, persistence.DocParsing: true, persistence.DocChunking: true,
		persistence.DocEmbedding: true, persistence.DocExtracting: true, persistence.DocGraphing: true,
	}
	for _, t := range tenants {
		docs, err := o.Meta.ListDocuments(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if nonTerminal[d.Status] {
				if err := o.Submit(ctx, d.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		case docID := <-o.queue:
			o.processOne(ctx, docID)
		}
	}
}

func (o *Orchestrator) processOne(ctx context.Context, documentID string) {
	doc, err := o.Meta.GetDocument(ctx, documentID)
	if err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("pipeline: load document failed")
		return
	}

	if err := o.runStages(ctx, doc); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("pipeline: ingestion failed")
		if _, uerr := o.Meta.UpdateDocumentStage(ctx, documentID, persistence.DocFailed, doc.Progress, err.Error()); uerr != nil {
			log.Error().Err(uerr).Str("document_id", documentID).Msg("pipeline: failed to record failure")
		}
		_ = o.Bus.PublishProgress(ctx, documentID, bus.ProgressState{
			Stage: "failed", Percent: doc.Progress, Error: err.Error(), UpdatedAt: time.Now(),
		})
		return
	}
}

// advance transactionally writes the new stage status/progress before
// publishing the corresponding bus event, matching the ordering §4.1
// requires so a subscriber never observes progress ahead of the store.
func (o *Orchestrator) advance(ctx context.Context, documentID string, status persistence.DocumentStatus) error {
	progress := persistence.StageProgress[status]
	if _, err := o.Meta.UpdateDocumentStage(ctx, documentID, status, progress, ""); err != nil {
		return apperr.Internalf(err, "update document stage")
	}
	return o.Bus.PublishProgress(ctx, documentID, bus.ProgressState{
		Stage: string(status), Percent: progress, UpdatedAt: time.Now(),
	})
}
