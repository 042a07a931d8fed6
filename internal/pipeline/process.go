package pipeline

import (
	"context"
	"io"
	"strconv"
	"time"

	"ragforge/internal/apperr"
	"ragforge/internal/bus"
	"ragforge/internal/extract"
	"ragforge/internal/pdf"
	"ragforge/internal/persistence"
)

// embedBatchSize caps how many chunk texts are embedded in one gateway call.
const embedBatchSize = 16

// runStages drives a document through parse, chunk, embed, extract, graph,
// and finalize, in order. It always starts from parse, whatever stage
// doc.Status records, so a resumed document reruns every stage.
func (o *Orchestrator) runStages(ctx context.Context, doc persistence.Document) error {
	parsed, err := o.stageParse(ctx, doc)
	if err != nil {
		return err
	}

	chunks := ChunkDocument(parsed, doc.ID, o.ChunkOpts)
	if err := o.advance(ctx, doc.ID, persistence.DocChunking); err != nil {
		return err
	}

	if err := o.stageEmbed(ctx, doc, chunks); err != nil {
		return err
	}

	result, err := o.stageExtract(ctx, doc, chunks)
	if err != nil {
		return err
	}

	entityCount, err := o.stageGraph(ctx, doc, result)
	if err != nil {
		return err
	}

	return o.stageFinalize(ctx, doc, len(chunks), entityCount)
}

func (o *Orchestrator) stageParse(ctx context.Context, doc persistence.Document) (pdf.Document, error) {
	if err := o.advance(ctx, doc.ID, persistence.DocParsing); err != nil {
		return pdf.Document{}, err
	}
	var parsed pdf.Document
	err := withRetry(ctx, func(ctx context.Context) error {
		rc, attrs, err := o.Object.Get(ctx, doc.StoragePath)
		if err != nil {
			return apperr.Transientf(err, "fetch document from object store")
		}
		defer rc.Close()

		data, err := readAllAt(rc)
		if err != nil {
			return apperr.Transientf(err, "read document body")
		}
		reader := newBytesReaderAt(data)

		p, err := pdf.Parse(reader, attrs.Size, o.MaxPDFPages)
		if err != nil {
			return apperr.Permanentf(err, "parse pdf")
		}
		parsed = p
		return nil
	})
	return parsed, err
}

func (o *Orchestrator) stageEmbed(ctx context.Context, doc persistence.Document, chunks []PageChunk) error {
	if err := o.advance(ctx, doc.ID, persistence.DocEmbedding); err != nil {
		return err
	}
	if err := o.Vector.EnsureCollection(ctx, doc.TenantID, doc.Version, o.Dimension); err != nil {
		return apperr.Transientf(err, "ensure vector collection")
	}
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		err := withRetry(ctx, func(ctx context.Context) error {
			vecs, err := o.Embed.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			for i, c := range batch {
				meta := map[string]string{
					"document_id": doc.ID,
					"filename":    doc.Filename,
					"page":        itoa(c.Page),
					"section":     c.Section,
					"chunk_index": itoa(c.Index),
					"text":        c.Text,
				}
				if err := o.Vector.Upsert(ctx, doc.TenantID, doc.Version, c.ID, vecs[i], meta); err != nil {
					return apperr.Transientf(err, "upsert chunk vector")
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) stageExtract(ctx context.Context, doc persistence.Document, chunks []PageChunk) (extract.Result, error) {
	if err := o.advance(ctx, doc.ID, persistence.DocExtracting); err != nil {
		return extract.Result{}, err
	}
	inputs := make([]extract.ChunkInput, len(chunks))
	for i, c := range chunks {
		headings := []string(nil)
		if c.Section != "" {
			headings = []string{c.Section}
		}
		inputs[i] = extract.ChunkInput{ID: c.ID, Text: c.Text, Headings: headings}
	}

	var result extract.Result
	err := withRetry(ctx, func(ctx context.Context) error {
		r, err := o.Extractor.Run(ctx, inputs)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (o *Orchestrator) stageGraph(ctx context.Context, doc persistence.Document, result extract.Result) (int, error) {
	if err := o.advance(ctx, doc.ID, persistence.DocGraphing); err != nil {
		return 0, err
	}
	var entityCount int
	err := withRetry(ctx, func(ctx context.Context) error {
		n, err := o.Builder.Build(ctx, doc.TenantID, doc.Version, result)
		if err != nil {
			return err
		}
		entityCount = n
		return nil
	})
	return entityCount, err
}

func (o *Orchestrator) stageFinalize(ctx context.Context, doc persistence.Document, chunkCount, entityCount int) error {
	_, err := o.Meta.FinalizeDocument(ctx, doc.ID, chunkCount, entityCount, time.Now())
	if err != nil {
		return apperr.Internalf(err, "finalize document")
	}
	return o.Bus.PublishProgress(ctx, doc.ID, bus.ProgressState{
		Stage: string(persistence.DocCompleted), Percent: 100, UpdatedAt: time.Now(),
	})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func readAllAt(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

// bytesReaderAt adapts an in-memory byte slice to io.ReaderAt, needed
// because pdf.Parse requires random access but object store Get only
// returns a stream.
type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (b *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
