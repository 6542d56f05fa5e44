package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docintell/internal/ai"
	"docintell/internal/metrics"
	"docintell/internal/model"
	"docintell/internal/vectorstore"
)

const (
	defaultEmbeddingBatchSize   = 10
	defaultEmbeddingConcurrency = 2
)

type IndexerOptions struct {
	BatchSize         int
	Concurrency       int
	RequestsPerSecond float64 // 0 disables pacing
	Metrics           *metrics.Metrics
}

// Indexer embeds chunks and writes them to the vector store. It is also the
// only path for embedding questions, so queries and chunks always share one
// embedding space.
type Indexer struct {
	embedder    ai.Embedder
	store       vectorstore.Store
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
}

func NewIndexer(embedder ai.Embedder, store vectorstore.Store, opts IndexerOptions) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEmbeddingBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultEmbeddingConcurrency
	}
	ix := &Indexer{
		embedder:    embedder,
		store:       store,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
	}
	if opts.RequestsPerSecond > 0 {
		ix.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return ix
}

// Index embeds every chunk and upserts all vectors in one call. Nothing is
// written unless every chunk embedded successfully.
func (ix *Indexer) Index(ctx context.Context, documentID string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	records := make([]vectorstore.Record, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.Record{ChunkID: chunks[i].ID, DocumentID: documentID, Vector: vectors[i]}
	}
	if err := ix.store.Upsert(ctx, records...); err != nil {
		return fmt.Errorf("%w: store vectors: %w", ErrEmbeddingFailure, err)
	}
	return nil
}

// EmbedQuery embeds a single question.
func (ix *Indexer) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := ix.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Remove drops every vector of the document.
func (ix *Indexer) Remove(ctx context.Context, documentID string) error {
	return ix.store.DeleteByDocument(ctx, documentID)
}

func (ix *Indexer) Search(ctx context.Context, query []float32, k int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	return ix.store.Search(ctx, query, k, filter)
}

func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for start := 0; start < len(texts); start += ix.batchSize {
		start := start
		end := min(start+ix.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := ix.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
		}
	}
	started := time.Now()
	vectors, err := ix.embedder.Embed(ctx, texts)
	ix.metrics.EmbeddingRequest(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailure, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for input %d", ErrEmbeddingFailure, i)
		}
	}
	return vectors, nil
}
