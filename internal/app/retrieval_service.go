package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docintell/internal/config"
	"docintell/internal/model"
	"docintell/internal/repository"
	"docintell/internal/vectorstore"
)

const (
	defaultTopK          = 5
	defaultMaxTopK       = 20
	defaultMinSimilarity = 0.55
)

// Source is one retrieved passage with its owning document's display data.
type Source struct {
	ChunkID    string
	DocumentID string
	Filename   string
	ChunkIndex int
	Content    string
	Similarity float64
}

type RetrievalService struct {
	docs          *repository.DocumentRepository
	chunks        *repository.ChunkRepository
	indexer       *Indexer
	topK          int
	maxTopK       int
	minSimilarity float64
	logger        *slog.Logger
}

func NewRetrievalService(
	docs *repository.DocumentRepository,
	chunks *repository.ChunkRepository,
	indexer *Indexer,
	cfg config.RetrievalConfig,
	logger *slog.Logger,
) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = defaultMaxTopK
	}
	if cfg.TopK > cfg.MaxTopK {
		cfg.TopK = cfg.MaxTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		docs:          docs,
		chunks:        chunks,
		indexer:       indexer,
		topK:          cfg.TopK,
		maxTopK:       cfg.MaxTopK,
		minSimilarity: cfg.MinSimilarity,
		logger:        logger,
	}
}

// Retrieve returns up to k passages from completed documents whose
// similarity is at least the configured minimum, best first. k <= 0 uses the
// default. No indexed documents, or no passage above the threshold, gives an
// empty result and no error.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, k int) ([]Source, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	if k <= 0 {
		k = s.topK
	}
	k = min(k, s.maxTopK)

	eligible, err := s.docs.ListIDsByStatus(ctx, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []Source{}, nil
	}

	query, err := s.indexer.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	hits, err := s.indexer.Search(ctx, query, k, &vectorstore.Filter{DocumentIDs: eligible})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrEmbeddingFailure, err)
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.Similarity >= s.minSimilarity {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return []Source{}, nil
	}
	return s.resolve(ctx, kept)
}

// resolve attaches chunk text and filenames, skipping hits whose chunk or
// document vanished after the search.
func (s *RetrievalService) resolve(ctx context.Context, hits []vectorstore.Hit) ([]Source, error) {
	chunkIDs := make([]string, len(hits))
	docIDs := make([]string, 0, len(hits))
	seenDoc := make(map[string]struct{}, len(hits))
	for i, h := range hits {
		chunkIDs[i] = h.ChunkID
		if _, ok := seenDoc[h.DocumentID]; !ok {
			seenDoc[h.DocumentID] = struct{}{}
			docIDs = append(docIDs, h.DocumentID)
		}
	}

	chunks, err := s.chunks.ListByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	chunkByID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}
	docByID := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		c, okChunk := chunkByID[h.ChunkID]
		d, okDoc := docByID[h.DocumentID]
		if !okChunk || !okDoc {
			s.logger.Debug("skip stale hit", "chunk_id", h.ChunkID, "document_id", h.DocumentID)
			continue
		}
		sources = append(sources, Source{
			ChunkID:    c.ID,
			DocumentID: d.ID,
			Filename:   d.Filename,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Similarity: h.Similarity,
		})
	}
	return sources, nil
}
