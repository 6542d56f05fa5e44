package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"docintell/internal/chunker"
	"docintell/internal/config"
	"docintell/internal/events"
	"docintell/internal/extract"
	"docintell/internal/metrics"
	"docintell/internal/model"
	"docintell/internal/repository"
)

// JobPublisher hands an ingestion job to an out-of-process worker.
type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type DocumentServiceDeps struct {
	Documents  *repository.DocumentRepository
	Chunks     *repository.ChunkRepository
	Extractors *extract.Registry
	Chunker    *chunker.Chunker
	Indexer    *Indexer
	Publisher  JobPublisher    // required in queue mode
	Notifier   events.Notifier // optional
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type DocumentService struct {
	docs       *repository.DocumentRepository
	chunks     *repository.ChunkRepository
	extractors *extract.Registry
	chunker    *chunker.Chunker
	indexer    *Indexer
	publisher  JobPublisher
	notifier   events.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mode     string
	maxBytes int64
	locks    *keyedMutex

	// background runs async pipelines; Close cancels it after they drain.
	background context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewDocumentService(deps DocumentServiceDeps, cfg config.IngestConfig) (*DocumentService, error) {
	if cfg.Mode == config.IngestModeQueue && deps.Publisher == nil {
		return nil, errors.New("queue ingest mode needs a job publisher")
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = config.IngestModeAsync
	}
	background, cancel := context.WithCancel(context.Background())
	return &DocumentService{
		docs:       deps.Documents,
		chunks:     deps.Chunks,
		extractors: deps.Extractors,
		chunker:    deps.Chunker,
		indexer:    deps.Indexer,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		mode:       cfg.Mode,
		maxBytes:   cfg.MaxUploadBytes,
		locks:      newKeyedMutex(),
		background: background,
		cancel:     cancel,
	}, nil
}

type UploadInput struct {
	Filename     string
	DeclaredType string
	Data         []byte
}

// DocumentDetail is a document plus its chunks. Content and chunks are only
// filled for completed documents.
type DocumentDetail struct {
	model.Document
	Chunks []model.Chunk `json:"chunks"`
}

// Upload validates the file, records a pending document and starts the
// pipeline according to the ingest mode. Validation failures create nothing.
// Pipeline failures are recorded on the returned document, not returned.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if s.maxBytes > 0 && int64(len(in.Data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(in.Data), s.maxBytes)
	}
	fileType, ok := extract.Resolve(filename, in.DeclaredType, in.Data)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	sum := sha256.Sum256(in.Data)
	doc := &model.Document{
		ID:       uuid.NewString(),
		Filename: filename,
		FileType: string(fileType),
		FileSize: int64(len(in.Data)),
		Metadata: datatypes.JSONMap{
			"filename":     filename,
			"file_type":    string(fileType),
			"file_size":    len(in.Data),
			"content_type": extract.ContentType(fileType),
			"sha256":       hex.EncodeToString(sum[:]),
		},
		ProcessingStatus: model.StatusPending,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.notify(ctx, doc, "")
	s.logger.Info("document accepted",
		"document_id", doc.ID, "filename", filename, "file_type", fileType, "size", doc.FileSize, "mode", s.mode)

	switch s.mode {
	case config.IngestModeSync:
		if err := s.Process(ctx, doc.ID, in.Data); err != nil && !isRecordedFailure(err) {
			return nil, err
		}
		return s.reload(ctx, doc)
	case config.IngestModeQueue:
		job := model.IngestJob{DocumentID: doc.ID, Filename: filename, Data: in.Data}
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.logger.Error("enqueue ingest job failed", "document_id", doc.ID, "error", err)
			s.markFailed(ctx, doc, model.StatusPending, fmt.Errorf("enqueue ingestion: %w", err))
			return s.reload(ctx, doc)
		}
		return doc, nil
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Process(s.background, doc.ID, in.Data); err != nil && !isRecordedFailure(err) {
				s.logger.Error("document pipeline failed", "document_id", doc.ID, "error", err)
			}
		}()
		return doc, nil
	}
}

// Process runs extraction, chunking and indexing for a pending document.
// It returns ErrInvalidTransition when the document is gone or was already
// picked up, so a duplicate job does nothing. Any pipeline failure is
// recorded on the document and also returned.
func (s *DocumentService) Process(ctx context.Context, id string, data []byte) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if doc.ProcessingStatus.Terminal() {
		return fmt.Errorf("%w: document %s already %s", ErrInvalidTransition, id, doc.ProcessingStatus)
	}
	moved, err := s.docs.Transition(ctx, id, model.StatusPending, model.StatusProcessing, nil)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w: document %s is %s", ErrInvalidTransition, id, doc.ProcessingStatus)
	}
	doc.ProcessingStatus = model.StatusProcessing
	s.notify(ctx, doc, "")

	started := time.Now()
	chunks, text, err := s.prepare(ctx, doc, data)
	if err == nil {
		err = s.indexer.Index(ctx, doc.ID, chunks)
	}
	if err != nil {
		s.markFailed(ctx, doc, model.StatusProcessing, err)
		s.metrics.DocumentProcessed(doc.FileType, string(model.StatusFailed), time.Since(started))
		return err
	}

	now := time.Now()
	meta := cloneMetadata(doc.Metadata)
	meta["chunk_count"] = len(chunks)
	meta["character_count"] = utf8.RuneCountInString(text)
	meta["word_count"] = len(strings.Fields(text))
	completed, err := s.docs.Complete(ctx, doc.ID, chunks, map[string]interface{}{
		"content":       text,
		"chunk_count":   len(chunks),
		"metadata":      meta,
		"processed_at":  now,
		"error_message": "",
	})
	if err != nil || !completed {
		s.dropVectors(ctx, doc.ID)
		if err != nil {
			s.markFailed(ctx, doc, model.StatusProcessing, err)
			return err
		}
		s.logger.Info("document removed during processing", "document_id", doc.ID)
		return fmt.Errorf("%w: document %s left processing", ErrInvalidTransition, doc.ID)
	}

	doc.ProcessingStatus = model.StatusCompleted
	doc.ChunkCount = len(chunks)
	s.notify(ctx, doc, "")
	s.metrics.DocumentProcessed(doc.FileType, string(model.StatusCompleted), time.Since(started))
	s.logger.Info("document processed",
		"document_id", doc.ID, "file_type", doc.FileType, "chunks", len(chunks), "took", time.Since(started))
	return nil
}

// prepare turns a panicking parser into ErrExtractionFailure so the
// document is still marked failed.
func (s *DocumentService) prepare(ctx context.Context, doc *model.Document, data []byte) (_ []model.Chunk, _ string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("extractor panic", "document_id", doc.ID, "file_type", doc.FileType, "panic", r)
			err = fmt.Errorf("%w: %s parser panic: %v", ErrExtractionFailure, doc.FileType, r)
		}
	}()
	extractor, ok := s.extractors.For(extract.FileType(doc.FileType))
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, doc.FileType)
	}
	raw, err := extractor.ExtractText(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}
	text := extract.Normalize(raw)

	pieces := s.chunker.Chunk(text)
	if len(pieces) == 0 {
		return nil, "", ErrEmptyDocument
	}
	chunks := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = model.Chunk{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			ChunkIndex:  p.Index,
			Content:     p.Text,
			StartOffset: p.Start,
			EndOffset:   p.End,
			TokenCount:  p.TokenCount(),
		}
	}
	return chunks, text, nil
}

// markFailed records cause on the document. It runs detached from ctx so a
// cancelled pipeline still leaves a terminal status behind.
func (s *DocumentService) markFailed(ctx context.Context, doc *model.Document, from model.DocumentStatus, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	meta := cloneMetadata(doc.Metadata)
	meta["error"] = msg
	moved, err := s.docs.Transition(ctx, doc.ID, from, model.StatusFailed, map[string]interface{}{
		"error_message": msg,
		"metadata":      meta,
		"processed_at":  time.Now(),
	})
	if err != nil {
		s.logger.Error("record document failure failed", "document_id", doc.ID, "error", err)
		return
	}
	if !moved {
		return
	}
	doc.ProcessingStatus = model.StatusFailed
	s.notify(ctx, doc, msg)
	s.logger.Warn("document processing failed", "document_id", doc.ID, "file_type", doc.FileType, "error", msg)
}

func (s *DocumentService) dropVectors(ctx context.Context, id string) {
	if err := s.indexer.Remove(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error("drop document vectors failed", "document_id", id, "error", err)
	}
}

func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	return s.docs.List(ctx)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	detail := &DocumentDetail{Document: *doc, Chunks: []model.Chunk{}}
	if doc.ProcessingStatus != model.StatusCompleted {
		detail.Content = ""
		return detail, nil
	}
	chunks, err := s.chunks.ListByDocumentID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Chunks = chunks
	return detail, nil
}

// Delete removes the document, its chunks and its vectors. Answers that cited
// the document keep their frozen sources.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	deleted, err := s.docs.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err := s.indexer.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete document vectors failed: %w", err)
	}
	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// Close waits for in-flight async pipelines, then cancels what is left once
// ctx expires.
func (s *DocumentService) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
}

func (s *DocumentService) reload(ctx context.Context, doc *model.Document) (*model.Document, error) {
	fresh, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return doc, nil
	}
	return fresh, nil
}

func (s *DocumentService) notify(ctx context.Context, doc *model.Document, errMsg string) {
	s.notifier.DocumentStatusChanged(ctx, events.DocumentStatusChanged{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		Status:     string(doc.ProcessingStatus),
		ChunkCount: doc.ChunkCount,
		Error:      errMsg,
		At:         time.Now(),
	})
}

// isRecordedFailure reports whether err is a pipeline outcome already stored
// on the document.
func isRecordedFailure(err error) bool {
	for _, target := range []error{
		ErrExtractionFailure, ErrEmptyDocument, ErrEmbeddingFailure, ErrUnsupportedType, ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func cloneMetadata(in datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}
