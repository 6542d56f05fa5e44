package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docintell/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// List returns document summaries, newest first, without extracted content.
func (r *DocumentRepository) List(ctx context.Context) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Omit("content").Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []model.Document
	if err := r.db.WithContext(ctx).Omit("content").Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents by ids failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListIDsByStatus(ctx context.Context, status model.DocumentStatus) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("processing_status = ?", status).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list document ids by status failed: %w", err)
	}
	return ids, nil
}

// Transition moves a document from one status to another and applies the
// extra column updates in the same statement. It reports false when the row
// is missing or no longer in the expected status.
func (r *DocumentRepository) Transition(
	ctx context.Context,
	id string,
	from, to model.DocumentStatus,
	updates map[string]interface{},
) (bool, error) {
	return transition(r.db.WithContext(ctx), id, from, to, updates)
}

// Complete stores the chunks and flips the document to completed in one
// transaction. It reports false, writing nothing, when the document is no
// longer processing.
func (r *DocumentRepository) Complete(
	ctx context.Context,
	id string,
	chunks []model.Chunk,
	updates map[string]interface{},
) (bool, error) {
	var moved bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(&chunks, 100).Error; err != nil {
				return fmt.Errorf("create chunks failed: %w", err)
			}
		}
		ok, err := transition(tx, id, model.StatusProcessing, model.StatusCompleted, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleDocument
		}
		moved = true
		return nil
	})
	if errors.Is(err, errStaleDocument) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return moved, nil
}

// Delete removes the document and its chunks. It reports false when the
// document did not exist.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks failed: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return fmt.Errorf("delete document failed: %w", res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

var errStaleDocument = errors.New("document status changed concurrently")

func transition(
	db *gorm.DB,
	id string,
	from, to model.DocumentStatus,
	updates map[string]interface{},
) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	values := map[string]interface{}{"processing_status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := db.Model(&model.Document{}).
		Where("id = ? AND processing_status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("update document status failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
