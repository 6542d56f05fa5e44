package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docintell/internal/model"
)

const scanBatchSize = 500

// SQL keeps vectors in the chunk_vectors table and ranks them by brute force.
type SQL struct {
	db *gorm.DB
}

func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Upsert(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if _, err := checkRecords(records, dim); err != nil {
		return err
	}

	rows := make([]model.ChunkVector, len(records))
	for i, r := range records {
		rows[i] = model.ChunkVector{ChunkID: r.ChunkID, DocumentID: r.DocumentID}
		if err := rows[i].SetVector(r.Vector); err != nil {
			return fmt.Errorf("encode vector failed: %w", err)
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_id", "dimension", "embedding", "updated_at"}),
		}).CreateInBatches(&rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("upsert chunk vectors failed: %w", err)
	}
	return nil
}

func (s *SQL) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.ChunkVector{}).Error; err != nil {
		return fmt.Errorf("delete chunk vectors failed: %w", err)
	}
	return nil
}

func (s *SQL) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := checkVector(query); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&model.ChunkVector{})
	if filter != nil {
		if len(filter.DocumentIDs) == 0 {
			return nil, nil
		}
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}

	qNorm := norm(query)
	var (
		cands   []candidate
		scanErr error
		batch   []model.ChunkVector
	)
	res := q.FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			row := &batch[i]
			if row.Dimension != len(query) {
				scanErr = fmt.Errorf("%w: query has %d, chunk %s has %d", ErrDimensionMismatch, len(query), row.ChunkID, row.Dimension)
				return scanErr
			}
			vec, err := row.Vector()
			if err != nil {
				scanErr = fmt.Errorf("decode vector of chunk %s failed: %w", row.ChunkID, err)
				return scanErr
			}
			cands = append(cands, candidate{
				hit: Hit{
					ChunkID:    row.ChunkID,
					DocumentID: row.DocumentID,
					Similarity: normalize(cosine(query, qNorm, vec, norm(vec))),
				},
				seq: row.Seq,
			})
		}
		return nil
	})
	if scanErr != nil {
		return nil, scanErr
	}
	if res.Error != nil {
		return nil, fmt.Errorf("scan chunk vectors failed: %w", res.Error)
	}
	return rank(cands, k), nil
}

func (s *SQL) dimension(ctx context.Context) (int, error) {
	var row model.ChunkVector
	err := s.db.WithContext(ctx).Select("dimension").Order("seq ASC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read vector dimension failed: %w", err)
	}
	return row.Dimension, nil
}
