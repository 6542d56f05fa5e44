package vectorstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintell/internal/platform/database"
)

func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemory() },
		"sql": func() Store {
			db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
			require.NoError(t, err)
			require.NoError(t, database.Migrate(db))
			t.Cleanup(func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			})
			return NewSQL(db)
		},
	}
}

func TestSimilarityMapping(t *testing.T) {
	a := []float32{1, 0}
	assert.InDelta(t, 1.0, Similarity(a, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.5, Similarity(a, []float32{0, 3}), 1e-9)
	assert.InDelta(t, 0.0, Similarity(a, []float32{-1, 0}), 1e-9)

	// Monotonic in cosine: rotate b away from a and watch the score fall.
	prev := 2.0
	for deg := 0; deg <= 180; deg += 15 {
		rad := float64(deg) * math.Pi / 180
		s := Similarity(a, []float32{float32(math.Cos(rad)), float32(math.Sin(rad))})
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Less(t, s, prev, "angle %d", deg)
		prev = s
	}
}

func TestStoreSearchContract(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Upsert(ctx,
				Record{ChunkID: "a0", DocumentID: "a", Vector: []float32{1, 0, 0}},
				Record{ChunkID: "a1", DocumentID: "a", Vector: []float32{0, 1, 0}},
				Record{ChunkID: "b0", DocumentID: "b", Vector: []float32{1, 0, 0}},
				Record{ChunkID: "b1", DocumentID: "b", Vector: []float32{1, 1, 0}},
			))

			hits, err := s.Search(ctx, []float32{1, 0, 0}, 3, nil)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			// a0 and b0 tie; a0 was inserted first.
			assert.Equal(t, "a0", hits[0].ChunkID)
			assert.Equal(t, "b0", hits[1].ChunkID)
			assert.Equal(t, "b1", hits[2].ChunkID)
			assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
			}

			hits, err = s.Search(ctx, []float32{1, 0, 0}, 10, &Filter{DocumentIDs: []string{"b"}})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "b0", hits[0].ChunkID)

			hits, err = s.Search(ctx, []float32{1, 0, 0}, 10, &Filter{})
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = s.Search(ctx, []float32{1, 0, 0}, 0, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestStoreUpsertKeepsInsertionOrder(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Upsert(ctx, Record{ChunkID: "first", DocumentID: "d", Vector: []float32{0, 1}}))
			require.NoError(t, s.Upsert(ctx, Record{ChunkID: "second", DocumentID: "d", Vector: []float32{1, 0}}))
			// Replace first with a vector equal to second; it keeps its earlier slot.
			require.NoError(t, s.Upsert(ctx, Record{ChunkID: "first", DocumentID: "d", Vector: []float32{1, 0}}))

			hits, err := s.Search(ctx, []float32{1, 0}, 2, nil)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "first", hits[0].ChunkID)
			assert.Equal(t, "second", hits[1].ChunkID)
		})
	}
}

func TestStoreDeleteByDocument(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Upsert(ctx,
				Record{ChunkID: "x0", DocumentID: "x", Vector: []float32{1, 0}},
				Record{ChunkID: "x1", DocumentID: "x", Vector: []float32{1, 0.1}},
				Record{ChunkID: "x2", DocumentID: "x", Vector: []float32{1, 0.2}},
				Record{ChunkID: "y0", DocumentID: "y", Vector: []float32{0, 1}},
			))
			require.NoError(t, s.DeleteByDocument(ctx, "x"))

			hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "y0", hits[0].ChunkID)
		})
	}
}

func TestStoreRejectsBadBatchAtomically(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			err := s.Upsert(ctx,
				Record{ChunkID: "ok", DocumentID: "d", Vector: []float32{1, 0}},
				Record{ChunkID: "bad", DocumentID: "d", Vector: []float32{1, 0, 0}},
			)
			assert.ErrorIs(t, err, ErrDimensionMismatch)

			err = s.Upsert(ctx, Record{ChunkID: "zero", DocumentID: "d", Vector: []float32{0, 0}})
			assert.ErrorIs(t, err, ErrInvalidVector)

			err = s.Upsert(ctx, Record{ChunkID: "nan", DocumentID: "d", Vector: []float32{float32(math.NaN()), 1}})
			assert.ErrorIs(t, err, ErrInvalidVector)

			hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestStoreSearchDimensionMismatch(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Upsert(ctx, Record{ChunkID: "c", DocumentID: "d", Vector: []float32{1, 0}}))

			_, err := s.Search(ctx, []float32{1, 0, 0}, 1, nil)
			assert.ErrorIs(t, err, ErrDimensionMismatch)
		})
	}
}
