// Package vectorstore keeps chunk embeddings and answers top-k similarity
// queries.
//
// Similarity is cosine similarity mapped onto [0,1] as (cos+1)/2: 1 for
// identical direction, 0.5 for orthogonal vectors, 0 for opposite ones. The
// mapping is monotonic, so ranking by it equals ranking by raw cosine. Ties
// are broken by insertion order, earlier first.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidVector     = errors.New("vector is empty, zero or not finite")
)

type Record struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

type Hit struct {
	ChunkID    string
	DocumentID string
	Similarity float64
}

// Filter restricts a search to the listed documents. A nil *Filter means no
// restriction; a Filter with no ids matches nothing.
type Filter struct {
	DocumentIDs []string
}

func (f *Filter) allows() func(string) bool {
	if f == nil {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(f.DocumentIDs))
	for _, id := range f.DocumentIDs {
		set[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

type Store interface {
	// Upsert stores all records or none of them. Replacing an existing chunk
	// keeps its original insertion position.
	Upsert(ctx context.Context, records ...Record) error
	DeleteByDocument(ctx context.Context, documentID string) error
	// Search returns at most k hits ordered by descending similarity.
	Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Hit, error)
}

// Similarity maps the cosine of a and b onto [0,1].
func Similarity(a, b []float32) float64 {
	return normalize(cosine(a, norm(a), b, norm(b)))
}

func normalize(cos float64) float64 {
	s := (cos + 1) / 2
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func checkVector(v []float32) error {
	if len(v) == 0 {
		return ErrInvalidVector
	}
	var nonZero bool
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
		if x != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return ErrInvalidVector
	}
	return nil
}

// checkRecords validates a batch against the store dimension (0 = unset) and
// returns the batch dimension.
func checkRecords(records []Record, dim int) (int, error) {
	for _, r := range records {
		if r.ChunkID == "" || r.DocumentID == "" {
			return 0, errors.New("record needs chunk and document ids")
		}
		if err := checkVector(r.Vector); err != nil {
			return 0, fmt.Errorf("chunk %s: %w", r.ChunkID, err)
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return 0, fmt.Errorf("chunk %s: %w: got %d want %d", r.ChunkID, ErrDimensionMismatch, len(r.Vector), dim)
		}
	}
	return dim, nil
}

type candidate struct {
	hit Hit
	seq uint64
}

func rank(cands []candidate, k int) []Hit {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].hit.Similarity != cands[j].hit.Similarity {
			return cands[i].hit.Similarity > cands[j].hit.Similarity
		}
		return cands[i].seq < cands[j].seq
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	hits := make([]Hit, len(cands))
	for i := range cands {
		hits[i] = cands[i].hit
	}
	return hits
}
