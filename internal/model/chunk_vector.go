package model

import (
	"encoding/json"
	"time"
)

// ChunkVector is the persisted form of a chunk embedding. Seq records
// insertion order and is kept when a vector is replaced.
type ChunkVector struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	ChunkID    string    `gorm:"size:36;not null;uniqueIndex" json:"chunk_id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"document_id"`
	Dimension  int       `gorm:"not null" json:"dimension"`
	Embedding  string    `gorm:"size:1048576;not null" json:"-"` // JSON array of float32
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Vector returns the parsed embedding.
func (v *ChunkVector) Vector() ([]float32, error) {
	if v.Embedding == "" {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal([]byte(v.Embedding), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *ChunkVector) SetVector(vec []float32) error {
	b, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	v.Embedding = string(b)
	v.Dimension = len(vec)
	return nil
}
