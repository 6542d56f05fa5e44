package model

import "time"

// Chunk is a slice of a document's extracted text. StartOffset and EndOffset
// are rune offsets into Document.Content, end exclusive.
type Chunk struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID  string    `gorm:"size:36;not null;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	ChunkIndex  int       `gorm:"not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	StartOffset int       `gorm:"not null" json:"start_offset"`
	EndOffset   int       `gorm:"not null" json:"end_offset"`
	TokenCount  int       `gorm:"not null" json:"token_count"`
	CreatedAt   time.Time `json:"created_at"`
}
