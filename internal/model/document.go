package model

import (
	"time"

	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// CanTransitionTo reports whether next is a legal forward step.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID               string            `gorm:"primaryKey;size:36" json:"id"`
	Filename         string            `gorm:"size:255;not null" json:"filename"`
	FileType         string            `gorm:"size:16;not null" json:"file_type"`
	FileSize         int64             `gorm:"not null" json:"file_size"`
	Content          string            `gorm:"size:4294967295" json:"content,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	ProcessingStatus DocumentStatus    `gorm:"size:16;not null;index" json:"processing_status"`
	ErrorMessage     string            `gorm:"type:text" json:"error_message,omitempty"`
	ChunkCount       int               `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
}
